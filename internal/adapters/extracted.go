// Package adapters maps drafts produced by external collaborators onto the
// ordinary ledger inputs.
package adapters

import (
	"strings"
	"time"

	"fintrix/internal/core"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order when an extractor returns a date string.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ExtractedDraft is the best-effort output of a receipt extractor. Every
// field may be missing.
type ExtractedDraft struct {
	Amount       *decimal.Decimal `json:"amount"`
	Date         *string          `json:"date"`
	Description  *string          `json:"description"`
	MerchantName *string          `json:"merchantName"`
	Category     *string          `json:"category"`
}

// ExtractedRequest pairs an extracted draft with the caller's choices the
// extractor cannot know.
type ExtractedRequest struct {
	AccountID string          `json:"accountId"`
	Type      string          `json:"type"`
	Draft     *ExtractedDraft `json:"draft"`
}

// ToTransactionDraft converts the extraction into a Create draft. Nothing
// is trusted: missing or malformed fields are left empty and fail the usual
// draft validation. The merchant name becomes the source. Type defaults to
// EXPENSE since receipts record spending.
func ToTransactionDraft(req ExtractedRequest) core.TransactionDraft {
	d := core.TransactionDraft{
		AccountID: strings.TrimSpace(req.AccountID),
		Type:      core.Expense,
		Status:    core.StatusCompleted,
	}
	if t := strings.TrimSpace(req.Type); t != "" {
		d.Type = core.TransactionType(t)
	}

	x := req.Draft
	if x == nil {
		return d
	}
	if x.Amount != nil {
		d.Amount = *x.Amount
	}
	if x.Date != nil {
		d.Date = parseDate(*x.Date)
	}
	d.Description = deref(x.Description)
	d.Source = deref(x.MerchantName)
	d.Category = strings.ToLower(deref(x.Category))
	return d
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
