// This file decodes and validates request bodies into service inputs.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fintrix/internal/core"

	"github.com/shopspring/decimal"
)

const (
	// HeaderUserID carries the caller identity set by the upstream
	// authentication layer.
	HeaderUserID = "X-User-ID"

	maxBodyBytes = 1 << 20
)

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// userID returns the caller identity, or "" when the header is missing.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

// decodeJSON reads exactly one JSON object into dst, rejecting unknown
// fields and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// amountInput accepts an amount as a JSON number or string, so clients may
// send 12.5, "12.50" or "12,50".
type amountInput string

func (a *amountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountInput(s)
		return nil
	}
	*a = amountInput(data)
	return nil
}

// positive parses a strictly positive amount.
func (a amountInput) positive(field string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(string(a))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Message: err.Error()}
	}
	return d, nil
}

// signed parses an amount that may be zero or negative, as opening
// balances can be. Empty means zero.
func (a amountInput) signed(field string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(string(a)), ",", ".")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Message: core.ErrInvalidAmount.Error()}
	}
	return d, nil
}

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &core.ValidationError{Field: field, Message: "date must be RFC 3339 or YYYY-MM-DD"}
}

type transactionRequest struct {
	AccountID         string      `json:"accountId"`
	Type              string      `json:"type"`
	Amount            amountInput `json:"amount"`
	Description       string      `json:"description"`
	Date              string      `json:"date"`
	Category          string      `json:"category"`
	Source            string      `json:"source"`
	ReceiptURL        string      `json:"receiptUrl"`
	Status            string      `json:"status"`
	IsRecurring       bool        `json:"isRecurring"`
	RecurringInterval string      `json:"recurringInterval"`
	RecurringEndDate  string      `json:"recurringEndDate"`
}

// toDraft parses the wire fields. Shape checks beyond parsing are left to
// core.TransactionDraft.Validate in the service.
func (req transactionRequest) toDraft() (core.TransactionDraft, error) {
	amount, err := req.Amount.positive("amount")
	if err != nil {
		return core.TransactionDraft{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return core.TransactionDraft{}, err
	}
	d := core.TransactionDraft{
		AccountID:         strings.TrimSpace(req.AccountID),
		Type:              core.TransactionType(req.Type),
		Amount:            amount,
		Description:       sanitizeInput(req.Description),
		Date:              date,
		Category:          sanitizeInput(req.Category),
		Source:            sanitizeInput(req.Source),
		ReceiptURL:        strings.TrimSpace(req.ReceiptURL),
		Status:            core.TransactionStatus(req.Status),
		IsRecurring:       req.IsRecurring,
		RecurringInterval: core.RecurringInterval(req.RecurringInterval),
	}
	if req.RecurringEndDate != "" {
		end, err := parseDate("recurringEndDate", req.RecurringEndDate)
		if err != nil {
			return core.TransactionDraft{}, err
		}
		d.RecurringEndDate = &end
	}
	return d, nil
}

type accountRequest struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Balance   amountInput `json:"balance"`
	IsDefault bool        `json:"isDefault"`
}

func (req accountRequest) toDraft() (core.AccountDraft, error) {
	balance, err := req.Balance.signed("balance")
	if err != nil {
		return core.AccountDraft{}, err
	}
	return core.AccountDraft{
		Name:      sanitizeInput(req.Name),
		Type:      core.AccountType(req.Type),
		Balance:   balance,
		IsDefault: req.IsDefault,
	}, nil
}

type budgetRequest struct {
	Amount amountInput `json:"amount"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type userInitRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
