// Package notify delivers budget alerts to users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fintrix/internal/core"
	applog "fintrix/internal/log"
)

// Message is one alert addressed to a single recipient.
type Message struct {
	To      string
	Subject string
	Alert   core.BudgetAlert
}

// Notifier sends a message. A returned error means the message was not
// delivered and the caller may try again later.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// BudgetAlertMessage builds the message for a budget threshold alert.
func BudgetAlertMessage(to string, alert core.BudgetAlert) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Budget Alert for %s %d", alert.Month, alert.Year),
		Alert:   alert,
	}
}

// Body renders the plain-text body of msg.
func (m Message) Body() string {
	a := m.Alert
	var b strings.Builder
	name := a.UserName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "You have used %s%% of your monthly budget", a.UsedPercentage.StringFixed(1))
	if a.AccountName != "" {
		fmt.Fprintf(&b, " on %s", a.AccountName)
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Budget:    %s\n", core.FormatAmount(a.BudgetAmount))
	fmt.Fprintf(&b, "Spent:     %s\n", core.FormatAmount(a.TotalExpenses))
	fmt.Fprintf(&b, "Remaining: %s\n", core.FormatAmount(a.Remaining))
	return b.String()
}

// LogNotifier writes alerts to the structured log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(applog.FieldComponent, applog.ComponentNotify)}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "Budget alert",
		"to", msg.To,
		"subject", msg.Subject,
		"used_percentage", msg.Alert.UsedPercentage.StringFixed(1),
		"budget", core.FormatAmount(msg.Alert.BudgetAmount),
		"spent", core.FormatAmount(msg.Alert.TotalExpenses))
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
