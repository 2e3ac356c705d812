package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConfig holds the OAuth material for the Gmail notifier. For each of
// client and token, the inline JSON wins over the file.
type GmailConfig struct {
	Sender     string
	ClientJSON string
	ClientFile string
	TokenJSON  string
	TokenFile  string
}

// GmailNotifier sends alerts through the Gmail API as the authorized user.
type GmailNotifier struct {
	svc    *gmail.Service
	sender string
}

func NewGmailNotifier(ctx context.Context, cfg GmailConfig) (*GmailNotifier, error) {
	if _, err := mail.ParseAddress(cfg.Sender); err != nil {
		return nil, fmt.Errorf("invalid gmail sender %q: %w", cfg.Sender, err)
	}

	clientJSON, err := readInlineOrFile(cfg.ClientJSON, cfg.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(clientJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readInlineOrFile(cfg.TokenJSON, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	slog.InfoContext(ctx, "Gmail notifier ready", "sender", cfg.Sender)
	return &GmailNotifier{svc: svc, sender: cfg.Sender}, nil
}

func (n *GmailNotifier) Send(ctx context.Context, msg Message) error {
	raw := buildRFC2822(n.sender, msg, time.Now())
	_, err := n.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send gmail message: %w", err)
	}
	slog.InfoContext(ctx, "Budget alert sent", "to", msg.To)
	return nil
}

func buildRFC2822(from string, msg Message, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body(), "\n", "\r\n"))
	return []byte(b.String())
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(path) != "":
		return os.ReadFile(path)
	default:
		return nil, errors.New("neither inline JSON nor file path provided")
	}
}

var _ Notifier = (*GmailNotifier)(nil)
