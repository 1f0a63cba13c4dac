package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/shovel-house/shovel-api/internal/config"
	"go.uber.org/zap"
)

const (
	ProviderSendGrid = "sendgrid"
	ProviderMailgun  = "mailgun"
	ProviderLog      = "log"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks the provider named in the configuration.
func NewSender(cfg *config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case ProviderSendGrid:
		if cfg.SendGridKey == "" || cfg.From == "" {
			return nil, errors.New("invalid SendGrid configuration")
		}
		return NewSendGridSender(cfg.SendGridKey, cfg.From), nil
	case ProviderMailgun:
		if cfg.MailgunKey == "" || cfg.MailgunDomain == "" || cfg.From == "" {
			return nil, errors.New("invalid Mailgun configuration")
		}
		return NewMailgunSender(cfg.MailgunDomain, cfg.MailgunKey, cfg.From), nil
	case ProviderLog, "":
		return &LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	zap.S().Named("email").Infow("email", "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
