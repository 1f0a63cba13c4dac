package notification

import (
	"context"

	"github.com/mailgun/mailgun-go/v4"
)

type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewMailgunSender(domain, key, from string) *MailgunSender {
	return &MailgunSender{mg: mailgun.NewMailgun(domain, key), from: from}
}

func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	message := s.mg.NewMessage(s.from, msg.Subject, msg.Text)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}
	if err := message.AddRecipient(msg.To); err != nil {
		return err
	}

	_, _, err := s.mg.Send(ctx, message)
	return err
}
