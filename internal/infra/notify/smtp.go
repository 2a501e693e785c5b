package notify

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type Sender interface {
	DialAndSend(messages ...*gomail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier mails recipients whose subject is an email address. Other
// recipients are skipped without error.
type SMTPNotifier struct {
	sender Sender
	from   string
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewSMTPNotifierWithSender(dialer, cfg.From), nil
}

func NewSMTPNotifierWithSender(sender Sender, from string) *SMTPNotifier {
	return &SMTPNotifier{sender: sender, from: from}
}

func (n *SMTPNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	to, ok := emailAddress(msg.RecipientID)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject(msg))
	m.SetBody("text/plain", body(msg))

	// gomail dials without a context, so a stalled relay is abandoned here
	// and the send finishes in the background.
	done := make(chan error, 1)
	go func() { done <- n.sender.DialAndSend(m) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func emailAddress(recipient string) (string, bool) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(recipient)
	if err != nil || addr.Name != "" {
		return "", false
	}
	return addr.Address, true
}

var _ usecase.Notifier = (*SMTPNotifier)(nil)
