package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// ErrDisabled is returned by a Mailer that has no delivery configured.
var ErrDisabled = errors.New("email delivery disabled")

// Message is one plain-text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
	Provider() string
}

// MailConfig selects and configures the delivery provider. Resend wins
// when both it and SMTP are configured.
type MailConfig struct {
	From         string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// NewMailer returns the configured provider, or a disabled mailer when the
// sender address or credentials are missing.
func NewMailer(cfg MailConfig) (Mailer, error) {
	from := strings.TrimSpace(cfg.From)
	switch {
	case from == "":
		return &disabledMailer{}, nil
	case strings.TrimSpace(cfg.ResendAPIKey) != "":
		return NewResendMailer(cfg.ResendAPIKey, from), nil
	case cfg.SMTPHost != "" && cfg.SMTPPort > 0 && cfg.SMTPUser != "" && cfg.SMTPPassword != "":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, from)
	}
	return &disabledMailer{}, nil
}

type disabledMailer struct {
	once sync.Once
}

func (d *disabledMailer) Send(context.Context, Message) error {
	d.once.Do(func() {
		slog.Warn("email disabled: set mail.from plus mail.resend_api_key or the smtp.* keys")
	})
	return ErrDisabled
}

func (d *disabledMailer) Provider() string { return "disabled" }
