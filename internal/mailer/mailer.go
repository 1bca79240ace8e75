package mailer

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
}

type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	ResetBaseURL string
}

type SMTPMailer struct {
	cfg Config
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject("Reset your password")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Open the link below to choose a new password. The link expires in one hour.\n\n"+
			"%s/reset-password?token=%s\n\n"+
			"If you did not request this, ignore this message.\n",
		m.cfg.ResetBaseURL, token,
	))

	opts := []gomail.Option{gomail.WithPort(m.cfg.Port)}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Nop is used when SMTP is not configured. Reset tokens are still persisted.
type Nop struct{}

func (Nop) SendPasswordReset(context.Context, string, string) error { return nil }
