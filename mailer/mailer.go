// Package mailer is the injected email-delivery collaborator spec.md §1
// names as explicitly out of scope but required as an interface: the
// Credential Engine calls Mailer to dispatch verification/reset links and
// must never fail its own operation when mail delivery fails (spec.md
// §4.2, §7).
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
)

// Mailer is the interface engines depend on.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, verifyURL string) error
	SendPasswordResetEmail(ctx context.Context, to, resetURL string) error
}

// Config configures the default SMTP-backed Mailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends mail via net/smtp. No third-party SMTP client exists
// anywhere in the example corpus (the sole mail-API dependency present,
// Postmark, is an HTTP API and conflicts with spec.md §6's literal
// SMTP-settings configuration fields), so this is the one ambient concern
// built directly on the standard library — see DESIGN.md.
type SMTPMailer struct {
	cfg Config
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.FromName, m.cfg.From, to, subject, body)
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg))
}

func (m *SMTPMailer) SendVerificationEmail(_ context.Context, to, verifyURL string) error {
	return m.send(to, "Verify your email", "Click to verify your email: "+verifyURL)
}

func (m *SMTPMailer) SendPasswordResetEmail(_ context.Context, to, resetURL string) error {
	return m.send(to, "Reset your password", "Click to reset your password: "+resetURL)
}

// NoOpMailer discards all mail; useful for tests and for disabling mail
// delivery entirely.
type NoOpMailer struct{}

func (NoOpMailer) SendVerificationEmail(context.Context, string, string) error { return nil }
func (NoOpMailer) SendPasswordResetEmail(context.Context, string, string) error { return nil }
