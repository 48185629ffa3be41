package clients

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/aiwf/engine/common/config"
)

// EmailClient is the contract the act.email handler expects. A nil client
// puts the handler into fallback mode.
type EmailClient interface {
	// Send delivers an email and returns a provider message id.
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// headerReplacer strips newline sequences that would allow header injection.
var headerReplacer = strings.NewReplacer("\r\n", "", "\r", "", "\n", "", "%0a", "", "%0d", "")

// SMTPMailer implements EmailClient over plain SMTP.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPMailer creates a mailer, or nil when no SMTP host is configured.
func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	p := cfg.Providers
	if p.SMTPHost == "" {
		return nil
	}
	return &SMTPMailer{
		host:     p.SMTPHost,
		port:     p.SMTPPort,
		username: p.SMTPUsername,
		password: p.SMTPPassword,
		from:     p.SMTPFrom,
	}
}

// Send implements EmailClient.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) (string, error) {
	to = headerReplacer.Replace(to)
	subject = headerReplacer.Replace(subject)

	msg := []byte("To: " + to + "\r\n" +
		"From: " + m.from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" + body + "\r\n")

	addr := m.host + ":" + m.port
	var auth smtp.Auth
	if m.username != "" || m.password != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	return fmt.Sprintf("smtp-%s", to), nil
}
