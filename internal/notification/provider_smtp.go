package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/stewardhq/steward/internal/config"
)

type smtpProvider struct {
	cfg config.EmailConfig
}

// NewSMTPProvider sends mail through the configured SMTP relay.
func NewSMTPProvider(cfg config.EmailConfig) Provider {
	return &smtpProvider{cfg: cfg}
}

func (p *smtpProvider) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("empty recipient")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.cfg.SMTPFrom)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", p.cfg.SMTPHost, p.cfg.SMTPPort)
	var auth smtp.Auth
	if p.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", p.cfg.SMTPUsername, p.cfg.SMTPPassword, p.cfg.SMTPHost)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, p.cfg.SMTPFrom, []string{msg.To}, []byte(b.String()))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopProvider struct{}

// NewNoopProvider drops every message. Used when SMTP is disabled.
func NewNoopProvider() Provider { return noopProvider{} }

func (noopProvider) Send(ctx context.Context, msg Message) error { return nil }
