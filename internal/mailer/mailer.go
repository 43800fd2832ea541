// Package mailer delivers transactional email through SMTP, SendGrid, or the
// process log in development.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"

	"lazla/internal/config"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// New picks the transport named by cfg.Provider.
func New(cfg config.MailConfig) (Mailer, error) {
	switch cfg.Provider {
	case config.MailSMTP:
		return NewSMTPMailer(cfg), nil
	case config.MailSendGrid:
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromEmail), nil
	case config.MailConsole:
		return NewConsoleMailer(nil), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.SSL = cfg.SMTPSecure
	d.TLSConfig = &tls.Config{ServerName: cfg.SMTPHost}
	from := cfg.FromEmail
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPMailer{dialer: d, from: from}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(m.from, to, subject, htmlBody)
	if err := m.dialer.DialAndSend(msg); err != nil {
		log.Printf("level=error msg=\"smtp send failed\" to=%s err=%v", to, err)
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	return msg
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(apiKey, from string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("", from),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), htmlBody, htmlBody)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=error msg=\"sendgrid rejected message\" to=%s status=%d", to, resp.StatusCode)
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}

// ConsoleMailer writes messages to the log instead of sending them.
type ConsoleMailer struct {
	logf func(format string, args ...interface{})
}

func NewConsoleMailer(logf func(format string, args ...interface{})) *ConsoleMailer {
	if logf == nil {
		logf = log.Printf
	}
	return &ConsoleMailer{logf: logf}
}

func (m *ConsoleMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.logf("level=info msg=\"console mail\" to=%s subject=%q body=%q", to, subject, htmlBody)
	return nil
}
