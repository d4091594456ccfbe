package mail

import (
	"context"
	"errors"

	gomail "gopkg.in/gomail.v2"

	"github.com/helpdeskpro/helpdesk/internal/config"
)

// ErrNotConfigured is returned when the relay has no credentials.
var ErrNotConfigured = errors.New("mail relay credentials not configured")

// Message is a single outbound transactional email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends transactional email through an external relay.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers through an SMTP relay authenticated with a single
// service credential.
type SMTPMailer struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
}

// NewSMTPMailer builds a mailer from config. A mailer without credentials is
// still constructed; Send fails with ErrNotConfigured.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send dials the relay and delivers the message. The dial happens per send;
// expected traffic does not justify a persistent connection.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Configured() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.cfg.From)
	message.SetHeader("To", msg.To)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		message.AddAlternative("text/html", msg.HTML)
	}

	return m.dialer.DialAndSend(message)
}
