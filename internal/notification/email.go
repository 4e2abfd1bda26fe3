package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// EmailNotifier sends notifications over SMTP. Recipient is an email
// address here; other channels interpret it as a phone number.
type EmailNotifier struct {
	dialer  *gomail.Dialer
	from    string
	subject string
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	subject := cfg.Subject
	if subject == "" {
		subject = "Appointment update"
	}
	return &EmailNotifier{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		subject: subject,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, recipient, message string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", n.subject)
	m.SetBody("text/plain", message)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
