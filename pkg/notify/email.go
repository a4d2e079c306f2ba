package notify

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// EmailConfig holds SMTP settings for the email sink.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailSink sends notifications over SMTP.
type EmailSink struct {
	cfg    EmailConfig
	dialer *mail.Dialer
}

func NewEmailSink(cfg EmailConfig) *EmailSink {
	return &EmailSink{
		cfg:    cfg,
		dialer: mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, n Notification) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", s.cfg.To...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s: %s", n.Severity, n.ServerName, n.Title))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Server: %s\nAlert: %s (%s)\nSeverity: %s\nEvent: %s\n\n%s\n\nRaised at %s\n",
		n.ServerName, n.Title, n.AlertType, n.Severity, n.Event, n.Message,
		n.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
	))

	// The dialer has no context support; run the send in a goroutine so the
	// dispatcher's deadline still bounds the wait.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
