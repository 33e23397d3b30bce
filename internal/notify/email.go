package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailService handles email notifications
type EmailService struct {
	host      string
	port      int
	username  string
	password  string
	from      string
	isEnabled bool

	// deliver is swapped in tests
	deliver func(addr, to, msg string) error
}

// NewEmailService creates a new email notification service
func NewEmailService(host, username, password, from string, port int) *EmailService {
	e := &EmailService{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		from:      from,
		isEnabled: username != "" && password != "",
	}
	e.deliver = e.sendSMTP
	return e
}

// IsEnabled returns whether the email service is enabled
func (e *EmailService) IsEnabled() bool {
	return e.isEnabled
}

// Send emails body to one recipient
func (e *EmailService) Send(ctx context.Context, to, subject, body string) error {
	if !e.isEnabled {
		return nil
	}

	if !ValidateEmail(to) {
		return fmt.Errorf("invalid recipient email %q", to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	return e.deliver(addr, to, e.buildMessage(to, subject, body))
}

// sendSMTP tries STARTTLS explicitly, then falls back to smtp.SendMail
func (e *EmailService) sendSMTP(addr, to, msg string) error {
	if err := e.sendWithTLS(addr, to, msg); err == nil {
		return nil
	}
	return e.sendWithSTARTTLS(addr, to, msg)
}

// sendWithTLS sends email using TLS
func (e *EmailService) sendWithTLS(addr, to string, msg string) error {
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
		return err
	}
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(e.username); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// sendWithSTARTTLS sends email using STARTTLS
func (e *EmailService) sendWithSTARTTLS(addr, to string, msg string) error {
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	return smtp.SendMail(addr, auth, e.username, []string{to}, []byte(msg))
}

// buildMessage builds a plain text email
func (e *EmailService) buildMessage(to, subject, body string) string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return msg.String()
}

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if parts[0] == "" || parts[1] == "" {
		return false
	}
	return strings.Contains(parts[1], ".")
}
