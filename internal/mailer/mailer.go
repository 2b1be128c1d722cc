// Package mailer delivers transactional email: verification codes at signup
// and subscription lifecycle alerts. Services depend on the Mailer interface
// so tests can substitute a recording fake; the SMTP implementation is the
// only one used in production.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/threateye/threateye-backend/internal/config"
)

// Mailer sends transactional email to a single recipient.
type Mailer interface {
	SendVerificationCode(ctx context.Context, toEmail, code string, expiresAt time.Time) error
	SendSubscriptionExpired(ctx context.Context, toEmail, planName string) error
}

// SMTPMailer delivers mail through the configured SMTP relay.
type SMTPMailer struct {
	cfg *config.SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer. The caller is responsible for checking
// that the SMTP host is configured before wiring this into services.
func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendVerificationCode emails the 6-digit code a new account must present to
// activate. The code itself is the only secret in the message body.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, toEmail, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Minutes()) + 1
	if minutes < 1 {
		minutes = 1
	}

	subject := "Verify your email address"
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("Your verification code is: %s", code),
		"",
		fmt.Sprintf("The code expires in %d minute(s). If you did not create an account, you can ignore this email.", minutes),
		"",
		"— ThreatEye",
	}, "\r\n")

	return m.send(ctx, toEmail, subject, body)
}

// SendSubscriptionExpired notifies an organization admin that their plan has lapsed.
func (m *SMTPMailer) SendSubscriptionExpired(ctx context.Context, toEmail, planName string) error {
	subject := "Your subscription has expired"
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("Your '%s' subscription has expired and your organization has been moved to the free tier.", planName),
		"",
		"Renew from the subscription page to restore your plan's seat limit and features.",
		"",
		"— ThreatEye",
	}, "\r\n")

	return m.send(ctx, toEmail, subject, body)
}

func (m *SMTPMailer) send(ctx context.Context, toEmail, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		m.cfg.From, toEmail, subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if m.cfg.UseTLS {
		return sendMailTLS(addr, m.cfg.Host, auth, m.cfg.From, []string{toEmail}, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{toEmail}, msg)
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
// Use this when UseTLS=true and the port is 465; for port 587 STARTTLS,
// smtp.SendMail handles the upgrade automatically — but we call this path for
// both so the config is unambiguous: UseTLS=true always means an encrypted connection.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		// Fall back to STARTTLS via the standard smtp.SendMail path (port 587 pattern)
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := c.Rcpt(addr); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", addr, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
