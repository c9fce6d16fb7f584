package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// ErrMailerDisabled is returned when SMTP settings are incomplete.
var ErrMailerDisabled = errors.New("smtp not configured")

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders messages and sends them over SMTP.
type Mailer struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewMailer returns a Mailer using net/smtp.
func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// Enabled reports whether host and port are configured.
func (m *Mailer) Enabled() bool { return m.cfg.Host != "" && m.cfg.Port != "" }

// Deliver renders msg and sends it.
func (m *Mailer) Deliver(ctx context.Context, msg Message) error {
	if !m.Enabled() {
		return ErrMailerDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	email, err := Render(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		from, email.To, email.Subject, strings.ReplaceAll(email.Body, "\n", "\r\n"))
	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := m.send(addr, auth, from, []string{email.To}, []byte(body)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
