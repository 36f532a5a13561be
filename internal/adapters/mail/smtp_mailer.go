package mail

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// Config contains the SMTP settings
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	// Sender defaults to no-reply@<host>
	Sender string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer implements ports.Mailer over SMTP with HTML bodies
type SMTPMailer struct {
	cfg    Config
	auth   smtp.Auth
	send   sendFunc
	now    func() time.Time
	logger ports.Logger
}

// NewSMTPMailer creates a new SMTP mailer. Authentication is used only when both
// username and password are configured.
func NewSMTPMailer(cfg Config, logger ports.Logger) *SMTPMailer {
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@" + cfg.Host
		logger.Warn("SMTP sender not set, using default sender", ports.String("sender", cfg.Sender))
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPMailer{
		cfg:    cfg,
		auth:   auth,
		send:   smtp.SendMail,
		now:    time.Now,
		logger: logger,
	}
}

// Send delivers an HTML message to a single recipient
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to = strings.TrimSpace(to)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, m.auth, m.cfg.Sender, []string{to}, m.buildMessage(to, subject, htmlBody)); err != nil {
		m.logger.Error("SMTP send error", ports.String("to", to), ports.String("addr", addr), ports.Err(err))
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Info("Email sent", ports.String("to", to), ports.String("subject", subject))
	return nil
}

func (m *SMTPMailer) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", stripNewlines(subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
