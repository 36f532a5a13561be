package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/squareup-service/test/mocks"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestMailer(cfg Config, sendErr error) (*SMTPMailer, *capturedMail, *mocks.MockLogger) {
	logger := mocks.NewMockLogger()
	m := NewSMTPMailer(cfg, logger)
	m.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	captured := &capturedMail{}
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr, captured.auth, captured.from, captured.to, captured.msg = addr, a, from, to, string(msg)
		return sendErr
	}
	return m, captured, logger
}

func TestSMTPMailer_Send(t *testing.T) {
	m, captured, _ := newTestMailer(Config{
		Host:     "smtp.example.com",
		Port:     "587",
		Username: "user",
		Password: "pass",
		Sender:   "shop@example.com",
	}, nil)

	err := m.Send(context.Background(), "admin@example.com", "Square CRON job summary", "<strong>ok</strong>")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", captured.addr)
	assert.NotNil(t, captured.auth)
	assert.Equal(t, "shop@example.com", captured.from)
	assert.Equal(t, []string{"admin@example.com"}, captured.to)
	assert.Contains(t, captured.msg, "To: admin@example.com\r\n")
	assert.Contains(t, captured.msg, "Subject: Square CRON job summary\r\n")
	assert.Contains(t, captured.msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<strong>ok</strong>")
}

func TestSMTPMailer_Defaults(t *testing.T) {
	m, captured, logger := newTestMailer(Config{Host: "localhost", Port: "25"}, nil)

	require.NoError(t, m.Send(context.Background(), "admin@example.com", "s", "b"))

	assert.Nil(t, captured.auth)
	assert.Equal(t, "no-reply@localhost", captured.from)
	assert.True(t, logger.Logged("SMTP sender not set"))
}

func TestSMTPMailer_HeaderInjection(t *testing.T) {
	m, captured, _ := newTestMailer(Config{Host: "localhost", Port: "25", Sender: "a@b.c"}, nil)

	err := m.Send(context.Background(), "admin@example.com\r\nBcc: x@evil.test", "s", "b")
	assert.Error(t, err)
	assert.Empty(t, captured.msg)

	require.NoError(t, m.Send(context.Background(), "admin@example.com", "Hello\r\nBcc: x@evil.test", "b"))
	assert.NotContains(t, captured.msg, "\r\nBcc:")
}

func TestSMTPMailer_Errors(t *testing.T) {
	m, _, logger := newTestMailer(Config{Host: "localhost", Port: "25", Sender: "a@b.c"}, errors.New("connection refused"))

	err := m.Send(context.Background(), "admin@example.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
	assert.True(t, logger.Logged("SMTP send error"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "admin@example.com", "s", "b"), context.Canceled)
}
