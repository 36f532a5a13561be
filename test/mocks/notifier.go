package mocks

import (
	"context"
	"sync"
	"time"
)

// SentMail is a captured e-mail
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// Mailer captures sent e-mail
type Mailer struct {
	Sent []SentMail
	Err  error
	mu   sync.Mutex
}

func (m *Mailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Throttle is an in-memory ports.NotificationThrottle driven by a settable clock
type Throttle struct {
	Now  func() time.Time
	last map[string]time.Time
	mu   sync.Mutex
}

// NewThrottle creates a throttle using the wall clock
func NewThrottle() *Throttle {
	return &Throttle{Now: time.Now, last: map[string]time.Time{}}
}

func (t *Throttle) Allow(_ context.Context, kind string, window time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.Now()
	if last, ok := t.last[kind]; ok && now.Sub(last) < window {
		return false, nil
	}
	t.last[kind] = now
	return true, nil
}
