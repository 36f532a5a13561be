package ports

import (
	"context"
	"time"
)

// Mailer sends transactional e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NotificationThrottle suppresses repeated notifications of the same kind.
type NotificationThrottle interface {
	// Allow reports whether a notification of kind may be sent now, and if so
	// records the send so further calls within window return false
	Allow(ctx context.Context, kind string, window time.Duration) (bool, error)
}
