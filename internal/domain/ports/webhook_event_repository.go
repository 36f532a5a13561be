package ports

import (
	"context"

	"github.com/kevin07696/squareup-service/internal/domain"
)

// WebhookEventRepository persists Webhook Event Records.
// The store must enforce uniqueness of event_id.
type WebhookEventRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// Get returns the stored event; domain.ErrWebhookEventNotFound when absent
	Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
	// Store inserts the event; a duplicate event_id is silently ignored (inserted=false)
	Store(ctx context.Context, event *domain.WebhookEvent) (inserted bool, err error)
	// Lock holds the event row until the surrounding transaction ends and reports whether it is processed
	Lock(ctx context.Context, eventID string) (processed bool, err error)
	MarkProcessed(ctx context.Context, eventID string) error
	List(ctx context.Context, limit, offset int32) ([]*domain.WebhookEvent, error)
	Count(ctx context.Context) (int64, error)
}
