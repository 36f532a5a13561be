package ports

import (
	"context"
	"time"

	"github.com/kevin07696/squareup-service/internal/domain"
)

// SubscriptionRepository is the host's recurring-order persistence.
type SubscriptionRepository interface {
	Get(ctx context.Context, subscriptionID int64) (*domain.Subscription, error)
	// ListDue returns active subscriptions whose next charge date is at or before now
	ListDue(ctx context.Context, now time.Time) ([]*domain.Subscription, error)
	AddHistory(ctx context.Context, subscriptionID int64, statusID int, comment string) error
	AddLog(ctx context.Context, subscriptionID int64, code, description string, success bool) error
	SetTrialRemaining(ctx context.Context, subscriptionID int64, remaining int) error
	SetRemaining(ctx context.Context, subscriptionID int64, remaining int) error
	SetDateNext(ctx context.Context, subscriptionID int64, next time.Time) error
}
