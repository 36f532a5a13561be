package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/squareup-service/internal/domain"
)

const subscriptionColumns = `subscription_id, order_id, customer_email, card_id, customer_id, description,
	currency, subscription_status_id, date_next,
	trial_status, trial_frequency, trial_price::text, trial_cycle, trial_duration, trial_remaining,
	frequency, price::text, cycle, duration, remaining`

// SubscriptionRepository implements ports.SubscriptionRepository on the host recurring tables
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Get retrieves a subscription by ID
func (r *SubscriptionRepository) Get(ctx context.Context, subscriptionID int64) (*domain.Subscription, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	sub, err := scanSubscription(r.db.conn(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription WHERE subscription_id = $1`, subscriptionID))
	if isNoRows(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListDue returns active subscriptions due at or before now, oldest due first
func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+subscriptionColumns+` FROM subscription
		WHERE subscription_status_id = $1 AND date_next <= $2
		ORDER BY date_next ASC, subscription_id ASC`,
		int(domain.SubscriptionStatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// AddHistory records a status change and applies it to the subscription
func (r *SubscriptionRepository) AddHistory(ctx context.Context, subscriptionID int64, statusID int, comment string) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE subscription SET subscription_status_id = $2 WHERE subscription_id = $1`,
			subscriptionID, statusID)
		if err != nil {
			return fmt.Errorf("update subscription status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSubscriptionNotFound
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO subscription_history (subscription_id, subscription_status_id, comment, date_added)
			VALUES ($1, $2, $3, NOW())`,
			subscriptionID, statusID, comment); err != nil {
			return fmt.Errorf("insert subscription history: %w", err)
		}
		return nil
	})
}

// AddLog appends an entry to the subscription's transaction log
func (r *SubscriptionRepository) AddLog(ctx context.Context, subscriptionID int64, code, description string, success bool) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	if _, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO subscription_log (subscription_id, code, description, status, date_added)
		VALUES ($1, $2, $3, $4, NOW())`,
		subscriptionID, code, description, success); err != nil {
		return fmt.Errorf("insert subscription log: %w", err)
	}
	return nil
}

// SetTrialRemaining stores the remaining trial cycles
func (r *SubscriptionRepository) SetTrialRemaining(ctx context.Context, subscriptionID int64, remaining int) error {
	return r.exec(ctx, `UPDATE subscription SET trial_remaining = $2 WHERE subscription_id = $1`,
		subscriptionID, remaining)
}

// SetRemaining stores the remaining regular cycles
func (r *SubscriptionRepository) SetRemaining(ctx context.Context, subscriptionID int64, remaining int) error {
	return r.exec(ctx, `UPDATE subscription SET remaining = $2 WHERE subscription_id = $1`,
		subscriptionID, remaining)
}

// SetDateNext stores the next charge date
func (r *SubscriptionRepository) SetDateNext(ctx context.Context, subscriptionID int64, next time.Time) error {
	return r.exec(ctx, `UPDATE subscription SET date_next = $2 WHERE subscription_id = $1`,
		subscriptionID, next)
}

func (r *SubscriptionRepository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	tag, err := r.db.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		s                domain.Subscription
		status           int
		trialFrequency   string
		regularFrequency string
	)
	err := row.Scan(
		&s.ID, &s.OrderID, &s.CustomerEmail, &s.CardID, &s.CustomerID, &s.Description,
		&s.Currency, &status, &s.DateNext,
		&s.TrialEnabled, &trialFrequency, &s.Trial.Price, &s.Trial.Cycle, &s.Trial.Duration, &s.Trial.Remaining,
		&regularFrequency, &s.Regular.Price, &s.Regular.Cycle, &s.Regular.Duration, &s.Regular.Remaining,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SubscriptionStatus(status)
	s.Trial.Frequency = domain.Frequency(trialFrequency)
	s.Regular.Frequency = domain.Frequency(regularFrequency)
	return &s, nil
}
