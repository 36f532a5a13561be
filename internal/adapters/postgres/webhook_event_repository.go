package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/squareup-service/internal/domain"
)

const webhookEventColumns = `webhook_event_id, event_id, event_type, merchant_id, payment_id, data,
	processed, created_at, processed_at`

// WebhookEventRepository implements ports.WebhookEventRepository.
// Uniqueness of event_id is enforced by the idx_squareup_webhook_event_event_id index.
type WebhookEventRepository struct {
	db *DB
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// IsProcessed reports whether the event exists and has been processed
func (r *WebhookEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	var processed bool
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT processed FROM squareup_webhook_event WHERE event_id = $1`, eventID,
	).Scan(&processed)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return processed, nil
}

// Get returns the stored event
func (r *WebhookEventRepository) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	event, err := scanWebhookEvent(r.db.conn(ctx).QueryRow(ctx,
		`SELECT `+webhookEventColumns+` FROM squareup_webhook_event WHERE event_id = $1`, eventID))
	if isNoRows(err) {
		return nil, domain.ErrWebhookEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return event, nil
}

// Store inserts the event. A concurrent or repeated delivery of the same event_id is
// ignored and reported as inserted=false.
func (r *WebhookEventRepository) Store(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	err := r.db.conn(ctx).QueryRow(ctx, `
		INSERT INTO squareup_webhook_event (event_id, event_type, merchant_id, payment_id, data, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		ON CONFLICT (event_id) DO NOTHING
		RETURNING webhook_event_id, created_at`,
		event.EventID, event.Type, event.MerchantID, event.RelatedPaymentID, string(event.Payload),
	).Scan(&event.ID, &event.CreatedAt)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store webhook event: %w", err)
	}
	return true, nil
}

// Lock takes a row lock on the event for the surrounding transaction and reports
// whether it is processed. Concurrent deliveries of one event id serialize here.
func (r *WebhookEventRepository) Lock(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	var processed bool
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT processed FROM squareup_webhook_event WHERE event_id = $1 FOR UPDATE`, eventID).Scan(&processed)
	if isNoRows(err) {
		return false, domain.ErrWebhookEventNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock webhook event: %w", err)
	}
	return processed, nil
}

// MarkProcessed flags the event as processed; already processed events keep their timestamp
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	_, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE squareup_webhook_event SET processed = TRUE, processed_at = NOW()
		WHERE event_id = $1 AND processed = FALSE`, eventID)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// List returns events newest first
func (r *WebhookEventRepository) List(ctx context.Context, limit, offset int32) ([]*domain.WebhookEvent, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+webhookEventColumns+` FROM squareup_webhook_event
		ORDER BY webhook_event_id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.WebhookEvent, 0)
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Count returns the number of stored events
func (r *WebhookEventRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	var count int64
	if err := r.db.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM squareup_webhook_event`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count webhook events: %w", err)
	}
	return count, nil
}

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var (
		e       domain.WebhookEvent
		payload string
	)
	err := row.Scan(&e.ID, &e.EventID, &e.Type, &e.MerchantID, &e.RelatedPaymentID, &payload,
		&e.Processed, &e.CreatedAt, &e.ProcessedAt)
	if err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	return &e, nil
}
