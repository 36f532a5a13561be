package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/squareup-service/internal/domain"
)

const paymentColumns = `squareup_payment_id, store_order_id, payment_id, merchant_id, location_id, order_id,
	customer_id, created_at, updated_at, amount, currency, status, source_type, square_product,
	application_id, refunded_amount, refunded_currency, card_fingerprint, billing, ip, user_agent`

// PaymentRepository implements ports.PaymentRepository
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment record and sets its ID
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	billing, err := json.Marshal(payment.Billing)
	if err != nil {
		return fmt.Errorf("marshal billing: %w", err)
	}

	err = r.db.conn(ctx).QueryRow(ctx, `
		INSERT INTO squareup_payment (
			store_order_id, payment_id, merchant_id, location_id, order_id, customer_id,
			created_at, updated_at, amount, currency, status, source_type, square_product,
			application_id, refunded_amount, refunded_currency, card_fingerprint, billing, ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING squareup_payment_id`,
		payment.OrderID, payment.NetworkPaymentID, payment.MerchantID, payment.LocationID,
		payment.NetworkOrderID, payment.CustomerID, payment.CreatedAt, payment.UpdatedAt,
		payment.Amount, payment.Currency, string(payment.Status), payment.SourceType,
		payment.SquareProduct, payment.ApplicationID, payment.RefundedAmount, payment.RefundedCurrency,
		payment.CardFingerprint, billing, payment.IP, payment.UserAgent,
	).Scan(&payment.ID)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment record by its local id
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM squareup_payment WHERE squareup_payment_id = $1`, id)
}

// GetByNetworkID retrieves a payment record by the network payment id
func (r *PaymentRepository) GetByNetworkID(ctx context.Context, networkPaymentID string) (*domain.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM squareup_payment WHERE payment_id = $1`, networkPaymentID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	payment, err := scanPayment(r.db.conn(ctx).QueryRow(ctx, query, arg))
	if isNoRows(err) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

// ListByOrder lists the payment records of a host order, newest first
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID int64) ([]*domain.Payment, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+paymentColumns+` FROM squareup_payment
		WHERE store_order_id = $1 ORDER BY squareup_payment_id DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments by order: %w", err)
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// Update overwrites the mutable fields of an existing record
func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	billing, err := json.Marshal(payment.Billing)
	if err != nil {
		return fmt.Errorf("marshal billing: %w", err)
	}

	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE squareup_payment SET
			status = $2, amount = $3, currency = $4, refunded_amount = $5, refunded_currency = $6,
			customer_id = $7, card_fingerprint = $8, billing = $9, updated_at = $10
		WHERE payment_id = $1`,
		payment.NetworkPaymentID, string(payment.Status), payment.Amount, payment.Currency,
		payment.RefundedAmount, payment.RefundedCurrency, payment.CustomerID,
		payment.CardFingerprint, billing, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// UpdateStatus sets the status of a record
func (r *PaymentRepository) UpdateStatus(ctx context.Context, networkPaymentID string, status domain.PaymentStatus, updatedAt time.Time) error {
	return r.exec(ctx, `UPDATE squareup_payment SET status = $2, updated_at = $3 WHERE payment_id = $1`,
		networkPaymentID, string(status), updatedAt)
}

// AddRefundedAmount atomically adds amount to refunded_amount and returns the new total
func (r *PaymentRepository) AddRefundedAmount(ctx context.Context, networkPaymentID string, amount int64, currency string) (int64, error) {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	var total int64
	err := r.db.conn(ctx).QueryRow(ctx, `
		UPDATE squareup_payment
		SET refunded_amount = refunded_amount + $2, refunded_currency = $3
		WHERE payment_id = $1
		RETURNING refunded_amount`,
		networkPaymentID, amount, currency,
	).Scan(&total)
	if isNoRows(err) {
		return 0, domain.ErrPaymentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add refunded amount: %w", err)
	}
	return total, nil
}

// SetCustomerID records the customer a payment was made by
func (r *PaymentRepository) SetCustomerID(ctx context.Context, networkPaymentID, customerID string) error {
	return r.exec(ctx, `UPDATE squareup_payment SET customer_id = $2 WHERE payment_id = $1`,
		networkPaymentID, customerID)
}

func (r *PaymentRepository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	tag, err := r.db.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p       domain.Payment
		status  string
		billing []byte
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.NetworkPaymentID, &p.MerchantID, &p.LocationID, &p.NetworkOrderID,
		&p.CustomerID, &p.CreatedAt, &p.UpdatedAt, &p.Amount, &p.Currency, &status, &p.SourceType,
		&p.SquareProduct, &p.ApplicationID, &p.RefundedAmount, &p.RefundedCurrency,
		&p.CardFingerprint, &billing, &p.IP, &p.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &p.Billing); err != nil {
			return nil, fmt.Errorf("unmarshal billing: %w", err)
		}
	}
	return &p, nil
}
