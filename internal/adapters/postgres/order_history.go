package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// OrderHistory implements ports.OrderHistory on the host order tables
type OrderHistory struct {
	db *DB
}

// NewOrderHistory creates a new order history store
func NewOrderHistory(db *DB) *OrderHistory {
	return &OrderHistory{db: db}
}

// CurrentStatus returns the order's status id, 0 for unknown orders
func (o *OrderHistory) CurrentStatus(ctx context.Context, orderID int64) (int, error) {
	ctx, cancel := o.db.queryContext(ctx)
	defer cancel()

	var status int
	err := o.db.conn(ctx).QueryRow(ctx, `SELECT order_status_id FROM "order" WHERE order_id = $1`, orderID).Scan(&status)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get order status: %w", err)
	}
	return status, nil
}

// AddHistory appends a history entry and moves the order to statusID in one transaction
func (o *OrderHistory) AddHistory(ctx context.Context, orderID int64, statusID int, comment string, notify bool) error {
	ctx, cancel := o.db.queryContext(ctx)
	defer cancel()

	return o.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE "order" SET order_status_id = $2, date_modified = NOW() WHERE order_id = $1`,
			orderID, statusID)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("order %d not found", orderID)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO order_history (order_id, order_status_id, notify, comment, date_added)
			VALUES ($1, $2, $3, $4, NOW())`,
			orderID, statusID, notify, comment); err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
		return nil
	})
}
