package ports

import "context"

// OrderHistory is the host's order persistence, reduced to what payment flows need.
type OrderHistory interface {
	// CurrentStatus returns the order's current status id (0 when the order is unknown)
	CurrentStatus(ctx context.Context, orderID int64) (int, error)
	// AddHistory appends a history entry and moves the order to statusID
	AddHistory(ctx context.Context, orderID int64, statusID int, comment string, notify bool) error
}
