package ports

import (
	"context"
	"time"

	"github.com/kevin07696/squareup-service/internal/domain"
)

// PaymentRepository persists Payment Records.
// GetByNetworkID returns domain.ErrPaymentNotFound when no record exists.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetByNetworkID(ctx context.Context, networkPaymentID string) (*domain.Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*domain.Payment, error)
	// Update overwrites the mutable fields (status, amounts, refunds, billing, card) of an existing record
	Update(ctx context.Context, payment *domain.Payment) error
	UpdateStatus(ctx context.Context, networkPaymentID string, status domain.PaymentStatus, updatedAt time.Time) error
	// AddRefundedAmount atomically adds amount to refunded_amount and returns the new total
	AddRefundedAmount(ctx context.Context, networkPaymentID string, amount int64, currency string) (int64, error)
	SetCustomerID(ctx context.Context, networkPaymentID, customerID string) error
}
