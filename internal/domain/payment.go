package domain

import "time"

// PaymentStatus is the payment network's status for a payment
type PaymentStatus string

const (
	PaymentStatusApproved  PaymentStatus = "APPROVED"  // Authorized, awaiting capture (delayed capture)
	PaymentStatusPending   PaymentStatus = "PENDING"   // Accepted, not yet settled
	PaymentStatusCompleted PaymentStatus = "COMPLETED" // Captured
	PaymentStatusCanceled  PaymentStatus = "CANCELED"  // Voided before capture
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsKnown reports whether s is one of the network statuses this service understands
func (s PaymentStatus) IsKnown() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusPending, PaymentStatusCompleted, PaymentStatusCanceled, PaymentStatusFailed:
		return true
	}
	return false
}

// BillingAddress is the buyer address attached to a payment
type BillingAddress struct {
	FirstName                    string `json:"first_name,omitempty"`
	LastName                     string `json:"last_name,omitempty"`
	Organization                 string `json:"organization,omitempty"`
	AddressLine1                 string `json:"address_line_1,omitempty"`
	AddressLine2                 string `json:"address_line_2,omitempty"`
	AddressLine3                 string `json:"address_line_3,omitempty"`
	Locality                     string `json:"locality,omitempty"`
	Sublocality                  string `json:"sublocality,omitempty"`
	Sublocality2                 string `json:"sublocality_2,omitempty"`
	Sublocality3                 string `json:"sublocality_3,omitempty"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1,omitempty"`
	AdministrativeDistrictLevel2 string `json:"administrative_district_level_2,omitempty"`
	AdministrativeDistrictLevel3 string `json:"administrative_district_level_3,omitempty"`
	PostalCode                   string `json:"postal_code,omitempty"`
	Country                      string `json:"country,omitempty"`
}

// Payment mirrors a payment network transaction (Payment Record).
// Records are never deleted; RefundedAmount only grows.
type Payment struct {
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Billing          BillingAddress `json:"billing"`
	NetworkPaymentID string         `json:"network_payment_id"`
	MerchantID       string         `json:"merchant_id"`
	LocationID       string         `json:"location_id"`
	NetworkOrderID   string         `json:"network_order_id"`
	CustomerID       string         `json:"customer_id"`
	Currency         string         `json:"currency"`
	Status           PaymentStatus  `json:"status"`
	SourceType       string         `json:"source_type"`
	RefundedCurrency string         `json:"refunded_currency"`
	CardFingerprint  string         `json:"card_fingerprint"`
	SquareProduct    string         `json:"square_product"`
	ApplicationID    string         `json:"application_id"`
	IP               string         `json:"ip"`
	UserAgent        string         `json:"user_agent"`
	ID               int64          `json:"id"`
	OrderID          int64          `json:"order_id"`
	Amount           int64          `json:"amount"`
	RefundedAmount   int64          `json:"refunded_amount"`
}

// RefundableAmount returns how much of the payment can still be refunded, in minor units
func (p *Payment) RefundableAmount() int64 {
	remaining := p.Amount - p.RefundedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanBeCaptured returns true if the payment is authorized but not yet captured
func (p *Payment) CanBeCaptured() bool {
	return p.Status == PaymentStatusApproved
}

// CanBeVoided returns true if the payment can still be canceled
func (p *Payment) CanBeVoided() bool {
	return p.Status == PaymentStatusApproved
}

// CanBeRefunded returns true if the payment has been captured and is not fully refunded
func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentStatusCompleted && p.RefundableAmount() > 0
}
