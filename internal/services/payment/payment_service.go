package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/squareup-service/pkg/errors"
	"github.com/kevin07696/squareup-service/pkg/money"
	"github.com/kevin07696/squareup-service/pkg/observability"
	"github.com/kevin07696/squareup-service/pkg/timeutil"
)

// Gateway is the subset of the API client the payment flows call
type Gateway interface {
	CreatePayment(ctx context.Context, req *square.CreatePaymentRequest) (*square.Payment, error)
	GetPayment(ctx context.Context, paymentID, token string) (*square.Payment, error)
	CompletePayment(ctx context.Context, paymentID, token string) (*square.Payment, error)
	CancelPayment(ctx context.Context, paymentID, token string) (*square.Payment, error)
	RefundPayment(ctx context.Context, req *square.RefundPaymentRequest) (*square.Refund, error)
	SearchCustomers(ctx context.Context, email, phone, token string) ([]square.Customer, error)
	CreateCustomer(ctx context.Context, req *square.CreateCustomerRequest) (*square.Customer, error)
	CreateCard(ctx context.Context, req *square.CreateCardRequest) (*square.Card, error)
	RetrieveLocation(ctx context.Context, token, locationID string) (*square.Location, error)
}

// RecurringUserAgent is recorded on payments created by the scheduled subscription charge
const RecurringUserAgent = "CRON"

// Order history comments per payment status
const (
	commentAuthorized = "The card payment has been authorized but not yet captured."
	commentCaptured   = "The card payment was authorized and subsequently captured (i.e., completed)."
	commentVoided     = "The card payment was authorized and subsequently voided (i.e., canceled)."
	commentFailed     = "The card payment failed."
)

// StatusComment returns the order history comment for a payment status, "" when none applies
func StatusComment(status domain.PaymentStatus) string {
	switch status {
	case domain.PaymentStatusApproved:
		return commentAuthorized
	case domain.PaymentStatusCompleted:
		return commentCaptured
	case domain.PaymentStatusCanceled:
		return commentVoided
	case domain.PaymentStatusFailed:
		return commentFailed
	}
	return ""
}

// CredentialSource supplies the connected merchant and capture mode
type CredentialSource interface {
	Load(ctx context.Context) (*credentials.Record, error)
}

// ChargeRequest charges an order total. Total is in StoreCurrency and is converted to Currency;
// an empty Currency resolves to the location's currency.
type ChargeRequest struct {
	Billing           domain.BillingAddress
	Total             decimal.Decimal
	StoreCurrency     string
	Currency          string
	SourceID          string // card nonce or stored card id
	CustomerID        string // required for stored card sources
	VerificationToken string
	Email             string
	Phone             string
	IP                string
	UserAgent         string
	OrderID           int64
	// IdempotencyKey identifies the charge across client retries; empty mints a fresh key
	IdempotencyKey string
	// SaveCard stores the nonce as a card on file before charging it
	SaveCard bool
}

// ChargeResult is a recorded charge, plus the stored card when SaveCard was requested
type ChargeResult struct {
	Payment *domain.Payment
	Card    *square.Card
}

// Service runs synchronous payment operations and keeps Payment Records current
type Service struct {
	gateway    Gateway
	payments   ports.PaymentRepository
	orders     ports.OrderHistory
	currencies ports.CurrencyMetadata
	creds      CredentialSource
	alerts     *TokenAlerter
	converter  *money.Converter
	logger     *zap.Logger
	now        func() time.Time
	statuses   domain.OrderStatusMapper
}

// NewService creates a new payment service
func NewService(
	gateway Gateway,
	payments ports.PaymentRepository,
	orders ports.OrderHistory,
	currencies ports.CurrencyMetadata,
	creds CredentialSource,
	alerts *TokenAlerter,
	statuses domain.OrderStatusMapper,
	logger *zap.Logger,
) *Service {
	return &Service{
		gateway:    gateway,
		payments:   payments,
		orders:     orders,
		currencies: currencies,
		creds:      creds,
		alerts:     alerts,
		converter:  money.NewConverter(currencies),
		logger:     logger,
		now:        timeutil.Now,
		statuses:   statuses,
	}
}

// Charge creates a payment for an order, records it and appends the order history entry
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	return s.charge(ctx, req, true)
}

// ChargeRecurring charges a stored card for one subscription cycle and records the payment.
// The caller writes the order history.
func (s *Service) ChargeRecurring(ctx context.Context, req ChargeRequest) (*domain.Payment, error) {
	req.SaveCard = false
	req.UserAgent = RecurringUserAgent
	result, err := s.charge(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return result.Payment, nil
}

func (s *Service) charge(ctx context.Context, req ChargeRequest, withHistory bool) (*ChargeResult, error) {
	if err := s.validateCharge(req); err != nil {
		return nil, err
	}

	rec, err := s.creds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if req.Currency == "" {
		req.Currency = s.ResolveCurrency(ctx, rec, req.StoreCurrency)
	}
	converted := s.currencies.Convert(req.Total, req.StoreCurrency, req.Currency)
	amount, err := s.converter.ToMinorUnits(converted, req.Currency)
	if err != nil {
		return nil, pkgerrors.ValidationErrors{pkgerrors.NewValidationError("total", "is too large")}
	}
	if amount <= 0 {
		return nil, domain.ErrValidationAmountInvalid
	}

	address := toSquareAddress(req.Billing)
	phone := square.FormatPhone(req.Phone, req.Billing.Country)

	result := &ChargeResult{}
	sourceID, customerID := req.SourceID, req.CustomerID
	if req.SaveCard {
		card, err := s.storeCard(ctx, req, address, phone)
		if err != nil {
			return nil, s.alerts.Handle(ctx, err)
		}
		result.Card = card
		sourceID, customerID = card.ID, card.CustomerID
	}

	created, err := s.gateway.CreatePayment(ctx, &square.CreatePaymentRequest{
		IdempotencyKey:    req.IdempotencyKey,
		SourceID:          sourceID,
		CustomerID:        customerID,
		VerificationToken: req.VerificationToken,
		AmountMoney:       square.Money{Amount: amount, Currency: strings.ToUpper(req.Currency)},
		BillingAddress:    address,
		BuyerEmailAddress: req.Email,
		BuyerPhoneNumber:  phone,
		ReferenceID:       strconv.FormatInt(req.OrderID, 10),
	})
	if err != nil {
		s.logger.Error("Charge failed",
			zap.Int64("order_id", req.OrderID),
			zap.Int64("amount", amount),
			zap.String("currency", req.Currency),
			zap.Error(err))
		observability.RecordPaymentOperation("charge", "error", 0, strings.ToUpper(req.Currency))
		return nil, s.alerts.Handle(ctx, err)
	}
	observability.RecordPaymentOperation("charge", created.Status, amount, strings.ToUpper(req.Currency))

	payment := s.toRecord(created, rec.MerchantID, req.OrderID)
	payment.IP = req.IP
	payment.UserAgent = req.UserAgent
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to record payment %s: %w", created.ID, err)
	}

	if withHistory {
		if err := s.recordOrderStatus(ctx, payment, rec.DelayCapture, StatusComment(payment.Status)); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Payment charged",
		zap.String("payment_id", created.ID),
		zap.Int64("order_id", req.OrderID),
		zap.String("amount", s.converter.Format(amount, req.Currency)),
		zap.String("currency", req.Currency),
		zap.String("status", created.Status))

	result.Payment = payment
	return result, nil
}

// ResolveCurrency returns the connected location's currency when the host has it enabled,
// otherwise storeCurrency. Lookup failures fall back to storeCurrency.
func (s *Service) ResolveCurrency(ctx context.Context, rec *credentials.Record, storeCurrency string) string {
	locationID := rec.ActiveLocationID()
	if locationID == "" {
		return storeCurrency
	}
	location, err := s.gateway.RetrieveLocation(ctx, "", locationID)
	if err != nil || location == nil || location.Currency == "" {
		if err != nil {
			s.logger.Warn("Failed to retrieve location currency", zap.String("location_id", locationID), zap.Error(err))
		}
		return storeCurrency
	}
	if !s.currencies.IsEnabled(location.Currency) {
		return storeCurrency
	}
	return location.Currency
}

func (s *Service) validateCharge(req ChargeRequest) error {
	var errs pkgerrors.ValidationErrors
	if req.SourceID == "" {
		errs = append(errs, pkgerrors.NewValidationError("source_id", "is required"))
	}
	if strings.HasPrefix(req.SourceID, square.CardOnFilePrefix) && req.CustomerID == "" {
		errs = append(errs, pkgerrors.NewValidationError("customer_id", "is required for stored cards"))
	}
	if req.SaveCard && req.Email == "" {
		errs = append(errs, pkgerrors.NewValidationError("email", "is required to store a card"))
	}
	if req.StoreCurrency == "" {
		errs = append(errs, pkgerrors.NewValidationError("store_currency", "is required"))
	}
	if req.Currency != "" && !s.currencies.IsEnabled(req.Currency) {
		errs = append(errs, pkgerrors.NewValidationError("currency", "is not enabled"))
	}
	if !req.Total.IsPositive() {
		errs = append(errs, pkgerrors.NewValidationError("total", "must be positive"))
	}
	if err := validateIdempotencyKey(req.IdempotencyKey); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateIdempotencyKey(key string) *pkgerrors.ValidationError {
	if len(key) > square.MaxIdempotencyKeyLength {
		return pkgerrors.NewValidationError("idempotency_key", fmt.Sprintf("must be at most %d characters", square.MaxIdempotencyKeyLength))
	}
	return nil
}

// storeCard finds or creates the customer and stores the nonce as a card on file
func (s *Service) storeCard(ctx context.Context, req ChargeRequest, address *square.Address, phone string) (*square.Card, error) {
	customers, err := s.gateway.SearchCustomers(ctx, req.Email, phone, "")
	if err != nil {
		return nil, err
	}

	var customerID string
	if len(customers) > 0 {
		customerID = customers[0].ID
	} else {
		customer, err := s.gateway.CreateCustomer(ctx, &square.CreateCustomerRequest{
			Address:      address,
			EmailAddress: req.Email,
			PhoneNumber:  phone,
		})
		if err != nil {
			return nil, err
		}
		customerID = customer.ID
	}

	card, err := s.gateway.CreateCard(ctx, &square.CreateCardRequest{
		SourceID:          req.SourceID,
		VerificationToken: req.VerificationToken,
		CustomerID:        customerID,
		BillingAddress:    address,
	})
	if err != nil {
		return nil, err
	}
	if card.CustomerID == "" {
		card.CustomerID = customerID
	}
	return card, nil
}

// Capture completes a delayed-capture payment
func (s *Service) Capture(ctx context.Context, networkPaymentID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByNetworkID(ctx, networkPaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.CanBeCaptured() {
		return nil, domain.NewDomainError(domain.ErrorCodePaymentInvalidState,
			fmt.Sprintf("cannot capture payment in status %s", payment.Status))
	}

	updated, err := s.gateway.CompletePayment(ctx, networkPaymentID, "")
	if err != nil {
		observability.RecordPaymentOperation("capture", "error", 0, payment.Currency)
		return nil, s.alerts.Handle(ctx, err)
	}
	recordNetworkOperation("capture", updated, payment.Currency)
	return s.applyNetworkState(ctx, payment, updated)
}

// Void cancels a delayed-capture payment before capture
func (s *Service) Void(ctx context.Context, networkPaymentID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByNetworkID(ctx, networkPaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.CanBeVoided() {
		return nil, domain.NewDomainError(domain.ErrorCodePaymentInvalidState,
			fmt.Sprintf("cannot void payment in status %s", payment.Status))
	}

	updated, err := s.gateway.CancelPayment(ctx, networkPaymentID, "")
	if err != nil {
		observability.RecordPaymentOperation("void", "error", 0, payment.Currency)
		return nil, s.alerts.Handle(ctx, err)
	}
	observability.RecordPaymentOperation("void", networkStatus(updated), 0, payment.Currency)
	return s.applyNetworkState(ctx, payment, updated)
}

// Refund refunds amount minor units of a captured payment. The refunded total is
// reconciled by the refund.created notification, not here. Retrying with the same
// idempotencyKey cannot refund twice; an empty key mints a fresh one.
func (s *Service) Refund(ctx context.Context, networkPaymentID string, amount int64, reason, idempotencyKey string) (*square.Refund, error) {
	if amount <= 0 {
		return nil, domain.ErrValidationAmountInvalid
	}
	if err := validateIdempotencyKey(idempotencyKey); err != nil {
		return nil, pkgerrors.ValidationErrors{err}
	}

	payment, err := s.payments.GetByNetworkID(ctx, networkPaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, domain.NewDomainError(domain.ErrorCodePaymentInvalidState,
			fmt.Sprintf("cannot refund payment in status %s", payment.Status))
	}
	if amount > payment.RefundableAmount() {
		return nil, domain.NewDomainError(domain.ErrorCodeRefundExceedsAvailable,
			fmt.Sprintf("refund of %d exceeds refundable %d", amount, payment.RefundableAmount()))
	}

	refund, err := s.gateway.RefundPayment(ctx, &square.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		PaymentID:      networkPaymentID,
		Reason:         reason,
		AmountMoney:    square.Money{Amount: amount, Currency: payment.Currency},
	})
	if err != nil {
		observability.RecordPaymentOperation("refund", "error", 0, payment.Currency)
		return nil, s.alerts.Handle(ctx, err)
	}
	observability.RecordPaymentOperation("refund", refund.Status, amount, payment.Currency)

	s.logger.Info("Refund requested",
		zap.String("payment_id", networkPaymentID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", amount),
		zap.String("status", refund.Status))
	return refund, nil
}

// Refresh reloads a payment from the network and stores its current status
func (s *Service) Refresh(ctx context.Context, networkPaymentID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByNetworkID(ctx, networkPaymentID)
	if err != nil {
		return nil, err
	}

	fetched, err := s.gateway.GetPayment(ctx, networkPaymentID, "")
	if err != nil {
		return nil, s.alerts.Handle(ctx, err)
	}
	if fetched == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return s.applyNetworkState(ctx, payment, fetched)
}

// recordNetworkOperation counts an operation with the amount the network reports
func recordNetworkOperation(operation string, network *square.Payment, currency string) {
	var amount int64
	if network != nil {
		amount = network.AmountMoney.Amount
	}
	observability.RecordPaymentOperation(operation, networkStatus(network), amount, currency)
}

func networkStatus(network *square.Payment) string {
	if network == nil || network.Status == "" {
		return "unknown"
	}
	return network.Status
}

// applyNetworkState merges the network's view into the record. A status change appends order history.
func (s *Service) applyNetworkState(ctx context.Context, payment *domain.Payment, network *square.Payment) (*domain.Payment, error) {
	if network == nil {
		return payment, nil
	}

	previous := payment.Status
	fresh := s.toRecord(network, payment.MerchantID, payment.OrderID)

	payment.Status = fresh.Status
	payment.UpdatedAt = fresh.UpdatedAt
	payment.Amount = fresh.Amount
	payment.NetworkOrderID = fresh.NetworkOrderID
	if fresh.CustomerID != "" {
		payment.CustomerID = fresh.CustomerID
	}
	if fresh.CardFingerprint != "" {
		payment.CardFingerprint = fresh.CardFingerprint
	}

	if err := s.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", payment.NetworkPaymentID, err)
	}

	if previous != payment.Status {
		rec, err := s.creds.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		if err := s.recordOrderStatus(ctx, payment, rec.DelayCapture, StatusComment(payment.Status)); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

func (s *Service) recordOrderStatus(ctx context.Context, payment *domain.Payment, delayCapture bool, comment string) error {
	if payment.OrderID == 0 {
		return nil
	}
	mapper := s.statuses
	mapper.DelayCapture = delayCapture
	statusID := mapper.Map(payment.Status)
	if statusID == 0 {
		return nil
	}
	if err := s.orders.AddHistory(ctx, payment.OrderID, statusID, comment, false); err != nil {
		return fmt.Errorf("failed to add order history: %w", err)
	}
	return nil
}

// toRecord maps a network payment onto a Payment Record
func (s *Service) toRecord(p *square.Payment, merchantID string, orderID int64) *domain.Payment {
	record := &domain.Payment{
		NetworkPaymentID: p.ID,
		MerchantID:       merchantID,
		LocationID:       p.LocationID,
		NetworkOrderID:   p.OrderID,
		CustomerID:       p.CustomerID,
		Currency:         p.AmountMoney.Currency,
		Amount:           p.AmountMoney.Amount,
		Status:           domain.PaymentStatus(p.Status),
		SourceType:       p.SourceType,
		OrderID:          orderID,
		CreatedAt:        parseTimestamp(p.CreatedAt, s.now()),
		UpdatedAt:        parseTimestamp(p.UpdatedAt, s.now()),
	}
	if p.CardDetails != nil {
		record.CardFingerprint = p.CardDetails.Card.Fingerprint
	}
	if p.ApplicationDetails != nil {
		record.SquareProduct = p.ApplicationDetails.SquareProduct
		record.ApplicationID = p.ApplicationDetails.ApplicationID
	}
	if p.BillingAddress != nil {
		record.Billing = fromSquareAddress(*p.BillingAddress)
	}
	return record
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	return timeutil.ParseTimestampOr(raw, fallback)
}

func toSquareAddress(b domain.BillingAddress) *square.Address {
	if b == (domain.BillingAddress{}) {
		return nil
	}
	return &square.Address{
		FirstName:                    b.FirstName,
		LastName:                     b.LastName,
		Organization:                 b.Organization,
		AddressLine1:                 b.AddressLine1,
		AddressLine2:                 b.AddressLine2,
		AddressLine3:                 b.AddressLine3,
		Locality:                     b.Locality,
		Sublocality:                  b.Sublocality,
		Sublocality2:                 b.Sublocality2,
		Sublocality3:                 b.Sublocality3,
		AdministrativeDistrictLevel1: b.AdministrativeDistrictLevel1,
		AdministrativeDistrictLevel2: b.AdministrativeDistrictLevel2,
		AdministrativeDistrictLevel3: b.AdministrativeDistrictLevel3,
		PostalCode:                   b.PostalCode,
		Country:                      b.Country,
	}
}

func fromSquareAddress(a square.Address) domain.BillingAddress {
	return domain.BillingAddress{
		FirstName:                    a.FirstName,
		LastName:                     a.LastName,
		Organization:                 a.Organization,
		AddressLine1:                 a.AddressLine1,
		AddressLine2:                 a.AddressLine2,
		AddressLine3:                 a.AddressLine3,
		Locality:                     a.Locality,
		Sublocality:                  a.Sublocality,
		Sublocality2:                 a.Sublocality2,
		Sublocality3:                 a.Sublocality3,
		AdministrativeDistrictLevel1: a.AdministrativeDistrictLevel1,
		AdministrativeDistrictLevel2: a.AdministrativeDistrictLevel2,
		AdministrativeDistrictLevel3: a.AdministrativeDistrictLevel3,
		PostalCode:                   a.PostalCode,
		Country:                      a.Country,
	}
}

// IsInvalidState reports whether err rejected an operation because of the payment's status
func IsInvalidState(err error) bool {
	return errors.Is(err, domain.ErrPaymentInvalidState)
}
