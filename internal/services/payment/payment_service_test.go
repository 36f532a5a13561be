package payment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	pkgerrors "github.com/kevin07696/squareup-service/pkg/errors"
	"github.com/kevin07696/squareup-service/test/mocks"
)

// MockGateway implements Gateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayment(ctx context.Context, req *square.CreatePaymentRequest) (*square.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Payment), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, paymentID, token string) (*square.Payment, error) {
	args := m.Called(ctx, paymentID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Payment), args.Error(1)
}

func (m *MockGateway) CompletePayment(ctx context.Context, paymentID, token string) (*square.Payment, error) {
	args := m.Called(ctx, paymentID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Payment), args.Error(1)
}

func (m *MockGateway) CancelPayment(ctx context.Context, paymentID, token string) (*square.Payment, error) {
	args := m.Called(ctx, paymentID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Payment), args.Error(1)
}

func (m *MockGateway) RefundPayment(ctx context.Context, req *square.RefundPaymentRequest) (*square.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Refund), args.Error(1)
}

func (m *MockGateway) SearchCustomers(ctx context.Context, email, phone, token string) ([]square.Customer, error) {
	args := m.Called(ctx, email, phone, token)
	var customers []square.Customer
	if args.Get(0) != nil {
		customers = args.Get(0).([]square.Customer)
	}
	return customers, args.Error(1)
}

func (m *MockGateway) CreateCustomer(ctx context.Context, req *square.CreateCustomerRequest) (*square.Customer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Customer), args.Error(1)
}

func (m *MockGateway) RetrieveLocation(ctx context.Context, token, locationID string) (*square.Location, error) {
	args := m.Called(ctx, token, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Location), args.Error(1)
}

func (m *MockGateway) CreateCard(ctx context.Context, req *square.CreateCardRequest) (*square.Card, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*square.Card), args.Error(1)
}

const (
	statusAuthorized = 2
	statusCaptured   = 5
	statusVoided     = 7
	statusFailed     = 10
)

type testEnv struct {
	service    *Service
	gateway    *MockGateway
	payments   *mocks.PaymentRepository
	orders     *mocks.OrderHistory
	settings   *mocks.SettingsStore
	currencies *mocks.Currencies
	mailer     *mocks.Mailer
}

// Test setup helper
func setupService(t *testing.T, settings map[string]string, payments ...*domain.Payment) *testEnv {
	t.Helper()
	values := map[string]string{
		credentials.KeyMerchantID: "MERCHANT1",
		credentials.KeyLocationID: "LOC1",
	}
	for k, v := range settings {
		values[k] = v
	}

	env := &testEnv{
		gateway:    new(MockGateway),
		payments:   mocks.NewPaymentRepository(payments...),
		orders:     mocks.NewOrderHistory(nil),
		settings:   mocks.NewSettingsStore(values),
		currencies: mocks.NewCurrencies(),
		mailer:     &mocks.Mailer{},
	}
	creds := credentials.NewStore(env.settings, mocks.NewMockLogger())
	alerts := NewTokenAlerter(env.mailer, mocks.NewThrottle(), creds, "admin@shop.example", zap.NewNop())
	env.service = NewService(
		env.gateway,
		env.payments,
		env.orders,
		env.currencies,
		creds,
		alerts,
		domain.OrderStatusMapper{Authorized: statusAuthorized, Captured: statusCaptured, Voided: statusVoided, Failed: statusFailed},
		zap.NewNop(),
	)
	return env
}

func networkPayment(id, status string, amount int64, currency string) *square.Payment {
	return &square.Payment{
		ID:          id,
		Status:      status,
		AmountMoney: square.Money{Amount: amount, Currency: currency},
		LocationID:  "LOC1",
		SourceType:  "CARD",
		CreatedAt:   "2026-10-19T10:00:00Z",
		UpdatedAt:   "2026-10-19T10:00:01Z",
		CardDetails: &square.CardDetails{Card: square.Card{Fingerprint: "fp-1"}},
	}
}

func chargeRequest() ChargeRequest {
	return ChargeRequest{
		OrderID:       42,
		Total:         decimal.RequireFromString("12.34"),
		StoreCurrency: "USD",
		Currency:      "USD",
		SourceID:      "cnon:card-nonce-ok",
		Email:         "buyer@example.com",
		Phone:         "(415) 555-0100",
		IP:            "203.0.113.5",
		UserAgent:     "test-agent",
		Billing:       domain.BillingAddress{FirstName: "Ada", LastName: "Lovelace", Country: "US"},
	}
}

func revokedError() error {
	return square.NewAPIError(401, square.StructuredErrors([]square.ErrorEntry{
		{Category: "AUTHENTICATION_ERROR", Code: square.CodeAccessTokenRevoked, Detail: "The access token has been revoked."},
	}), square.DefaultMessages())
}

func TestService_Charge_Success(t *testing.T) {
	env := setupService(t, nil)
	env.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req *square.CreatePaymentRequest) bool {
		return req.AmountMoney == square.Money{Amount: 1234, Currency: "USD"} &&
			req.SourceID == "cnon:card-nonce-ok" &&
			req.ReferenceID == "42" &&
			req.BuyerPhoneNumber == "+14155550100" &&
			req.BillingAddress != nil && req.BillingAddress.FirstName == "Ada"
	})).Return(networkPayment("P1", "COMPLETED", 1234, "USD"), nil)

	result, err := env.service.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Nil(t, result.Card)

	stored := env.payments.Get("P1")
	require.NotNil(t, stored)
	assert.Equal(t, int64(42), stored.OrderID)
	assert.Equal(t, int64(1234), stored.Amount)
	assert.Equal(t, "MERCHANT1", stored.MerchantID)
	assert.Equal(t, "fp-1", stored.CardFingerprint)
	assert.Equal(t, "203.0.113.5", stored.IP)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)

	require.Len(t, env.orders.Entries, 1)
	assert.Equal(t, statusCaptured, env.orders.Entries[0].StatusID)
	assert.Equal(t, commentCaptured, env.orders.Entries[0].Comment)
	env.gateway.AssertExpectations(t)
}

func TestService_Charge_ConvertsCurrency(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		rate     string
		total    string
		want     int64
	}{
		{name: "two decimals", currency: "EUR", rate: "0.9", total: "10.00", want: 900},
		{name: "zero decimals", currency: "JPY", rate: "150", total: "10.00", want: 1500},
		{name: "rounds half away from zero", currency: "EUR", rate: "1", total: "0.125", want: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, nil)
			env.currencies.Rates[tt.currency] = decimal.RequireFromString(tt.rate)
			env.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req *square.CreatePaymentRequest) bool {
				return req.AmountMoney.Amount == tt.want && req.AmountMoney.Currency == tt.currency
			})).Return(networkPayment("P1", "COMPLETED", tt.want, tt.currency), nil)

			req := chargeRequest()
			req.Currency = tt.currency
			req.Total = decimal.RequireFromString(tt.total)

			_, err := env.service.Charge(context.Background(), req)
			require.NoError(t, err)
			env.gateway.AssertExpectations(t)
		})
	}
}

func TestService_Charge_LocationCurrency(t *testing.T) {
	tests := []struct {
		name         string
		location     *square.Location
		locationErr  error
		wantCurrency string
		wantAmount   int64
	}{
		{name: "enabled location currency", location: &square.Location{ID: "LOC1", Currency: "EUR"}, wantCurrency: "EUR", wantAmount: 900},
		{name: "disabled location currency", location: &square.Location{ID: "LOC1", Currency: "GBP"}, wantCurrency: "USD", wantAmount: 1000},
		{name: "lookup failure", locationErr: &square.TransportError{Err: errors.New("timeout")}, wantCurrency: "USD", wantAmount: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, nil)
			env.currencies.Rates["EUR"] = decimal.RequireFromString("0.9")
			if tt.locationErr != nil {
				env.gateway.On("RetrieveLocation", mock.Anything, "", "LOC1").Return(nil, tt.locationErr)
			} else {
				env.gateway.On("RetrieveLocation", mock.Anything, "", "LOC1").Return(tt.location, nil)
			}
			env.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req *square.CreatePaymentRequest) bool {
				return req.AmountMoney == square.Money{Amount: tt.wantAmount, Currency: tt.wantCurrency}
			})).Return(networkPayment("P1", "COMPLETED", tt.wantAmount, tt.wantCurrency), nil)

			req := chargeRequest()
			req.Currency = ""
			req.Total = decimal.RequireFromString("10.00")

			_, err := env.service.Charge(context.Background(), req)
			require.NoError(t, err)
			env.gateway.AssertExpectations(t)
		})
	}
}

func TestService_ChargeRecurring(t *testing.T) {
	env := setupService(t, nil)
	env.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req *square.CreatePaymentRequest) bool {
		return req.SourceID == "ccof:card-1" && req.CustomerID == "CUST1"
	})).Return(networkPayment("P1", "COMPLETED", 1234, "USD"), nil)

	req := chargeRequest()
	req.SourceID = "ccof:card-1"
	req.CustomerID = "CUST1"
	req.SaveCard = true

	payment, err := env.service.ChargeRecurring(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, RecurringUserAgent, payment.UserAgent)
	assert.NotNil(t, env.payments.Get("P1"))
	assert.Empty(t, env.orders.Entries)
	env.gateway.AssertNotCalled(t, "CreateCard", mock.Anything, mock.Anything)
}

func TestStatusComment(t *testing.T) {
	assert.Equal(t, commentAuthorized, StatusComment(domain.PaymentStatusApproved))
	assert.Equal(t, commentCaptured, StatusComment(domain.PaymentStatusCompleted))
	assert.Equal(t, commentVoided, StatusComment(domain.PaymentStatusCanceled))
	assert.Equal(t, commentFailed, StatusComment(domain.PaymentStatusFailed))
	assert.Empty(t, StatusComment(domain.PaymentStatusPending))
}

func TestService_Charge_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ChargeRequest)
		field  string
	}{
		{name: "missing source", mutate: func(r *ChargeRequest) { r.SourceID = "" }, field: "source_id"},
		{name: "stored card without customer", mutate: func(r *ChargeRequest) { r.SourceID = "ccof:card-1" }, field: "customer_id"},
		{name: "disabled currency", mutate: func(r *ChargeRequest) { r.Currency = "GBP" }, field: "currency"},
		{name: "zero total", mutate: func(r *ChargeRequest) { r.Total = decimal.Zero }, field: "total"},
		{name: "save card without email", mutate: func(r *ChargeRequest) { r.SaveCard = true; r.Email = "" }, field: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, nil)
			req := chargeRequest()
			tt.mutate(&req)

			_, err := env.service.Charge(context.Background(), req)
			require.Error(t, err)

			var verrs pkgerrors.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Contains(t, verrs.Fields(), tt.field)
			env.gateway.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Charge_TotalBeyondMinorUnitRange(t *testing.T) {
	env := setupService(t, nil)
	req := chargeRequest()
	req.Total = decimal.RequireFromString("92233720368547758.08")

	_, err := env.service.Charge(context.Background(), req)
	var errs pkgerrors.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "total", errs[0].Field)
	env.gateway.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	assert.Empty(t, env.orders.Entries)
}

func TestService_Charge_DelayedCaptureMapsToAuthorized(t *testing.T) {
	env := setupService(t, map[string]string{credentials.KeyDelayCapture: "1"})
	env.gateway.On("CreatePayment", mock.Anything, mock.Anything).
		Return(networkPayment("P1", "APPROVED", 1234, "USD"), nil)

	_, err := env.service.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)

	require.Len(t, env.orders.Entries, 1)
	assert.Equal(t, statusAuthorized, env.orders.Entries[0].StatusID)
}

func TestService_Charge_SaveCard(t *testing.T) {
	env := setupService(t, nil)
	req := chargeRequest()
	req.SaveCard = true

	env.gateway.On("SearchCustomers", mock.Anything, "buyer@example.com", "+14155550100", "").
		Return([]square.Customer{}, nil)
	env.gateway.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(r *square.CreateCustomerRequest) bool {
		return r.EmailAddress == "buyer@example.com"
	})).Return(&square.Customer{ID: "CUST1"}, nil)
	env.gateway.On("CreateCard", mock.Anything, mock.MatchedBy(func(r *square.CreateCardRequest) bool {
		return r.SourceID == "cnon:card-nonce-ok" && r.CustomerID == "CUST1"
	})).Return(&square.Card{ID: "ccof:card-1", Last4: "1111"}, nil)
	env.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(r *square.CreatePaymentRequest) bool {
		return r.SourceID == "ccof:card-1" && r.CustomerID == "CUST1"
	})).Return(networkPayment("P1", "COMPLETED", 1234, "USD"), nil)

	result, err := env.service.Charge(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Card)
	assert.Equal(t, "CUST1", result.Card.CustomerID)
	env.gateway.AssertExpectations(t)
}

func TestService_Charge_ExistingCustomerIsReused(t *testing.T) {
	env := setupService(t, nil)
	req := chargeRequest()
	req.SaveCard = true

	env.gateway.On("SearchCustomers", mock.Anything, mock.Anything, mock.Anything, "").
		Return([]square.Customer{{ID: "CUST9"}}, nil)
	env.gateway.On("CreateCard", mock.Anything, mock.MatchedBy(func(r *square.CreateCardRequest) bool {
		return r.CustomerID == "CUST9"
	})).Return(&square.Card{ID: "ccof:card-2", CustomerID: "CUST9"}, nil)
	env.gateway.On("CreatePayment", mock.Anything, mock.Anything).
		Return(networkPayment("P1", "COMPLETED", 1234, "USD"), nil)

	_, err := env.service.Charge(context.Background(), req)
	require.NoError(t, err)
	env.gateway.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func TestService_Charge_DeclineShowsNetworkMessage(t *testing.T) {
	env := setupService(t, nil)
	declined := square.NewAPIError(400, square.StructuredErrors([]square.ErrorEntry{
		{Category: "PAYMENT_METHOD_ERROR", Code: "CARD_DECLINED", Detail: "Card declined."},
	}), square.DefaultMessages())
	env.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, declined)

	_, err := env.service.Charge(context.Background(), chargeRequest())
	require.Error(t, err)

	assert.True(t, IsCustomerError(err))
	assert.Equal(t, "Card declined.", err.Error())
	apiErr, ok := square.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Empty(t, env.payments.Payments)
	assert.Empty(t, env.mailer.Sent)
}

func TestService_Charge_RevokedToken(t *testing.T) {
	env := setupService(t, nil)
	env.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, revokedError())

	_, err := env.service.Charge(context.Background(), chargeRequest())
	require.Error(t, err)
	assert.Equal(t, TokenIssueCustomerMessage, err.Error())
	assert.Equal(t, "1", env.settings.Value(credentials.KeyTokenRevoked))
	require.Len(t, env.mailer.Sent, 1)
	assert.Equal(t, "Your Square access token has been revoked!", env.mailer.Sent[0].Subject)

	// second failure inside the window sends nothing
	_, err = env.service.Charge(context.Background(), chargeRequest())
	require.Error(t, err)
	assert.Len(t, env.mailer.Sent, 1)
}

func approvedPayment() *domain.Payment {
	return &domain.Payment{
		NetworkPaymentID: "P1",
		OrderID:          42,
		Amount:           2000,
		Currency:         "USD",
		MerchantID:       "MERCHANT1",
		Status:           domain.PaymentStatusApproved,
	}
}

func completedPayment(refunded int64) *domain.Payment {
	p := approvedPayment()
	p.Status = domain.PaymentStatusCompleted
	p.RefundedAmount = refunded
	return p
}

func TestService_Capture(t *testing.T) {
	env := setupService(t, map[string]string{credentials.KeyDelayCapture: "1"}, approvedPayment())
	env.gateway.On("CompletePayment", mock.Anything, "P1", "").
		Return(networkPayment("P1", "COMPLETED", 2000, "USD"), nil)

	payment, err := env.service.Capture(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, env.payments.Get("P1").Status)

	require.Len(t, env.orders.Entries, 1)
	assert.Equal(t, statusCaptured, env.orders.Entries[0].StatusID)
	assert.Equal(t, commentCaptured, env.orders.Entries[0].Comment)
	assert.False(t, env.orders.Entries[0].Notify)
}

func TestService_Capture_InvalidState(t *testing.T) {
	env := setupService(t, nil, completedPayment(0))

	_, err := env.service.Capture(context.Background(), "P1")
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))
	env.gateway.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Capture_UnknownPayment(t *testing.T) {
	env := setupService(t, nil)

	_, err := env.service.Capture(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestService_Void(t *testing.T) {
	env := setupService(t, nil, approvedPayment())
	env.gateway.On("CancelPayment", mock.Anything, "P1", "").
		Return(networkPayment("P1", "CANCELED", 2000, "USD"), nil)

	payment, err := env.service.Void(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCanceled, payment.Status)

	require.Len(t, env.orders.Entries, 1)
	assert.Equal(t, statusVoided, env.orders.Entries[0].StatusID)
	assert.Equal(t, commentVoided, env.orders.Entries[0].Comment)
}

func TestService_Void_ExpiredToken(t *testing.T) {
	env := setupService(t, nil, approvedPayment())
	expired := square.NewAPIError(401, square.StructuredErrors([]square.ErrorEntry{
		{Code: square.CodeAccessTokenExpired, Detail: "The access token has expired."},
	}), square.DefaultMessages())
	env.gateway.On("CancelPayment", mock.Anything, "P1", "").Return(nil, expired)

	_, err := env.service.Void(context.Background(), "P1")
	require.Error(t, err)
	assert.Equal(t, TokenIssueCustomerMessage, err.Error())
	require.Len(t, env.mailer.Sent, 1)
	assert.Equal(t, "Your Square access token has expired!", env.mailer.Sent[0].Subject)
	assert.Equal(t, domain.PaymentStatusApproved, env.payments.Get("P1").Status)
}

func TestService_Refund(t *testing.T) {
	env := setupService(t, nil, completedPayment(500))
	env.gateway.On("RefundPayment", mock.Anything, mock.MatchedBy(func(r *square.RefundPaymentRequest) bool {
		return r.PaymentID == "P1" && r.AmountMoney == square.Money{Amount: 1500, Currency: "USD"} && r.Reason == "Damaged"
	})).Return(&square.Refund{ID: "R1", Status: "PENDING", PaymentID: "P1"}, nil)

	refund, err := env.service.Refund(context.Background(), "P1", 1500, "Damaged", "")
	require.NoError(t, err)
	assert.Equal(t, "R1", refund.ID)

	// the refund.created notification accumulates the refunded total
	assert.Equal(t, int64(500), env.payments.Get("P1").RefundedAmount)
}

func TestService_RetrySendsSameIdempotencyKey(t *testing.T) {
	timeout := &square.TransportError{Err: errors.New("read timeout")}

	t.Run("charge", func(t *testing.T) {
		env := setupService(t, nil)
		var keys []string
		env.gateway.On("CreatePayment", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(*square.CreatePaymentRequest).IdempotencyKey) }).
			Return(nil, timeout).Once()
		env.gateway.On("CreatePayment", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(*square.CreatePaymentRequest).IdempotencyKey) }).
			Return(networkPayment("P1", "COMPLETED", 1234, "USD"), nil).Once()

		req := chargeRequest()
		req.IdempotencyKey = "order-42-checkout"
		_, err := env.service.Charge(context.Background(), req)
		require.Error(t, err)
		_, err = env.service.Charge(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, []string{"order-42-checkout", "order-42-checkout"}, keys)
	})

	t.Run("refund", func(t *testing.T) {
		env := setupService(t, nil, completedPayment(0))
		var keys []string
		env.gateway.On("RefundPayment", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(*square.RefundPaymentRequest).IdempotencyKey) }).
			Return(nil, timeout).Once()
		env.gateway.On("RefundPayment", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(*square.RefundPaymentRequest).IdempotencyKey) }).
			Return(&square.Refund{ID: "R1", Status: "PENDING", PaymentID: "P1"}, nil).Once()

		_, err := env.service.Refund(context.Background(), "P1", 500, "Damaged", "refund-P1-1")
		require.Error(t, err)
		_, err = env.service.Refund(context.Background(), "P1", 500, "Damaged", "refund-P1-1")
		require.NoError(t, err)

		assert.Equal(t, []string{"refund-P1-1", "refund-P1-1"}, keys)
	})
}

func TestService_IdempotencyKeyTooLong(t *testing.T) {
	env := setupService(t, nil, completedPayment(0))
	key := strings.Repeat("k", square.MaxIdempotencyKeyLength+1)

	req := chargeRequest()
	req.IdempotencyKey = key
	_, err := env.service.Charge(context.Background(), req)
	var errs pkgerrors.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "idempotency_key", errs[0].Field)

	_, err = env.service.Refund(context.Background(), "P1", 100, "", key)
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "idempotency_key", errs[0].Field)
	env.gateway.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	env.gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything)
}

func TestService_Refund_Guards(t *testing.T) {
	tests := []struct {
		name    string
		payment *domain.Payment
		amount  int64
		wantErr error
	}{
		{name: "exceeds refundable", payment: completedPayment(500), amount: 1501, wantErr: domain.ErrRefundExceedsAvailable},
		{name: "fully refunded", payment: completedPayment(2000), amount: 1, wantErr: domain.ErrRefundExceedsAvailable},
		{name: "not captured", payment: approvedPayment(), amount: 100, wantErr: domain.ErrPaymentInvalidState},
		{name: "zero amount", payment: completedPayment(0), amount: 0, wantErr: domain.ErrValidationAmountInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, nil, tt.payment)

			_, err := env.service.Refund(context.Background(), "P1", tt.amount, "", "")
			assert.ErrorIs(t, err, tt.wantErr)
			env.gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Refresh(t *testing.T) {
	env := setupService(t, nil, approvedPayment())
	fetched := networkPayment("P1", "COMPLETED", 2000, "USD")
	fetched.CustomerID = "CUST1"
	env.gateway.On("GetPayment", mock.Anything, "P1", "").Return(fetched, nil)

	payment, err := env.service.Refresh(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "CUST1", env.payments.Get("P1").CustomerID)
	require.Len(t, env.orders.Entries, 1)
	assert.Equal(t, commentCaptured, env.orders.Entries[0].Comment)
}

func TestService_Refresh_UnchangedStatusAddsNoHistory(t *testing.T) {
	env := setupService(t, nil, completedPayment(0))
	env.gateway.On("GetPayment", mock.Anything, "P1", "").
		Return(networkPayment("P1", "COMPLETED", 2000, "USD"), nil)

	_, err := env.service.Refresh(context.Background(), "P1")
	require.NoError(t, err)
	assert.Empty(t, env.orders.Entries)
}

func TestService_Refresh_TransportFailure(t *testing.T) {
	env := setupService(t, nil, approvedPayment())
	env.gateway.On("GetPayment", mock.Anything, "P1", "").
		Return(nil, &square.TransportError{Err: errors.New("connection reset")})

	_, err := env.service.Refresh(context.Background(), "P1")
	require.Error(t, err)
	assert.Equal(t, TokenIssueCustomerMessage, err.Error())
	assert.True(t, square.IsTransportError(err))
	assert.Empty(t, env.mailer.Sent)
}
