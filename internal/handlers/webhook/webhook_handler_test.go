package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	webhooksvc "github.com/kevin07696/squareup-service/internal/services/webhook"
	"github.com/kevin07696/squareup-service/test/mocks"
)

const (
	notificationURL = "https://shop.example/webhooks/square"
	signatureKey    = "sig-key"
)

type fixture struct {
	handler  *Handler
	events   *mocks.WebhookEventRepository
	payments *mocks.PaymentRepository
}

func setupHandler(t *testing.T) *fixture {
	t.Helper()
	settings := mocks.NewSettingsStore(map[string]string{
		credentials.KeyWebhookSignatureKey: signatureKey,
	})
	f := &fixture{
		events: mocks.NewWebhookEventRepository(),
		payments: mocks.NewPaymentRepository(&domain.Payment{
			NetworkPaymentID: "P1",
			OrderID:          7,
			Amount:           1500,
			Currency:         "USD",
			Status:           domain.PaymentStatusApproved,
		}),
	}
	processor := webhooksvc.NewProcessor(
		notificationURL,
		domain.OrderStatusMapper{Authorized: 1, Captured: 5, Voided: 7, Failed: 10},
		mocks.NewTransactor(f.events, f.payments),
		f.events,
		f.payments,
		mocks.NewOrderHistory(nil),
		credentials.NewStore(settings, mocks.NewMockLogger()),
		zap.NewNop(),
	)
	f.handler = NewHandler(processor, zap.NewNop())
	return f
}

const completedEvent = `{"merchant_id":"M1","type":"payment.updated","event_id":"E1",` +
	`"data":{"type":"payment","id":"P1","object":{"payment":{"id":"P1","status":"COMPLETED"}}}}`

func post(h http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(webhooksvc.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sign(body string) string {
	return webhooksvc.GenerateSignature(signatureKey, notificationURL, []byte(body))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_Responses(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		signature  func(body string) string
		wantStatus int
		wantBody   map[string]string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   map[string]string{"error": "Method not allowed"},
		},
		{
			name:       "empty body",
			method:     http.MethodPost,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]string{"error": "Empty body"},
		},
		{
			name:       "missing signature",
			method:     http.MethodPost,
			body:       completedEvent,
			wantStatus: http.StatusUnauthorized,
			wantBody:   map[string]string{"error": "Invalid signature"},
		},
		{
			name:       "forged signature",
			method:     http.MethodPost,
			body:       completedEvent,
			signature:  func(string) string { return "AAAA" },
			wantStatus: http.StatusUnauthorized,
			wantBody:   map[string]string{"error": "Invalid signature"},
		},
		{
			name:       "signed but not json",
			method:     http.MethodPost,
			body:       "not json",
			signature:  sign,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]string{"error": "Invalid payload"},
		},
		{
			name:       "signed without event id",
			method:     http.MethodPost,
			body:       `{"type":"payment.updated"}`,
			signature:  sign,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]string{"error": "Invalid payload"},
		},
		{
			name:       "valid event",
			method:     http.MethodPost,
			body:       completedEvent,
			signature:  sign,
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"status": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupHandler(t)
			req := httptest.NewRequest(tt.method, "/webhooks/square", strings.NewReader(tt.body))
			if tt.signature != nil {
				req.Header.Set(webhooksvc.SignatureHeader, tt.signature(tt.body))
			}
			rec := httptest.NewRecorder()

			f.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, decode(t, rec))
		})
	}
}

func TestHandler_RejectedDeliveriesAreNotStored(t *testing.T) {
	f := setupHandler(t)

	rec := post(f.handler, completedEvent, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	count, err := f.events.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, domain.PaymentStatusApproved, f.payments.Get("P1").Status)
}

func TestHandler_Redelivery(t *testing.T) {
	f := setupHandler(t)

	first := post(f.handler, completedEvent, sign(completedEvent))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "ok", decode(t, first)["status"])
	assert.Equal(t, domain.PaymentStatusCompleted, f.payments.Get("P1").Status)

	second := post(f.handler, completedEvent, sign(completedEvent))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "already_processed", decode(t, second)["status"])
}

func TestHandler_OversizedBodyIsRejected(t *testing.T) {
	f := setupHandler(t)
	body := strings.Repeat("x", maxBodyBytes+1)

	rec := post(f.handler, body, sign(body))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload too large", decode(t, rec)["error"])
	count, err := f.events.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

// flakyOrders fails the first AddHistory call
type flakyOrders struct {
	*mocks.OrderHistory
	failed bool
}

func (f *flakyOrders) AddHistory(ctx context.Context, orderID int64, statusID int, comment string, notify bool) error {
	if !f.failed {
		f.failed = true
		return errors.New("order store unavailable")
	}
	return f.OrderHistory.AddHistory(ctx, orderID, statusID, comment, notify)
}

func TestHandler_RedeliveryAfterFailureIsApplied(t *testing.T) {
	events := mocks.NewWebhookEventRepository()
	payments := mocks.NewPaymentRepository(&domain.Payment{
		NetworkPaymentID: "P1",
		OrderID:          7,
		Status:           domain.PaymentStatusApproved,
	})
	orders := mocks.NewOrderHistory(nil)
	settings := mocks.NewSettingsStore(map[string]string{credentials.KeyWebhookSignatureKey: signatureKey})
	processor := webhooksvc.NewProcessor(
		notificationURL,
		domain.OrderStatusMapper{Authorized: 1, Captured: 5, Voided: 7, Failed: 10},
		mocks.NewTransactor(events, payments, orders),
		events,
		payments,
		&flakyOrders{OrderHistory: orders},
		credentials.NewStore(settings, mocks.NewMockLogger()),
		zap.NewNop(),
	)
	h := NewHandler(processor, zap.NewNop())

	first := post(h, completedEvent, sign(completedEvent))
	require.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Equal(t, domain.PaymentStatusApproved, payments.Get("P1").Status)

	second := post(h, completedEvent, sign(completedEvent))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "ok", decode(t, second)["status"])
	assert.Equal(t, domain.PaymentStatusCompleted, payments.Get("P1").Status)
	assert.True(t, events.Event("E1").Processed)
	assert.Len(t, orders.Entries, 1)
}

func TestHandler_ProcessingFailureIsServerError(t *testing.T) {
	f := setupHandler(t)
	f.events.StoreErr = errors.New("db down")

	rec := post(f.handler, completedEvent, sign(completedEvent))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Processing failed", decode(t, rec)["error"])
}
