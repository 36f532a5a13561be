package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/postgres"
	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	webhookhandler "github.com/kevin07696/squareup-service/internal/handlers/webhook"
	webhooksvc "github.com/kevin07696/squareup-service/internal/services/webhook"
	"github.com/kevin07696/squareup-service/pkg/security"
	"github.com/kevin07696/squareup-service/test/integration/testdb"
)

const (
	notificationURL = "https://shop.example.com/webhooks/square"
	signatureKey    = "integration-signature-key"
)

var statuses = domain.OrderStatusMapper{Authorized: 1, Captured: 5, Voided: 16, Failed: 10}

type webhookEnv struct {
	db        *postgres.DB
	handler   http.Handler
	processor *webhooksvc.Processor
	payments  *postgres.PaymentRepository
	events    *postgres.WebhookEventRepository
	orderID   int64
}

func setupWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	db := testdb.SetupTestDB(t)
	ctx := context.Background()

	settings := postgres.NewSettingsStore(db)
	require.NoError(t, settings.Set(ctx, map[string]string{
		credentials.KeyWebhookSignatureKey: signatureKey,
		credentials.KeyMerchantID:          "M1",
	}))

	env := &webhookEnv{
		db:       db,
		payments: postgres.NewPaymentRepository(db),
		events:   postgres.NewWebhookEventRepository(db),
		orderID:  testdb.CreateOrder(t, db, 1),
	}
	require.NoError(t, env.payments.Create(ctx, &domain.Payment{
		NetworkPaymentID: "P1",
		MerchantID:       "M1",
		LocationID:       "L1",
		OrderID:          env.orderID,
		Amount:           2500,
		Currency:         "USD",
		Status:           domain.PaymentStatusApproved,
		SourceType:       "CARD",
	}))

	creds := credentials.NewStore(settings, security.NewZapLogger(zap.NewNop()))
	env.processor = webhooksvc.NewProcessor(notificationURL, statuses, db, env.events, env.payments,
		postgres.NewOrderHistory(db), creds, zap.NewNop())
	env.handler = webhookhandler.NewHandler(env.processor, zap.NewNop())
	return env
}

func (e *webhookEnv) deliver(t *testing.T, body string) (int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	req.Header.Set(webhooksvc.SignatureHeader, webhooksvc.GenerateSignature(signatureKey, notificationURL, []byte(body)))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestWebhookFlow_PaymentCompleted(t *testing.T) {
	env := setupWebhookEnv(t)
	ctx := context.Background()

	body := `{"merchant_id":"M1","type":"payment.updated","event_id":"E-complete",` +
		`"data":{"type":"payment","id":"P1","object":{"payment":{"id":"P1","status":"COMPLETED","updated_at":"2026-03-01T10:00:00Z"}}}}`

	code, out := env.deliver(t, body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(webhooksvc.OutcomeProcessed), out["status"])

	payment, err := env.payments.GetByNetworkID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)

	processed, err := env.events.IsProcessed(ctx, "E-complete")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, testdb.OrderHistoryCount(t, env.db, env.orderID))

	code, out = env.deliver(t, body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(webhooksvc.OutcomeAlreadyProcessed), out["status"])
	assert.Equal(t, 1, testdb.OrderHistoryCount(t, env.db, env.orderID), "redelivery has no side effects")
}

func TestWebhookFlow_RefundAccumulates(t *testing.T) {
	env := setupWebhookEnv(t)
	ctx := context.Background()

	complete := `{"merchant_id":"M1","type":"payment.updated","event_id":"E1",` +
		`"data":{"type":"payment","id":"P1","object":{"payment":{"id":"P1","status":"COMPLETED"}}}}`
	code, _ := env.deliver(t, complete)
	require.Equal(t, http.StatusOK, code)

	refund := func(eventID string, amount int) string {
		return `{"merchant_id":"M1","type":"refund.created","event_id":"` + eventID + `",` +
			`"data":{"type":"refund","id":"R-` + eventID + `","object":{"refund":{"payment_id":"P1","status":"PENDING",` +
			`"amount_money":{"amount":` + itoa(amount) + `,"currency":"USD"}}}}}`
	}

	code, _ = env.deliver(t, refund("E2", 1000))
	require.Equal(t, http.StatusOK, code)
	code, _ = env.deliver(t, refund("E3", 500))
	require.Equal(t, http.StatusOK, code)
	code, _ = env.deliver(t, refund("E3", 500))
	require.Equal(t, http.StatusOK, code)

	payment, err := env.payments.GetByNetworkID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), payment.RefundedAmount)
	assert.Equal(t, "USD", payment.RefundedCurrency)

	count, err := env.events.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestWebhookFlow_FailedDeliveryRollsBackAndRedeliveryApplies(t *testing.T) {
	env := setupWebhookEnv(t)
	ctx := context.Background()

	const orphanOrderID = 999999
	require.NoError(t, env.payments.Create(ctx, &domain.Payment{
		NetworkPaymentID: "P2",
		MerchantID:       "M1",
		OrderID:          orphanOrderID,
		Amount:           1000,
		Currency:         "USD",
		Status:           domain.PaymentStatusApproved,
		SourceType:       "CARD",
	}))
	body := `{"merchant_id":"M1","type":"payment.updated","event_id":"E-orphan",` +
		`"data":{"type":"payment","id":"P2","object":{"payment":{"id":"P2","status":"COMPLETED"}}}}`

	code, _ := env.deliver(t, body)
	require.Equal(t, http.StatusInternalServerError, code)

	payment, err := env.payments.GetByNetworkID(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusApproved, payment.Status, "status update rolled back with the failed history write")
	processed, err := env.events.IsProcessed(ctx, "E-orphan")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = env.db.Pool().Exec(ctx, `INSERT INTO "order" (order_id, order_status_id) VALUES ($1, 1)`, orphanOrderID)
	require.NoError(t, err)

	code, out := env.deliver(t, body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(webhooksvc.OutcomeProcessed), out["status"])

	payment, err = env.payments.GetByNetworkID(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 1, testdb.OrderHistoryCount(t, env.db, orphanOrderID))

	code, out = env.deliver(t, body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(webhooksvc.OutcomeAlreadyProcessed), out["status"])
	assert.Equal(t, 1, testdb.OrderHistoryCount(t, env.db, orphanOrderID))
}

func TestWebhookFlow_UnknownPaymentIsAcknowledged(t *testing.T) {
	env := setupWebhookEnv(t)

	body := `{"merchant_id":"M1","type":"payment.updated","event_id":"E-unknown",` +
		`"data":{"type":"payment","id":"P404","object":{"payment":{"id":"P404","status":"COMPLETED"}}}}`
	code, out := env.deliver(t, body)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(webhooksvc.OutcomeProcessed), out["status"])
	assert.Equal(t, 0, testdb.OrderHistoryCount(t, env.db, env.orderID))
}

func TestWebhookFlow_ForgedSignatureIsNotStored(t *testing.T) {
	env := setupWebhookEnv(t)

	body := `{"merchant_id":"M1","type":"payment.updated","event_id":"E-forged","data":{}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	req.Header.Set(webhooksvc.SignatureHeader, "bm90LWEtc2lnbmF0dXJl")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	count, err := env.events.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
