package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/squareup-service/internal/adapters/postgres"
	"github.com/kevin07696/squareup-service/internal/domain"
)

func TestPaymentRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := postgres.NewPaymentRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	payment := &domain.Payment{
		OrderID:          42,
		NetworkPaymentID: "PAY123",
		MerchantID:       "MERCH1",
		LocationID:       "LOC1",
		CreatedAt:        now,
		UpdatedAt:        now,
		Amount:           1000,
		Currency:         "USD",
		Status:           domain.PaymentStatusApproved,
		SourceType:       "CARD",
		Billing:          domain.BillingAddress{FirstName: "Ada", Country: "US"},
	}

	t.Run("creates and reads back", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, payment))
		assert.NotZero(t, payment.ID)

		got, err := repo.GetByNetworkID(ctx, "PAY123")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, got.ID)
		assert.Equal(t, int64(1000), got.Amount)
		assert.Equal(t, "Ada", got.Billing.FirstName)
		assert.Equal(t, domain.PaymentStatusApproved, got.Status)
	})

	t.Run("updates status", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, "PAY123", domain.PaymentStatusCompleted, now.Add(time.Minute)))

		got, err := repo.GetByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	})

	t.Run("accumulates refunds", func(t *testing.T) {
		total, err := repo.AddRefundedAmount(ctx, "PAY123", 300, "USD")
		require.NoError(t, err)
		assert.Equal(t, int64(300), total)

		total, err = repo.AddRefundedAmount(ctx, "PAY123", 200, "USD")
		require.NoError(t, err)
		assert.Equal(t, int64(500), total)
	})

	t.Run("lists by order", func(t *testing.T) {
		payments, err := repo.ListByOrder(ctx, 42)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, "PAY123", payments[0].NetworkPaymentID)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := repo.GetByNetworkID(ctx, "MISSING")
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

		err = repo.UpdateStatus(ctx, "MISSING", domain.PaymentStatusFailed, now)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})
}

func TestWebhookEventRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := postgres.NewWebhookEventRepository(db)

	event := &domain.WebhookEvent{
		EventID:          "evt-1",
		Type:             "payment.updated",
		MerchantID:       "MERCH1",
		RelatedPaymentID: "PAY123",
		Payload:          []byte(`{"type":"payment.updated"}`),
	}

	inserted, err := repo.Store(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := *event
	inserted, err = repo.Store(ctx, &duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	processed, err := repo.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, repo.MarkProcessed(ctx, "evt-1"))

	got, err := repo.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.NotNil(t, got.ProcessedAt)
	assert.JSONEq(t, `{"type":"payment.updated"}`, string(got.Payload))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	events, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWebhookEventNotFound)
}

func TestSettingsStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := postgres.NewSettingsStore(db)

	require.NoError(t, store.Set(ctx, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, store.Set(ctx, map[string]string{"a": "3"}))

	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "3", value)

	require.NoError(t, store.Delete(ctx, "b", "missing"))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "3"}, all)

	value, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestOrderHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	history := postgres.NewOrderHistory(db)

	var orderID int64
	require.NoError(t, db.Pool().QueryRow(ctx,
		`INSERT INTO "order" (order_status_id) VALUES (1) RETURNING order_id`).Scan(&orderID))

	status, err := history.CurrentStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, status)

	require.NoError(t, history.AddHistory(ctx, orderID, 5, "Captured", true))

	status, err = history.CurrentStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 5, status)

	status, err = history.CurrentStatus(ctx, orderID+1000)
	require.NoError(t, err)
	assert.Zero(t, status)

	assert.Error(t, history.AddHistory(ctx, orderID+1000, 5, "", false))
}

func TestSubscriptionRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := postgres.NewSubscriptionRepository(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	insert := func(dateNext time.Time, status domain.SubscriptionStatus) int64 {
		var id int64
		require.NoError(t, db.Pool().QueryRow(ctx, `
			INSERT INTO subscription (order_id, card_id, customer_id, currency, subscription_status_id, date_next,
				trial_status, trial_frequency, trial_price, trial_cycle, trial_duration, trial_remaining,
				frequency, price, cycle, duration, remaining)
			VALUES (100, 'ccof:CARD1', 'CUST1', 'USD', $1, $2, TRUE, 'week', 0, 1, 2, 2, 'month', 10.00, 1, 12, 12)
			RETURNING subscription_id`, int(status), dateNext).Scan(&id))
		return id
	}

	dueID := insert(now.Add(-time.Hour), domain.SubscriptionStatusActive)
	insert(now.Add(time.Hour), domain.SubscriptionStatusActive)
	insert(now.Add(-time.Hour), domain.SubscriptionStatusSuspended)

	t.Run("lists only due active subscriptions", func(t *testing.T) {
		due, err := repo.ListDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, due, 1)

		sub := due[0]
		assert.Equal(t, dueID, sub.ID)
		assert.True(t, sub.InTrial())
		assert.Equal(t, domain.FrequencyWeek, sub.Trial.Frequency)
		assert.Equal(t, "10.0000", sub.Regular.Price)
		assert.Equal(t, 12, sub.Regular.Remaining)
	})

	t.Run("updates cycles and next date", func(t *testing.T) {
		next := now.AddDate(0, 1, 0)
		require.NoError(t, repo.SetTrialRemaining(ctx, dueID, 1))
		require.NoError(t, repo.SetRemaining(ctx, dueID, 11))
		require.NoError(t, repo.SetDateNext(ctx, dueID, next))

		sub, err := repo.Get(ctx, dueID)
		require.NoError(t, err)
		assert.Equal(t, 1, sub.Trial.Remaining)
		assert.Equal(t, 11, sub.Regular.Remaining)
		assert.True(t, next.Equal(sub.DateNext))
	})

	t.Run("history changes status", func(t *testing.T) {
		require.NoError(t, repo.AddHistory(ctx, dueID, int(domain.SubscriptionStatusSuspended), "Payment failed"))
		require.NoError(t, repo.AddLog(ctx, dueID, "payment", "Payment failed", false))

		sub, err := repo.Get(ctx, dueID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusSuspended, sub.Status)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		_, err := repo.Get(ctx, 999999)
		assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
		assert.ErrorIs(t, repo.SetDateNext(ctx, 999999, now), domain.ErrSubscriptionNotFound)
		assert.ErrorIs(t, repo.AddHistory(ctx, 999999, 1, ""), domain.ErrSubscriptionNotFound)
	})
}

func TestCurrencyTable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `UPDATE currency SET value = 0.9, status = TRUE WHERE code = 'EUR'`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Pool().Exec(ctx, `UPDATE currency SET value = 1, status = FALSE WHERE code = 'EUR'`)
	})

	table, err := postgres.LoadCurrencyTable(ctx, db)
	require.NoError(t, err)

	places, ok := table.DecimalPlaces("jpy")
	assert.True(t, ok)
	assert.Equal(t, int32(0), places)

	_, ok = table.DecimalPlaces("XXX")
	assert.False(t, ok)

	assert.True(t, table.IsEnabled("USD"))
	assert.True(t, table.IsEnabled("EUR"))
	assert.False(t, table.IsEnabled("GBP"))

	converted := table.Convert(decimal.RequireFromString("10.00"), "USD", "EUR")
	assert.True(t, decimal.RequireFromString("9").Equal(converted), converted.String())
}
