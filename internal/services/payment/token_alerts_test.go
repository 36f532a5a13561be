package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/test/mocks"
)

type revocations struct {
	marked int
	err    error
}

func (r *revocations) MarkRevoked(context.Context) error {
	r.marked++
	return r.err
}

type brokenThrottle struct{}

func (brokenThrottle) Allow(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestTokenAlerter_Handle(t *testing.T) {
	declined := square.NewAPIError(400, square.StructuredErrors([]square.ErrorEntry{
		{Code: "CARD_DECLINED", Detail: "Card declined."},
	}), square.DefaultMessages())
	plain := errors.New("settings unavailable")

	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantMail    string
		wantMarked  int
		passthrough bool
	}{
		{name: "nil", err: nil},
		{name: "transport", err: &square.TransportError{Err: errors.New("timeout")}, wantMessage: TokenIssueCustomerMessage},
		{name: "revoked", err: revokedError(), wantMessage: TokenIssueCustomerMessage, wantMail: tokenRevokedSubject, wantMarked: 1},
		{
			name: "expired",
			err: square.NewAPIError(401, square.StructuredErrors([]square.ErrorEntry{{Code: square.CodeAccessTokenExpired}}),
				square.DefaultMessages()),
			wantMessage: TokenIssueCustomerMessage,
			wantMail:    tokenExpiredSubject,
		},
		{name: "other api error", err: declined, wantMessage: "Card declined."},
		{name: "non api error", err: plain, passthrough: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &mocks.Mailer{}
			recorder := &revocations{}
			alerter := NewTokenAlerter(mailer, mocks.NewThrottle(), recorder, "admin@shop.example", zap.NewNop())

			got := alerter.Handle(context.Background(), tt.err)

			switch {
			case tt.err == nil:
				assert.NoError(t, got)
			case tt.passthrough:
				assert.Same(t, tt.err, got)
			default:
				require.Error(t, got)
				assert.True(t, IsCustomerError(got))
				assert.Equal(t, tt.wantMessage, got.Error())
				assert.ErrorIs(t, got, tt.err)
			}

			assert.Equal(t, tt.wantMarked, recorder.marked)
			if tt.wantMail == "" {
				assert.Empty(t, mailer.Sent)
			} else {
				require.Len(t, mailer.Sent, 1)
				assert.Equal(t, "admin@shop.example", mailer.Sent[0].To)
				assert.Equal(t, tt.wantMail, mailer.Sent[0].Subject)
			}
		})
	}
}

func TestTokenAlerter_ThrottlesPerKind(t *testing.T) {
	mailer := &mocks.Mailer{}
	throttle := mocks.NewThrottle()
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	throttle.Now = func() time.Time { return now }
	alerter := NewTokenAlerter(mailer, throttle, &revocations{}, "admin@shop.example", zap.NewNop())
	expired := square.NewAPIError(401, square.StructuredErrors([]square.ErrorEntry{{Code: square.CodeAccessTokenExpired}}),
		square.DefaultMessages())

	alerter.Handle(context.Background(), revokedError())
	alerter.Handle(context.Background(), revokedError())
	alerter.Handle(context.Background(), expired)
	assert.Len(t, mailer.Sent, 2)

	now = now.Add(14 * time.Minute)
	alerter.Handle(context.Background(), revokedError())
	assert.Len(t, mailer.Sent, 2)

	now = now.Add(time.Minute)
	alerter.Handle(context.Background(), revokedError())
	assert.Len(t, mailer.Sent, 3)
}

func TestTokenAlerter_CountsNotifications(t *testing.T) {
	alerter := NewTokenAlerter(&mocks.Mailer{}, mocks.NewThrottle(), &revocations{}, "admin@shop.example", zap.NewNop())
	sent := adminNotificationCount(t, AlertTokenRevoked, "sent")
	throttled := adminNotificationCount(t, AlertTokenRevoked, "throttled")

	alerter.Handle(context.Background(), revokedError())
	alerter.Handle(context.Background(), revokedError())

	assert.Equal(t, sent+1, adminNotificationCount(t, AlertTokenRevoked, "sent"))
	assert.Equal(t, throttled+1, adminNotificationCount(t, AlertTokenRevoked, "throttled"))
}

func adminNotificationCount(t *testing.T, kind, result string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "admin_notifications_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["kind"] == kind && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTokenAlerter_DeliveryFailures(t *testing.T) {
	t.Run("throttle error still sends", func(t *testing.T) {
		mailer := &mocks.Mailer{}
		alerter := NewTokenAlerter(mailer, brokenThrottle{}, &revocations{}, "admin@shop.example", zap.NewNop())

		alerter.Handle(context.Background(), revokedError())
		assert.Len(t, mailer.Sent, 1)
	})

	t.Run("mailer and recorder errors do not change the result", func(t *testing.T) {
		mailer := &mocks.Mailer{Err: errors.New("smtp down")}
		alerter := NewTokenAlerter(mailer, mocks.NewThrottle(), &revocations{err: errors.New("db down")}, "admin@shop.example", zap.NewNop())

		err := alerter.Handle(context.Background(), revokedError())
		assert.Equal(t, TokenIssueCustomerMessage, err.Error())
	})

	t.Run("no admin address", func(t *testing.T) {
		mailer := &mocks.Mailer{}
		recorder := &revocations{}
		alerter := NewTokenAlerter(mailer, mocks.NewThrottle(), recorder, "", zap.NewNop())

		alerter.Handle(context.Background(), revokedError())
		assert.Empty(t, mailer.Sent)
		assert.Equal(t, 1, recorder.marked)
	})
}
