package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Payment operation metrics
	paymentOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_operations_total",
		Help: "Total number of payment operations",
	}, []string{
		"operation", // charge, capture, void, refund, refresh
		"status",    // network status (COMPLETED, APPROVED, ...) or "error"
	})

	paymentAmountMinorUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_amount_minor_units_total",
		Help: "Total payment amount in minor units (for revenue tracking)",
	}, []string{
		"operation",
		"currency",
	})

	// Inbound webhook metrics
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total inbound webhook notifications",
	}, []string{
		"event_type",
		"result", // processed, duplicate, rejected, failed
	})

	webhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Time to process an inbound webhook notification",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{
		"event_type",
	})

	// Merchant connection metrics
	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_token_refreshes_total",
		Help: "Total access token refresh attempts",
	}, []string{
		"result", // success, failed, merchant_mismatch, skipped
	})

	tokenExpirySeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oauth_access_token_expiry_seconds",
		Help: "Seconds until the stored access token expires (negative when expired)",
	})

	// Subscription billing metrics
	subscriptionChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_charges_total",
		Help: "Total recurring subscription charge attempts",
	}, []string{
		"result", // charged, free, failed, error
	})

	adminNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_notifications_total",
		Help: "Administrator alert e-mails by kind and whether they were sent or throttled",
	}, []string{
		"kind",
		"result", // sent, throttled, failed, unconfigured
	})
)

// RecordPaymentOperation records a payment operation outcome and, on success, its amount
func RecordPaymentOperation(operation, status string, amount int64, currency string) {
	paymentOperationsTotal.WithLabelValues(operation, status).Inc()
	if status != "error" && amount > 0 {
		paymentAmountMinorUnits.WithLabelValues(operation, currency).Add(float64(amount))
	}
}

// RecordWebhookEvent records an inbound webhook outcome
func RecordWebhookEvent(eventType, result string, duration float64) {
	webhookEventsTotal.WithLabelValues(eventType, result).Inc()
	webhookProcessingDuration.WithLabelValues(eventType).Observe(duration)
}

// RecordTokenRefresh records an access token refresh attempt
func RecordTokenRefresh(result string) {
	tokenRefreshesTotal.WithLabelValues(result).Inc()
}

// SetTokenExpiry updates the seconds-until-expiry gauge
func SetTokenExpiry(seconds float64) {
	tokenExpirySeconds.Set(seconds)
}

// RecordSubscriptionCharge records a recurring charge attempt
func RecordSubscriptionCharge(result string) {
	subscriptionChargesTotal.WithLabelValues(result).Inc()
}

// RecordAdminNotification records an administrator alert
func RecordAdminNotification(kind, result string) {
	adminNotificationsTotal.WithLabelValues(kind, result).Inc()
}
