package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPaymentOperation(t *testing.T) {
	ops := paymentOperationsTotal.WithLabelValues("refund", "PENDING")
	errs := paymentOperationsTotal.WithLabelValues("refund", "error")
	amount := paymentAmountMinorUnits.WithLabelValues("refund", "EUR")
	beforeOps, beforeErrs, beforeAmount := testutil.ToFloat64(ops), testutil.ToFloat64(errs), testutil.ToFloat64(amount)

	RecordPaymentOperation("refund", "PENDING", 250, "EUR")
	RecordPaymentOperation("refund", "error", 900, "EUR")

	assert.Equal(t, beforeOps+1, testutil.ToFloat64(ops))
	assert.Equal(t, beforeErrs+1, testutil.ToFloat64(errs))
	assert.Equal(t, beforeAmount+250, testutil.ToFloat64(amount), "failed operations carry no amount")
}

func TestRecordSubscriptionCharge(t *testing.T) {
	counter := subscriptionChargesTotal.WithLabelValues("free")
	before := testutil.ToFloat64(counter)

	RecordSubscriptionCharge("free")

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRecordAdminNotification(t *testing.T) {
	sent := adminNotificationsTotal.WithLabelValues("auth_error", "sent")
	throttled := adminNotificationsTotal.WithLabelValues("auth_error", "throttled")
	beforeSent, beforeThrottled := testutil.ToFloat64(sent), testutil.ToFloat64(throttled)

	RecordAdminNotification("auth_error", "sent")
	RecordAdminNotification("auth_error", "throttled")
	RecordAdminNotification("auth_error", "throttled")

	assert.Equal(t, beforeSent+1, testutil.ToFloat64(sent))
	assert.Equal(t, beforeThrottled+2, testutil.ToFloat64(throttled))
}
