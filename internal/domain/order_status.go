package domain

// OrderStatusMapper maps network payment statuses to the host's configured order status ids.
// A zero id means "no mapping configured" and callers skip the history entry.
type OrderStatusMapper struct {
	Authorized   int
	Captured     int
	Voided       int
	Failed       int
	DelayCapture bool
}

// Map returns the host order status for a payment status
func (m OrderStatusMapper) Map(status PaymentStatus) int {
	switch status {
	case PaymentStatusApproved:
		return m.Authorized
	case PaymentStatusPending:
		if m.DelayCapture {
			return m.Authorized
		}
		return m.Captured
	case PaymentStatusCompleted:
		return m.Captured
	case PaymentStatusCanceled:
		return m.Voided
	case PaymentStatusFailed:
		return m.Failed
	default:
		return 0
	}
}
