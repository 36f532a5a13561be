package domain

import "time"

// EventKind identifies a webhook event type understood by this service.
// Unrecognised type strings map to EventUnknown; the raw string stays on WebhookEvent.Type.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPaymentCreated
	EventPaymentUpdated
	EventRefundCreated
	EventRefundUpdated
)

var eventKinds = map[string]EventKind{
	"payment.created": EventPaymentCreated,
	"payment.updated": EventPaymentUpdated,
	"refund.created":  EventRefundCreated,
	"refund.updated":  EventRefundUpdated,
}

// ParseEventKind maps a network event type string to an EventKind
func ParseEventKind(eventType string) EventKind {
	if kind, ok := eventKinds[eventType]; ok {
		return kind
	}
	return EventUnknown
}

func (k EventKind) String() string {
	for name, kind := range eventKinds {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// SubscribedEventTypes are the event types registered when creating a webhook subscription
var SubscribedEventTypes = []string{
	"payment.created",
	"payment.updated",
	"refund.created",
	"refund.updated",
}

// WebhookEvent is a persisted inbound notification (Webhook Event Record).
// EventID is globally unique; Processed flips to true exactly once.
type WebhookEvent struct {
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	EventID          string     `json:"event_id"`
	Type             string     `json:"event_type"`
	MerchantID       string     `json:"merchant_id"`
	RelatedPaymentID string     `json:"payment_id"`
	Payload          []byte     `json:"payload"`
	ID               int64      `json:"id"`
	Processed        bool       `json:"processed"`
}

// Kind returns the parsed event kind
func (e *WebhookEvent) Kind() EventKind {
	return ParseEventKind(e.Type)
}
