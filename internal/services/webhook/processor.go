package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	"github.com/kevin07696/squareup-service/pkg/observability"
	"github.com/kevin07696/squareup-service/pkg/timeutil"
)

// ErrInvalidPayload is returned for bodies that are not JSON events with event_id and type
var ErrInvalidPayload = errors.New("invalid payload")

// Outcome is the acknowledgment returned for an accepted delivery
type Outcome string

const (
	OutcomeProcessed        Outcome = "ok"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// terminal refund statuses that produce an order comment
var terminalRefundStatuses = map[string]bool{
	"COMPLETED": true,
	"FAILED":    true,
	"REJECTED":  true,
}

// Envelope is the common shape of every notification
type Envelope struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	MerchantID string `json:"merchant_id"`
	CreatedAt  string `json:"created_at"`
	Data       struct {
		Type   string          `json:"type"`
		ID     string          `json:"id"`
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEnvelope decodes body; ErrInvalidPayload when it is not JSON or lacks event_id or type
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrInvalidPayload
	}
	if env.EventID == "" || env.Type == "" {
		return nil, ErrInvalidPayload
	}
	return &env, nil
}

// relatedPaymentID extracts the payment id an event refers to, "" when none
func (e *Envelope) relatedPaymentID() string {
	var obj struct {
		Payment *struct {
			ID string `json:"id"`
		} `json:"payment"`
		Refund *struct {
			PaymentID string `json:"payment_id"`
		} `json:"refund"`
	}
	if len(e.Data.Object) == 0 || json.Unmarshal(e.Data.Object, &obj) != nil {
		return ""
	}

	switch {
	case e.Data.Type == "payment" && obj.Payment != nil:
		return obj.Payment.ID
	case e.Data.Type == "refund" && obj.Refund != nil:
		return obj.Refund.PaymentID
	}
	return ""
}

// CredentialSource supplies the signature key and delayed-capture flag
type CredentialSource interface {
	Load(ctx context.Context) (*credentials.Record, error)
}

type eventHandler func(ctx context.Context, object json.RawMessage, rec *credentials.Record) error

// Processor verifies, stores and applies inbound notifications exactly once per event id.
// A handler's writes and the processed flag commit in one transaction.
type Processor struct {
	tx              ports.Transactor
	events          ports.WebhookEventRepository
	payments        ports.PaymentRepository
	orders          ports.OrderHistory
	creds           CredentialSource
	logger          *zap.Logger
	handlers        map[domain.EventKind]eventHandler
	now             func() time.Time
	statuses        domain.OrderStatusMapper
	notificationURL string
}

// NewProcessor creates a webhook processor. notificationURL must be the exact URL
// the subscription was registered with.
func NewProcessor(
	notificationURL string,
	statuses domain.OrderStatusMapper,
	tx ports.Transactor,
	events ports.WebhookEventRepository,
	payments ports.PaymentRepository,
	orders ports.OrderHistory,
	creds CredentialSource,
	logger *zap.Logger,
) *Processor {
	p := &Processor{
		tx:              tx,
		events:          events,
		payments:        payments,
		orders:          orders,
		creds:           creds,
		logger:          logger,
		now:             timeutil.Now,
		statuses:        statuses,
		notificationURL: notificationURL,
	}
	p.handlers = map[domain.EventKind]eventHandler{
		domain.EventPaymentCreated: p.handlePaymentCreated,
		domain.EventPaymentUpdated: p.handlePaymentUpdated,
		domain.EventRefundCreated:  p.handleRefundCreated,
		domain.EventRefundUpdated:  p.handleRefundUpdated,
	}
	return p
}

// NotificationURL is the URL signatures are computed over
func (p *Processor) NotificationURL() string {
	return p.notificationURL
}

// Verify checks the signature of a raw delivery with the stored signature key
func (p *Processor) Verify(ctx context.Context, body []byte, signature string) (bool, error) {
	rec, err := p.creds.Load(ctx)
	if err != nil {
		return false, err
	}
	return VerifySignature(rec.WebhookSignatureKey, body, signature, p.notificationURL), nil
}

// Ingest stores the event and runs its handler, marking it processed only on success.
// A processed event id returns OutcomeAlreadyProcessed without running any handler;
// an event left unprocessed by an earlier failed attempt is applied again.
func (p *Processor) Ingest(ctx context.Context, body []byte, env *Envelope) (Outcome, error) {
	start := time.Now()

	processed, err := p.events.IsProcessed(ctx, env.EventID)
	if err != nil {
		return "", fmt.Errorf("failed to check event %s: %w", env.EventID, err)
	}
	if processed {
		observability.RecordWebhookEvent(env.Type, "duplicate", time.Since(start).Seconds())
		p.logger.Info("Webhook event already processed", zap.String("event_id", env.EventID))
		return OutcomeAlreadyProcessed, nil
	}

	inserted, err := p.events.Store(ctx, &domain.WebhookEvent{
		EventID:          env.EventID,
		Type:             env.Type,
		MerchantID:       env.MerchantID,
		RelatedPaymentID: env.relatedPaymentID(),
		Payload:          body,
		CreatedAt:        p.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store event %s: %w", env.EventID, err)
	}
	if !inserted {
		// stored by an earlier attempt that did not finish; apply takes the row lock and re-checks
		p.logger.Info("Webhook event stored but unprocessed, applying again", zap.String("event_id", env.EventID))
	}

	applied, err := p.apply(ctx, env)
	if err != nil {
		observability.RecordWebhookEvent(env.Type, "error", time.Since(start).Seconds())
		return "", err
	}
	if !applied {
		observability.RecordWebhookEvent(env.Type, "duplicate", time.Since(start).Seconds())
		return OutcomeAlreadyProcessed, nil
	}

	observability.RecordWebhookEvent(env.Type, "processed", time.Since(start).Seconds())
	return OutcomeProcessed, nil
}

// Replay runs the handler of a stored event that is not yet processed
func (p *Processor) Replay(ctx context.Context, eventID string) (Outcome, error) {
	event, err := p.events.Get(ctx, eventID)
	if err != nil {
		return "", err
	}
	if event.Processed {
		return OutcomeAlreadyProcessed, nil
	}

	env, err := ParseEnvelope(event.Payload)
	if err != nil {
		return "", fmt.Errorf("stored event %s: %w", eventID, err)
	}
	applied, err := p.apply(ctx, env)
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeAlreadyProcessed, nil
	}
	return OutcomeProcessed, nil
}

// apply runs the event's handler and marks the event processed in one transaction.
// It reports false without running the handler when the event is already processed.
func (p *Processor) apply(ctx context.Context, env *Envelope) (bool, error) {
	rec, err := p.creds.Load(ctx)
	if err != nil {
		return false, err
	}

	kind := domain.ParseEventKind(env.Type)
	handler, ok := p.handlers[kind]

	applied := false
	err = p.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		processed, err := p.events.Lock(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("failed to lock event %s: %w", env.EventID, err)
		}
		if processed {
			return nil
		}

		if !ok {
			p.logger.Info("Unhandled webhook event type", zap.String("event_type", env.Type))
		} else if err := handler(ctx, env.Data.Object, rec); err != nil {
			p.logger.Error("Webhook event handler failed",
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.Type),
				zap.Error(err))
			return fmt.Errorf("failed to handle %s event %s: %w", env.Type, env.EventID, err)
		}

		if err := p.events.MarkProcessed(ctx, env.EventID); err != nil {
			return fmt.Errorf("failed to mark event %s processed: %w", env.EventID, err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

type paymentObject struct {
	Payment struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		UpdatedAt string `json:"updated_at"`
	} `json:"payment"`
}

type refundObject struct {
	Refund struct {
		PaymentID   string `json:"payment_id"`
		Status      string `json:"status"`
		Reason      string `json:"reason"`
		AmountMoney struct {
			Currency string `json:"currency"`
			Amount   int64  `json:"amount"`
		} `json:"amount_money"`
	} `json:"refund"`
}

func decodeObject(object json.RawMessage, v interface{}) error {
	if len(object) == 0 {
		return nil
	}
	if err := json.Unmarshal(object, v); err != nil {
		return fmt.Errorf("invalid event object: %w", err)
	}
	return nil
}

// findPayment returns nil without error for payments this store does not know
func (p *Processor) findPayment(ctx context.Context, networkPaymentID string) (*domain.Payment, error) {
	payment, err := p.payments.GetByNetworkID(ctx, networkPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// handlePaymentCreated only logs: the synchronous charge path is the sole writer of Payment Records
func (p *Processor) handlePaymentCreated(ctx context.Context, object json.RawMessage, _ *credentials.Record) error {
	var obj paymentObject
	if err := decodeObject(object, &obj); err != nil {
		return err
	}
	if obj.Payment.ID == "" || obj.Payment.Status == "" {
		return nil
	}

	payment, err := p.findPayment(ctx, obj.Payment.ID)
	if err != nil || payment != nil {
		return err
	}

	p.logger.Info("Webhook reported a payment not recorded locally",
		zap.String("payment_id", obj.Payment.ID),
		zap.String("status", obj.Payment.Status))
	return nil
}

func (p *Processor) handlePaymentUpdated(ctx context.Context, object json.RawMessage, rec *credentials.Record) error {
	var obj paymentObject
	if err := decodeObject(object, &obj); err != nil {
		return err
	}
	if obj.Payment.ID == "" || obj.Payment.Status == "" {
		return nil
	}

	payment, err := p.findPayment(ctx, obj.Payment.ID)
	if err != nil || payment == nil {
		return err
	}

	newStatus := domain.PaymentStatus(obj.Payment.Status)
	if payment.Status == newStatus {
		return nil
	}

	updatedAt := timeutil.ParseTimestampOr(obj.Payment.UpdatedAt, p.now())
	if err := p.payments.UpdateStatus(ctx, obj.Payment.ID, newStatus, updatedAt); err != nil {
		return err
	}

	mapper := p.statuses
	mapper.DelayCapture = rec.DelayCapture
	orderStatusID := mapper.Map(newStatus)

	if payment.OrderID != 0 && orderStatusID != 0 {
		comment := "Payment status updated via Square webhook: " + string(newStatus)
		if err := p.orders.AddHistory(ctx, payment.OrderID, orderStatusID, comment, false); err != nil {
			return err
		}
	}

	p.logger.Info("Payment status updated from webhook",
		zap.String("payment_id", obj.Payment.ID),
		zap.String("from", string(payment.Status)),
		zap.String("to", string(newStatus)))
	return nil
}

// handleRefundCreated accumulates the refund amount; concurrent partial refunds must sum
func (p *Processor) handleRefundCreated(ctx context.Context, object json.RawMessage, _ *credentials.Record) error {
	var obj refundObject
	if err := decodeObject(object, &obj); err != nil {
		return err
	}
	refund := obj.Refund
	if refund.PaymentID == "" || refund.AmountMoney.Amount == 0 {
		return nil
	}

	payment, err := p.findPayment(ctx, refund.PaymentID)
	if err != nil || payment == nil {
		return err
	}

	currency := refund.AmountMoney.Currency
	if currency == "" {
		currency = payment.Currency
	}

	total, err := p.payments.AddRefundedAmount(ctx, refund.PaymentID, refund.AmountMoney.Amount, currency)
	if err != nil {
		return err
	}

	if payment.OrderID != 0 {
		comment := "Refund received via Square webhook. Status: " + refund.Status
		if refund.Reason != "" {
			comment += ". Reason: " + refund.Reason
		}
		if err := p.commentOnOrder(ctx, payment.OrderID, comment); err != nil {
			return err
		}
	}

	p.logger.Info("Refund recorded from webhook",
		zap.String("payment_id", refund.PaymentID),
		zap.Int64("amount", refund.AmountMoney.Amount),
		zap.Int64("refunded_total", total),
		zap.String("currency", currency))
	return nil
}

func (p *Processor) handleRefundUpdated(ctx context.Context, object json.RawMessage, _ *credentials.Record) error {
	var obj refundObject
	if err := decodeObject(object, &obj); err != nil {
		return err
	}
	refund := obj.Refund
	if refund.PaymentID == "" || refund.Status == "" {
		return nil
	}

	payment, err := p.findPayment(ctx, refund.PaymentID)
	if err != nil || payment == nil {
		return err
	}

	if payment.OrderID != 0 && terminalRefundStatuses[refund.Status] {
		if err := p.commentOnOrder(ctx, payment.OrderID, "Refund status updated via Square webhook: "+refund.Status); err != nil {
			return err
		}
	}

	p.logger.Debug("Refund status updated from webhook",
		zap.String("payment_id", refund.PaymentID),
		zap.String("status", refund.Status))
	return nil
}

// commentOnOrder appends a history entry that keeps the order's current status
func (p *Processor) commentOnOrder(ctx context.Context, orderID int64, comment string) error {
	current, err := p.orders.CurrentStatus(ctx, orderID)
	if err != nil {
		return err
	}
	return p.orders.AddHistory(ctx, orderID, current, comment, false)
}
