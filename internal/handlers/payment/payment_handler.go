package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/domain"
	paymentsvc "github.com/kevin07696/squareup-service/internal/services/payment"
	pkgerrors "github.com/kevin07696/squareup-service/pkg/errors"
)

const maxBodyBytes = 64 << 10

// IdempotencyKeyHeader lets a client retry a charge or refund without repeating it
const IdempotencyKeyHeader = "Idempotency-Key"

// Operator runs the synchronous payment operations
type Operator interface {
	Charge(ctx context.Context, req paymentsvc.ChargeRequest) (*paymentsvc.ChargeResult, error)
	Capture(ctx context.Context, networkPaymentID string) (*domain.Payment, error)
	Void(ctx context.Context, networkPaymentID string) (*domain.Payment, error)
	Refund(ctx context.Context, networkPaymentID string, amount int64, reason, idempotencyKey string) (*square.Refund, error)
	Refresh(ctx context.Context, networkPaymentID string) (*domain.Payment, error)
}

// Handler serves the payment operations to the host store and its admin
type Handler struct {
	payments      Operator
	logger        *zap.Logger
	storeCurrency string
}

// NewHandler creates a new payment handler. storeCurrency fills charges that omit it.
func NewHandler(payments Operator, storeCurrency string, logger *zap.Logger) *Handler {
	return &Handler{
		payments:      payments,
		logger:        logger,
		storeCurrency: storeCurrency,
	}
}

// ChargeRequest is the JSON body of POST /payments
type ChargeRequest struct {
	Billing           domain.BillingAddress `json:"billing"`
	Total             string                `json:"total"`
	StoreCurrency     string                `json:"store_currency,omitempty"`
	Currency          string                `json:"currency,omitempty"`
	SourceID          string                `json:"source_id"`
	CustomerID        string                `json:"customer_id,omitempty"`
	VerificationToken string                `json:"verification_token,omitempty"`
	Email             string                `json:"email,omitempty"`
	Phone             string                `json:"phone,omitempty"`
	OrderID           int64                 `json:"order_id"`
	SaveCard          bool                  `json:"save_card,omitempty"`
}

// RefundRequest is the JSON body of POST /payments/{id}/refund
type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
	Amount int64  `json:"amount"`
}

// ChargeResponse wraps a recorded charge
type ChargeResponse struct {
	Payment *domain.Payment `json:"payment"`
	Card    *square.Card    `json:"card,omitempty"`
}

// Routes registers the payment endpoints on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", h.Charge)
	mux.HandleFunc("POST /payments/{id}/capture", h.Capture)
	mux.HandleFunc("POST /payments/{id}/void", h.Void)
	mux.HandleFunc("POST /payments/{id}/refund", h.Refund)
	mux.HandleFunc("POST /payments/{id}/refresh", h.Refresh)
}

// Charge handles POST /payments
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var body ChargeRequest
	if !h.decode(w, r, &body) {
		return
	}

	total, err := decimal.NewFromString(body.Total)
	if err != nil {
		h.respondServiceError(w, "Invalid charge total", pkgerrors.NewValidationError("total", "must be a decimal number"))
		return
	}
	storeCurrency := strings.ToUpper(body.StoreCurrency)
	if storeCurrency == "" {
		storeCurrency = h.storeCurrency
	}

	result, err := h.payments.Charge(r.Context(), paymentsvc.ChargeRequest{
		Billing:           body.Billing,
		Total:             total,
		StoreCurrency:     storeCurrency,
		Currency:          strings.ToUpper(body.Currency),
		SourceID:          body.SourceID,
		CustomerID:        body.CustomerID,
		VerificationToken: body.VerificationToken,
		Email:             body.Email,
		Phone:             body.Phone,
		IP:                clientIP(r),
		UserAgent:         r.UserAgent(),
		OrderID:           body.OrderID,
		IdempotencyKey:    idempotencyKey(r),
		SaveCard:          body.SaveCard,
	})
	if err != nil {
		h.respondServiceError(w, "Charge failed", err)
		return
	}

	h.logger.Info("Charge recorded",
		zap.String("payment_id", result.Payment.NetworkPaymentID),
		zap.Int64("order_id", result.Payment.OrderID),
		zap.String("status", string(result.Payment.Status)))
	h.respond(w, http.StatusCreated, ChargeResponse{Payment: result.Payment, Card: result.Card})
}

// Capture handles POST /payments/{id}/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Capture failed", h.payments.Capture)
}

// Void handles POST /payments/{id}/void
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Void failed", h.payments.Void)
}

// Refresh handles POST /payments/{id}/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Refresh failed", h.payments.Refresh)
}

// Refund handles POST /payments/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var body RefundRequest
	if !h.decode(w, r, &body) {
		return
	}

	refund, err := h.payments.Refund(r.Context(), r.PathValue("id"), body.Amount, body.Reason, idempotencyKey(r))
	if err != nil {
		h.respondServiceError(w, "Refund failed", err)
		return
	}
	h.respond(w, http.StatusAccepted, refund)
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
}

func (h *Handler) paymentAction(w http.ResponseWriter, r *http.Request, logMsg string, action func(context.Context, string) (*domain.Payment, error)) {
	payment, err := action(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, logMsg, err)
		return
	}
	h.respond(w, http.StatusOK, payment)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondServiceError maps service errors to responses. Buyer-facing messages from
// CustomerError are passed through; internal causes are only logged.
func (h *Handler) respondServiceError(w http.ResponseWriter, logMsg string, err error) {
	var (
		status  = http.StatusInternalServerError
		message = "Internal error"
		fields  map[string]string
	)

	var (
		customerErr *paymentsvc.CustomerError
		list        pkgerrors.ValidationErrors
		single      *pkgerrors.ValidationError
	)
	switch {
	case errors.As(err, &customerErr):
		status, message = http.StatusPaymentRequired, customerErr.Message
	case errors.As(err, &list):
		status, message, fields = http.StatusBadRequest, "Validation failed", list.Fields()
	case errors.As(err, &single):
		status, message, fields = http.StatusBadRequest, "Validation failed", map[string]string{single.Field: single.Message}
	case domain.IsValidationError(err):
		status, message = http.StatusBadRequest, err.Error()
	case domain.IsNotFoundError(err):
		status, message = http.StatusNotFound, "Payment not found"
	case errors.Is(err, domain.ErrNotConnected):
		status, message = http.StatusConflict, "Square account is not connected"
	case errors.Is(err, domain.ErrPaymentInvalidState), errors.Is(err, domain.ErrRefundExceedsAvailable):
		status, message = http.StatusConflict, err.Error()
	default:
		if apiErr, ok := square.AsAPIError(err); ok {
			status, message = http.StatusBadGateway, apiErr.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, zap.Error(err))
	} else {
		h.logger.Warn(logMsg, zap.Int("status", status), zap.Error(err))
	}

	body := map[string]interface{}{"error": message}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	h.respond(w, status, body)
}

func (h *Handler) respond(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, map[string]string{"error": message})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
