package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/domain"
	webhooksvc "github.com/kevin07696/squareup-service/internal/services/webhook"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// EventLog lists stored notifications
type EventLog interface {
	List(ctx context.Context, limit, offset int32) ([]*domain.WebhookEvent, error)
	Count(ctx context.Context) (int64, error)
}

// Replayer re-runs a stored notification that failed to process
type Replayer interface {
	Replay(ctx context.Context, eventID string) (webhooksvc.Outcome, error)
}

// EventsHandler serves the admin view of stored webhook events
type EventsHandler struct {
	events   EventLog
	replayer Replayer
	logger   *zap.Logger
}

// NewEventsHandler creates the admin webhook events handler
func NewEventsHandler(events EventLog, replayer Replayer, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		events:   events,
		replayer: replayer,
		logger:   logger,
	}
}

// EventView is a stored event with its payload inlined as JSON
type EventView struct {
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	EventID     string          `json:"event_id"`
	Type        string          `json:"event_type"`
	MerchantID  string          `json:"merchant_id"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
}

// ListResponse is one page of stored events, newest first
type ListResponse struct {
	Events []EventView `json:"events"`
	Total  int64       `json:"total"`
	Limit  int32       `json:"limit"`
	Offset int32       `json:"offset"`
}

// Routes registers the admin event endpoints on mux
func (h *EventsHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /webhooks/events", h.List)
	mux.HandleFunc("POST /webhooks/events/{id}/replay", h.Replay)
}

// List handles GET /webhooks/events?limit=&offset=
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt32(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt32(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.events.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list webhook events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list events"})
		return
	}
	total, err := h.events.Count(r.Context())
	if err != nil {
		h.logger.Error("Failed to count webhook events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list events"})
		return
	}

	resp := ListResponse{Events: make([]EventView, 0, len(events)), Total: total, Limit: limit, Offset: offset}
	for _, e := range events {
		resp.Events = append(resp.Events, toView(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Replay handles POST /webhooks/events/{id}/replay
func (h *EventsHandler) Replay(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	outcome, err := h.replayer.Replay(r.Context(), eventID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Event not found"})
			return
		}
		h.logger.Error("Webhook replay failed", zap.String("event_id", eventID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Processing failed"})
		return
	}

	h.logger.Info("Webhook event replayed", zap.String("event_id", eventID), zap.String("outcome", string(outcome)))
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func toView(e *domain.WebhookEvent) EventView {
	view := EventView{
		CreatedAt:   e.CreatedAt,
		ProcessedAt: e.ProcessedAt,
		EventID:     e.EventID,
		Type:        e.Type,
		MerchantID:  e.MerchantID,
		PaymentID:   e.RelatedPaymentID,
		Processed:   e.Processed,
	}
	if json.Valid(e.Payload) {
		view.Payload = e.Payload
	} else {
		view.Payload = json.RawMessage("null")
	}
	return view
}

func queryInt32(r *http.Request, key string, fallback int32) int32 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
