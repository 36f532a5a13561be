package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	webhooksvc "github.com/kevin07696/squareup-service/internal/services/webhook"
)

// maxBodyBytes caps the size of a notification body
const maxBodyBytes = 1 << 20

// EventProcessor verifies and applies notifications
type EventProcessor interface {
	Verify(ctx context.Context, body []byte, signature string) (bool, error)
	Ingest(ctx context.Context, body []byte, env *webhooksvc.Envelope) (webhooksvc.Outcome, error)
}

// Handler serves the Square webhook notification endpoint
type Handler struct {
	processor EventProcessor
	logger    *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(processor EventProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    logger,
	}
}

// ServeHTTP handles POST /webhooks/square
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respond(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		h.respond(w, http.StatusBadRequest, map[string]string{"error": "Empty body"})
		return
	}
	if len(body) > maxBodyBytes {
		h.logger.Warn("Webhook body exceeds limit", zap.String("remote_addr", r.RemoteAddr), zap.Int("limit_bytes", maxBodyBytes))
		h.respond(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}
	if len(body) == 0 {
		h.respond(w, http.StatusBadRequest, map[string]string{"error": "Empty body"})
		return
	}

	ok, err := h.processor.Verify(r.Context(), body, r.Header.Get(webhooksvc.SignatureHeader))
	if err != nil {
		h.logger.Error("Failed to load webhook signature key", zap.Error(err))
		h.respond(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	if !ok {
		h.logger.Warn("Webhook signature verification failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("body_bytes", len(body)),
		)
		h.respond(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	env, err := webhooksvc.ParseEnvelope(body)
	if err != nil {
		h.respond(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	outcome, err := h.processor.Ingest(r.Context(), body, env)
	if err != nil {
		if errors.Is(err, webhooksvc.ErrInvalidPayload) {
			h.respond(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
			return
		}
		h.logger.Error("Webhook processing failed",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
		// non-2xx makes the network redeliver
		h.respond(w, http.StatusInternalServerError, map[string]string{"error": "Processing failed"})
		return
	}

	h.respond(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (h *Handler) respond(w http.ResponseWriter, statusCode int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
