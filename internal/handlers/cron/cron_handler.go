package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/domain"
	cronsvc "github.com/kevin07696/squareup-service/internal/services/cron"
)

// TickRunner is the scheduled work the handler triggers
type TickRunner interface {
	RunTick(ctx context.Context) (*cronsvc.Summary, error)
	ChargeSubscriptionByID(ctx context.Context, subscriptionID int64) (cronsvc.ChargeOutcome, error)
}

// Handler exposes the cron tick over HTTP for an external scheduler
type Handler struct {
	runner     TickRunner
	logger     *zap.Logger
	cronSecret string
	now        func() time.Time
}

// NewHandler creates a new cron handler. An empty secret rejects every request.
func NewHandler(runner TickRunner, logger *zap.Logger, cronSecret string) *Handler {
	return &Handler{
		runner:     runner,
		logger:     logger,
		cronSecret: cronSecret,
		now:        time.Now,
	}
}

// TickResponse is the response of a tick run
type TickResponse struct {
	Success     bool             `json:"success"`
	Summary     *cronsvc.Summary `json:"summary"`
	ProcessedAt string           `json:"processed_at"`
}

// ChargeResponse is the response of a single subscription charge
type ChargeResponse struct {
	Success        bool                  `json:"success"`
	SubscriptionID int64                 `json:"subscription_id"`
	Outcome        cronsvc.ChargeOutcome `json:"outcome"`
	ProcessedAt    string                `json:"processed_at"`
}

// Routes registers the cron endpoints on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/cron/squareup", h.RunTick)
	mux.HandleFunc("/cron/squareup/subscriptions/{id}", h.ChargeSubscription)
	mux.HandleFunc("/cron/health", h.HealthCheck)
}

// RunTick handles POST /cron/squareup
func (h *Handler) RunTick(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Cron tick triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if !h.guard(w, r) {
		return
	}

	summary, err := h.runner.RunTick(r.Context())
	if err != nil {
		h.logger.Error("Cron tick failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "tick failed")
		return
	}

	resp := TickResponse{
		Success:     summary.TokenUpdateError == "" && len(summary.Failed) == 0 && len(summary.TransactionErrors) == 0,
		Summary:     summary,
		ProcessedAt: h.now().Format(time.RFC3339),
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent
	}
	h.respond(w, status, resp)
}

// ChargeSubscription handles POST /cron/squareup/subscriptions/{id}
func (h *Handler) ChargeSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r) {
		return
	}

	id, err := cronsvc.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.runner.ChargeSubscriptionByID(r.Context(), id)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		h.respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		h.logger.Error("Subscription charge failed",
			zap.Int64("subscription_id", id),
			zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "charge failed")
		return
	}

	resp := ChargeResponse{
		Success:        outcome == cronsvc.OutcomeCharged || outcome == cronsvc.OutcomeFree,
		SubscriptionID: id,
		Outcome:        outcome,
		ProcessedAt:    h.now().Format(time.RFC3339),
	}
	h.respond(w, http.StatusOK, resp)
}

// HealthCheck handles GET /cron/health for monitoring
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

// guard enforces POST and the shared secret, writing the rejection itself
func (h *Handler) guard(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return false
	}
	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

// authenticateRequest accepts the secret in X-Cron-Secret or as a bearer token
func (h *Handler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}

	if secret := r.Header.Get("X-Cron-Secret"); secret != "" {
		return secureEqual(secret, h.cronSecret)
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return secureEqual(token, h.cronSecret)
	}

	return false
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) respond(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
