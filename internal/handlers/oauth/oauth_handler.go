package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/domain"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	oauthsvc "github.com/kevin07696/squareup-service/internal/services/oauth"
	pkgerrors "github.com/kevin07696/squareup-service/pkg/errors"
)

// Flow is the OAuth connection lifecycle the handler drives
type Flow interface {
	State(ctx context.Context, sess ports.Session) (oauthsvc.ConnectionState, error)
	BuildAuthorizationLink(ctx context.Context, sess ports.Session, redirectURI string) (string, error)
	HandleCallback(ctx context.Context, sess ports.Session, code, returnedState string) error
	ExpiryStatus(ctx context.Context) (oauthsvc.Expiry, error)
	Refresh(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Session is a request session that can be written back to the response
type Session interface {
	ports.Session
	Save(r *http.Request, w http.ResponseWriter) error
}

// SessionLoader returns the caller's session. It may return a usable fresh session
// together with an error when the stored one could not be decoded.
type SessionLoader func(r *http.Request) (Session, error)

// Handler serves the admin connect, callback and connection management endpoints
type Handler struct {
	flow        Flow
	sessions    SessionLoader
	logger      *zap.Logger
	redirectURL string
	// successURL receives the browser after a completed connection; empty answers with JSON
	successURL string
}

// NewHandler creates a new OAuth handler
func NewHandler(flow Flow, sessions SessionLoader, redirectURL, successURL string, logger *zap.Logger) *Handler {
	return &Handler{
		flow:        flow,
		sessions:    sessions,
		logger:      logger,
		redirectURL: redirectURL,
		successURL:  successURL,
	}
}

// StatusResponse describes the merchant connection
type StatusResponse struct {
	State            oauthsvc.ConnectionState `json:"state"`
	Expiry           oauthsvc.ExpiryStatus    `json:"expiry"`
	ExpiresAt        string                   `json:"expires_at,omitempty"`
	RemainingSeconds int64                    `json:"remaining_seconds,omitempty"`
}

// Routes registers the OAuth endpoints on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /oauth/connect", h.Connect)
	mux.HandleFunc("GET /oauth/callback", h.Callback)
	mux.HandleFunc("GET /oauth/status", h.Status)
	mux.HandleFunc("POST /oauth/refresh", h.Refresh)
	mux.HandleFunc("POST /oauth/disconnect", h.Disconnect)
}

// Connect handles GET /oauth/connect by redirecting to the Square authorization page
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	link, err := h.flow.BuildAuthorizationLink(r.Context(), sess, h.redirectURL)
	if err != nil {
		h.respondFlowError(w, "Failed to build authorization link", err)
		return
	}

	if err := sess.Save(r, w); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	http.Redirect(w, r, link, http.StatusFound)
}

// Callback handles GET /oauth/callback, the return leg of the authorization redirect
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		description := q.Get("error_description")
		if description == "" {
			description = providerErr
		}
		h.logger.Warn("Authorization was not granted",
			zap.String("error", providerErr),
			zap.String("description", description))
		h.respondError(w, http.StatusBadRequest, description)
		return
	}

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	callbackErr := h.flow.HandleCallback(r.Context(), sess, q.Get("code"), q.Get("state"))

	if err := sess.Save(r, w); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
	}

	if callbackErr != nil {
		h.respondFlowError(w, "OAuth callback failed", callbackErr)
		return
	}

	if h.successURL != "" {
		http.Redirect(w, r, h.successURL, http.StatusFound)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "connected"})
}

// Status handles GET /oauth/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	state, err := h.flow.State(r.Context(), sess)
	if err != nil {
		h.respondFlowError(w, "Failed to read connection state", err)
		return
	}
	expiry, err := h.flow.ExpiryStatus(r.Context())
	if err != nil {
		h.respondFlowError(w, "Failed to read token expiry", err)
		return
	}

	resp := StatusResponse{State: state, Expiry: expiry.Status}
	if !expiry.ExpiresAt.IsZero() {
		resp.ExpiresAt = expiry.ExpiresAt.UTC().Format(time.RFC3339)
		resp.RemainingSeconds = int64(expiry.Remaining / time.Second)
	}
	h.respond(w, http.StatusOK, resp)
}

// Refresh handles POST /oauth/refresh, renewing the access token on demand
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Refresh(r.Context()); err != nil {
		h.respondFlowError(w, "Manual token refresh failed", err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// Disconnect handles POST /oauth/disconnect
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Disconnect(r.Context()); err != nil {
		h.respondFlowError(w, "Disconnect failed", err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// loadSession tolerates an undecodable cookie by continuing with a fresh session
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	sess, err := h.sessions(r)
	if sess == nil {
		h.logger.Error("Failed to load session", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal error")
		return nil, false
	}
	if err != nil {
		h.logger.Warn("Discarded unreadable session cookie", zap.Error(err))
	}
	return sess, true
}

// respondFlowError maps flow errors to responses. Security violations only ever expose the
// generic message.
func (h *Handler) respondFlowError(w http.ResponseWriter, logMsg string, err error) {
	var (
		status  = http.StatusInternalServerError
		message = "Internal error"
	)

	var domainErr *domain.DomainError
	switch {
	case pkgerrors.IsSecurityViolation(err):
		status, message = http.StatusForbidden, pkgerrors.GenericSecurityMessage
	case pkgerrors.IsValidation(err):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotConnected):
		status, message = http.StatusConflict, "Square account is not connected"
	case errors.As(err, &domainErr) && domain.IsConnectionError(err):
		status, message = http.StatusBadGateway, domainErr.Message
		if apiErr, ok := square.AsAPIError(err); ok {
			message = apiErr.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, zap.Error(err))
	} else {
		h.logger.Warn(logMsg, zap.Int("status", status), zap.String("error", message))
	}
	h.respondError(w, status, message)
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
