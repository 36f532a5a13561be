package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/squareup-service/pkg/errors"
	"github.com/kevin07696/squareup-service/pkg/observability"
	"github.com/kevin07696/squareup-service/pkg/timeutil"
)

// Session keys holding the pending authorization
const (
	SessionKeyState    = "payment_squareup_oauth_state"
	SessionKeyRedirect = "payment_squareup_oauth_redirect"
)

// ExpiringSoonWindow is how long before expiry the connection is reported as expiring soon
const ExpiringSoonWindow = 5 * 24 * time.Hour

// ConnectionState is the lifecycle state of the merchant connection
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateAuthPending  ConnectionState = "AUTH_PENDING"
	StateConnected    ConnectionState = "CONNECTED"
	StateRefreshing   ConnectionState = "REFRESHING"
	StateRevoked      ConnectionState = "REVOKED"
)

// ExpiryStatus classifies the access token for display and alerting
type ExpiryStatus string

const (
	ExpiryNotConnected ExpiryStatus = "not_connected"
	ExpiryOK           ExpiryStatus = "ok"
	ExpiryExpiringSoon ExpiryStatus = "expiring_soon"
	ExpiryExpired      ExpiryStatus = "expired"
	ExpiryRevoked      ExpiryStatus = "revoked"
)

// TokenGateway is the part of the Square API the flow needs
type TokenGateway interface {
	OAuth2Config(app square.AppCredentials, redirectURL string) *oauth2.Config
	ExchangeCode(ctx context.Context, app square.AppCredentials, code, redirectURI string) (*square.TokenResponse, error)
	RefreshAccessToken(ctx context.Context, app square.AppCredentials, refreshToken string) (*square.TokenResponse, error)
	ListLocations(ctx context.Context, token string) ([]square.Location, string, error)
}

// CredentialStore persists the merchant binding
type CredentialStore interface {
	Load(ctx context.Context) (*credentials.Record, error)
	SaveTokens(ctx context.Context, tokens credentials.TokenSet) error
	SetLocationID(ctx context.Context, locationID string) error
	Clear(ctx context.Context) error
}

// Service runs the OAuth connection lifecycle of the single merchant
type Service struct {
	gateway TokenGateway
	creds   CredentialStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new OAuth flow service
func NewService(gateway TokenGateway, creds CredentialStore, logger *zap.Logger) *Service {
	return &Service{
		gateway: gateway,
		creds:   creds,
		logger:  logger,
		now:     timeutil.Now,
	}
}

// Expiry is the token expiry classification with the time it refers to
type Expiry struct {
	ExpiresAt time.Time
	Status    ExpiryStatus
	Remaining time.Duration
}

// State derives the connection state from the stored record and the caller's session
func (s *Service) State(ctx context.Context, sess ports.Session) (ConnectionState, error) {
	rec, err := s.creds.Load(ctx)
	if err != nil {
		return "", err
	}

	switch {
	case rec.TokenRevoked:
		return StateRevoked, nil
	case rec.IsConnected():
		return StateConnected, nil
	}

	if sess != nil {
		if state, ok := sess.Get(SessionKeyState); ok && state != "" {
			return StateAuthPending, nil
		}
	}
	return StateDisconnected, nil
}

// BuildAuthorizationLink mints a fresh CSRF state, stores it with redirectURI in the
// session and returns the provider authorization URL.
func (s *Service) BuildAuthorizationLink(ctx context.Context, sess ports.Session, redirectURI string) (string, error) {
	rec, err := s.creds.Load(ctx)
	if err != nil {
		return "", err
	}
	if rec.ClientID == "" {
		return "", pkgerrors.NewValidationError("client_id", "is required")
	}
	if redirectURI == "" {
		return "", pkgerrors.NewValidationError("redirect_uri", "is required")
	}

	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	sess.Set(SessionKeyState, state)
	sess.Set(SessionKeyRedirect, redirectURI)

	cfg := s.gateway.OAuth2Config(square.AppCredentials{ClientID: rec.ClientID}, redirectURI)
	link := cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("session", "false"))

	s.logger.Info("Built Square authorization link", zap.String("redirect_uri", redirectURI))
	return link, nil
}

// HandleCallback validates the returned state and exchanges code for tokens.
// A missing or mismatched state is a SecurityViolation and leaves the connection untouched.
func (s *Service) HandleCallback(ctx context.Context, sess ports.Session, code, returnedState string) error {
	stored, _ := sess.Get(SessionKeyState)
	if stored == "" || returnedState == "" ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(returnedState)) != 1 {
		reason := "state mismatch"
		if stored == "" {
			reason = "no pending authorization in session"
		}
		s.logger.Warn("Rejected OAuth callback", zap.String("check", "oauth_state"), zap.String("reason", reason))
		return pkgerrors.NewSecurityViolation("oauth_state", reason)
	}

	if code == "" {
		return pkgerrors.NewValidationError("code", "is required")
	}

	rec, err := s.creds.Load(ctx)
	if err != nil {
		return err
	}

	redirectURI, _ := sess.Get(SessionKeyRedirect)
	app := square.AppCredentials{ClientID: rec.ClientID, ClientSecret: rec.ClientSecret}

	tokens, err := s.gateway.ExchangeCode(ctx, app, code, redirectURI)
	if err != nil {
		s.logger.Error("Failed to exchange authorization code", zap.Error(err))
		return domain.WrapError(domain.ErrorCodeAuthorizationFailed, "failed to exchange authorization code", err)
	}
	if tokens.MerchantID == "" {
		return domain.NewDomainError(domain.ErrorCodeAuthorizationFailed, "token response has no merchant id")
	}

	if err := s.creds.SaveTokens(ctx, credentials.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		MerchantID:   tokens.MerchantID,
	}); err != nil {
		return err
	}

	sess.Delete(SessionKeyState)
	sess.Delete(SessionKeyRedirect)

	s.selectLocation(ctx, rec, tokens.AccessToken)
	s.recordExpiry(tokens.ExpiresAt)

	s.logger.Info("Connected Square merchant", zap.String("merchant_id", tokens.MerchantID))
	return nil
}

// selectLocation keeps the stored location when still eligible, otherwise stores the first eligible one
func (s *Service) selectLocation(ctx context.Context, rec *credentials.Record, token string) {
	locations, firstID, err := s.gateway.ListLocations(ctx, token)
	if err != nil {
		s.logger.Warn("Failed to list locations after connecting", zap.Error(err))
		return
	}

	for _, loc := range locations {
		if loc.ID == rec.LocationID {
			return
		}
	}
	if firstID == "" {
		s.logger.Warn("Connected merchant has no location able to process cards")
		return
	}
	if err := s.creds.SetLocationID(ctx, firstID); err != nil {
		s.logger.Error("Failed to store location", zap.Error(err))
	}
}

// Refresh exchanges the stored refresh token for a new access token. The response must name
// the bound merchant; otherwise nothing is stored and ErrMerchantMismatch is returned.
func (s *Service) Refresh(ctx context.Context) error {
	rec, err := s.creds.Load(ctx)
	if err != nil {
		return err
	}
	if rec.Sandbox {
		return domain.NewDomainError(domain.ErrorCodeNotConnected, "token refresh requires live credentials")
	}

	refreshToken := rec.ActiveRefreshToken()
	if rec.MerchantID == "" || refreshToken == "" {
		observability.RecordTokenRefresh("not_connected")
		return domain.ErrNotConnected
	}

	s.logger.Debug("Refreshing Square access token",
		zap.String("state", string(StateRefreshing)),
		zap.String("merchant_id", rec.MerchantID))

	app := square.AppCredentials{ClientID: rec.ClientID, ClientSecret: rec.ClientSecret}
	tokens, err := s.gateway.RefreshAccessToken(ctx, app, refreshToken)
	if err != nil {
		observability.RecordTokenRefresh("error")
		s.logger.Error("Failed to refresh access token", zap.Error(err))
		return domain.WrapError(domain.ErrorCodeTokenRefreshFailed, "access token refresh failed", err)
	}

	if tokens.AccessToken == "" || tokens.MerchantID == "" {
		observability.RecordTokenRefresh("error")
		return domain.NewDomainError(domain.ErrorCodeTokenRefreshFailed, "token response is missing access token or merchant id")
	}

	if tokens.MerchantID != rec.MerchantID {
		observability.RecordTokenRefresh("merchant_mismatch")
		s.logger.Error("Refused refreshed token for a different merchant",
			zap.String("bound_merchant_id", rec.MerchantID),
			zap.String("returned_merchant_id", tokens.MerchantID))
		return domain.ErrMerchantMismatch
	}

	if err := s.creds.SaveTokens(ctx, credentials.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}); err != nil {
		observability.RecordTokenRefresh("error")
		return err
	}

	observability.RecordTokenRefresh("success")
	s.recordExpiry(tokens.ExpiresAt)
	s.logger.Info("Refreshed Square access token",
		zap.String("merchant_id", rec.MerchantID),
		zap.Bool("refresh_token_rotated", tokens.RefreshToken != ""))
	return nil
}

// ExpiryStatus classifies the stored access token: expired, expiring within
// ExpiringSoonWindow, ok, or revoked when the network last reported it revoked.
func (s *Service) ExpiryStatus(ctx context.Context) (Expiry, error) {
	rec, err := s.creds.Load(ctx)
	if err != nil {
		return Expiry{}, err
	}

	if rec.TokenRevoked {
		return Expiry{Status: ExpiryRevoked, ExpiresAt: rec.AccessTokenExpiry}, nil
	}
	if !rec.IsConnected() {
		return Expiry{Status: ExpiryNotConnected}, nil
	}
	if rec.Sandbox || rec.AccessTokenExpiry.IsZero() {
		return Expiry{Status: ExpiryOK}, nil
	}

	return classifyExpiry(rec.AccessTokenExpiry, s.now()), nil
}

func classifyExpiry(expiresAt, now time.Time) Expiry {
	remaining := expiresAt.Sub(now)
	status := ExpiryOK
	switch {
	case remaining < 0:
		status = ExpiryExpired
	case remaining < ExpiringSoonWindow:
		status = ExpiryExpiringSoon
	}
	return Expiry{ExpiresAt: expiresAt, Status: status, Remaining: remaining}
}

// Disconnect removes the merchant binding
func (s *Service) Disconnect(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("Disconnected Square merchant")
	return nil
}

func (s *Service) recordExpiry(expiresAt string) {
	if expiresAt == "" {
		return
	}
	t, err := timeutil.ParseTimestamp(expiresAt)
	if err != nil {
		s.logger.Warn("Token expiry is not RFC3339", zap.String("expires_at", expiresAt))
		return
	}
	observability.SetTokenExpiry(time.Until(t).Seconds())
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
