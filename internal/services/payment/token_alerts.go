package payment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	"github.com/kevin07696/squareup-service/pkg/observability"
)

// Notification texts
const (
	TokenIssueCustomerMessage = "We are experiencing a technical outage in our payment system. Please try again later."

	tokenRevokedSubject = "Your Square access token has been revoked!"
	tokenRevokedMessage = "The Square payment extension's access to your Square account has been revoked through the Square Dashboard. " +
		"You need to verify your application credentials in the extension settings and connect again."
	tokenExpiredSubject = "Your Square access token has expired!"
	tokenExpiredMessage = "The Square payment extension's access token connecting it to your Square account has expired. " +
		"You need to verify your application credentials and CRON job in the extension settings and connect again."
)

// Alert kinds used as throttle keys
const (
	AlertTokenRevoked = "token_revoked"
	AlertTokenExpired = "token_expired"
)

// AlertWindow is the minimum interval between two admin e-mails of the same kind
const AlertWindow = 15 * time.Minute

// CustomerError carries a message safe to show the buyer; Err keeps the cause
type CustomerError struct {
	Err     error
	Message string
}

func (e *CustomerError) Error() string {
	return e.Message
}

func (e *CustomerError) Unwrap() error {
	return e.Err
}

// RevocationRecorder persists that the access token was revoked
type RevocationRecorder interface {
	MarkRevoked(ctx context.Context) error
}

// TokenAlerter turns API failures into buyer-safe errors and notifies the admin
// when the stored access token stops working
type TokenAlerter struct {
	mailer      ports.Mailer
	throttle    ports.NotificationThrottle
	revocations RevocationRecorder
	logger      *zap.Logger
	adminEmail  string
}

// NewTokenAlerter creates a token alerter. adminEmail may be empty to disable e-mail.
func NewTokenAlerter(
	mailer ports.Mailer,
	throttle ports.NotificationThrottle,
	revocations RevocationRecorder,
	adminEmail string,
	logger *zap.Logger,
) *TokenAlerter {
	return &TokenAlerter{
		mailer:      mailer,
		throttle:    throttle,
		revocations: revocations,
		logger:      logger,
		adminEmail:  adminEmail,
	}
}

// Handle classifies err. Transport failures and revoked or expired tokens become the generic
// outage message; other API errors become their joined message. Anything else is returned as is.
func (a *TokenAlerter) Handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if square.IsTransportError(err) {
		a.logger.Error("Square API unreachable", zap.Error(err))
		return &CustomerError{Err: err, Message: TokenIssueCustomerMessage}
	}

	apiErr, ok := square.AsAPIError(err)
	if !ok {
		return err
	}

	switch {
	case apiErr.IsAccessTokenRevoked():
		if recErr := a.revocations.MarkRevoked(ctx); recErr != nil {
			a.logger.Error("Failed to record token revocation", zap.Error(recErr))
		}
		a.notify(ctx, AlertTokenRevoked, tokenRevokedSubject, tokenRevokedMessage)
		return &CustomerError{Err: err, Message: TokenIssueCustomerMessage}
	case apiErr.IsAccessTokenExpired():
		a.notify(ctx, AlertTokenExpired, tokenExpiredSubject, tokenExpiredMessage)
		return &CustomerError{Err: err, Message: TokenIssueCustomerMessage}
	}

	return &CustomerError{Err: err, Message: apiErr.Error()}
}

// notify sends at most one e-mail per kind per AlertWindow. A throttle failure still sends.
func (a *TokenAlerter) notify(ctx context.Context, kind, subject, message string) {
	if a.adminEmail == "" {
		a.logger.Warn("No admin e-mail configured for token alert", zap.String("kind", kind))
		observability.RecordAdminNotification(kind, "unconfigured")
		return
	}

	allowed, err := a.throttle.Allow(ctx, kind, AlertWindow)
	if err != nil {
		a.logger.Warn("Notification throttle unavailable", zap.String("kind", kind), zap.Error(err))
		allowed = true
	}
	if !allowed {
		a.logger.Debug("Token alert suppressed", zap.String("kind", kind))
		observability.RecordAdminNotification(kind, "throttled")
		return
	}

	if err := a.mailer.Send(ctx, a.adminEmail, subject, message); err != nil {
		a.logger.Error("Failed to send token alert", zap.String("kind", kind), zap.Error(err))
		observability.RecordAdminNotification(kind, "failed")
		return
	}
	a.logger.Info("Token alert sent", zap.String("kind", kind))
	observability.RecordAdminNotification(kind, "sent")
}

// IsCustomerError reports whether err carries a buyer-safe message
func IsCustomerError(err error) bool {
	var ce *CustomerError
	return errors.As(err, &ce)
}
