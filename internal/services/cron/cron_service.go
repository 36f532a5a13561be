package cron

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/domain"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	"github.com/kevin07696/squareup-service/internal/services/payment"
	"github.com/kevin07696/squareup-service/pkg/money"
	"github.com/kevin07696/squareup-service/pkg/observability"
	"github.com/kevin07696/squareup-service/pkg/timeutil"
)

// Summary e-mail texts
const (
	SummarySubject        = "Square CRON job summary"
	summaryIntro          = "Here is a list of all CRON tasks performed by your Square extension:"
	summaryTokenHeading   = "Refresh of access token:"
	summaryTokenUpdated   = "Access token updated successfully!"
	summaryErrorHeading   = "Transaction Errors:"
	summaryFailHeading    = "Failed Transactions (Subscriptions Suspended):"
	summarySuccessHeading = "Successful Transactions:"
	summaryFailCharge     = "Subscription <strong>#%d</strong> could not get charged with <strong>%s</strong>"
	summarySuccessCharge  = "Subscription <strong>#%d</strong> was charged with <strong>%s</strong>"
)

// TokenRefreshFailedMessage is reported when the refresh did not yield a usable token
const TokenRefreshFailedMessage = "Error: Access token could not get refreshed. Please reconnect the Square account from the admin panel."

// Subscription history and log texts
const (
	commentMissingCard       = "Missing card-on-file or customer ID for recurring payment."
	logMissingCard           = "Missing card_id or customer_id in payment_method."
	commentTrialExpired      = " Your trial period has expired."
	commentSubscriptionEnded = " Your subscription payments have expired. This was your last payment."
	commentSuspended         = " Your subscription payments have been suspended. Please contact us for more details."

	logCode = "payment"
)

// TokenRefresher renews the stored access token
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// ModeSource reports whether the connection runs against the sandbox
type ModeSource interface {
	IsSandbox(ctx context.Context) (bool, error)
}

// SubscriptionCharger charges a stored card for one subscription cycle
type SubscriptionCharger interface {
	ChargeRecurring(ctx context.Context, req payment.ChargeRequest) (*domain.Payment, error)
}

// Config holds the host settings the tick depends on
type Config struct {
	StoreCurrency string
	// SummaryEmail receives the tick summary; empty disables it
	SummaryEmail           string
	NotifyRecurringSuccess bool
	NotifyRecurringFail    bool
	StatusAuthorized       int
	StatusCaptured         int
	StatusFailed           int
	StatusDefault          int
}

// ChargeOutcome is the result of one subscription charge
type ChargeOutcome string

const (
	OutcomeCharged ChargeOutcome = "charged"
	OutcomeFree    ChargeOutcome = "free"
	OutcomeFailed  ChargeOutcome = "failed"
	OutcomeError   ChargeOutcome = "error"
)

// Summary collects what a tick did
type Summary struct {
	TokenRefreshed    bool     `json:"token_refreshed"`
	TokenUpdateError  string   `json:"token_update_error,omitempty"`
	TransactionErrors []string `json:"transaction_errors"`
	Failed            []string `json:"failed"`
	Succeeded         []string `json:"succeeded"`
	Processed         int      `json:"processed"`
}

// Service runs the scheduled tick: token refresh and recurring subscription charges
type Service struct {
	refresher     TokenRefresher
	mode          ModeSource
	charger       SubscriptionCharger
	subscriptions ports.SubscriptionRepository
	orders        ports.OrderHistory
	currencies    ports.CurrencyMetadata
	mailer        ports.Mailer
	converter     *money.Converter
	cfg           Config
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a new cron service
func NewService(
	refresher TokenRefresher,
	mode ModeSource,
	charger SubscriptionCharger,
	subscriptions ports.SubscriptionRepository,
	orders ports.OrderHistory,
	currencies ports.CurrencyMetadata,
	mailer ports.Mailer,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		refresher:     refresher,
		mode:          mode,
		charger:       charger,
		subscriptions: subscriptions,
		orders:        orders,
		currencies:    currencies,
		mailer:        mailer,
		converter:     money.NewConverter(currencies),
		cfg:           cfg,
		logger:        logger,
		now:           timeutil.Now,
	}
}

// RunTick refreshes the access token (live mode only), charges every due subscription
// and mails the summary when an address is configured.
func (s *Service) RunTick(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		TransactionErrors: make([]string, 0),
		Failed:            make([]string, 0),
		Succeeded:         make([]string, 0),
	}

	sandbox, err := s.mode.IsSandbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection mode: %w", err)
	}
	if !sandbox {
		s.refreshToken(ctx, summary)
	}

	due, err := s.subscriptions.ListDue(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	summary.Processed = len(due)

	for _, sub := range due {
		price := s.formatPrice(sub.CurrentPlan().Price, sub.Currency)
		outcome, err := s.ChargeSubscription(ctx, sub)
		switch {
		case err != nil:
			summary.TransactionErrors = append(summary.TransactionErrors,
				fmt.Sprintf("Subscription #%d: %s", sub.ID, html.EscapeString(err.Error())))
		case outcome == OutcomeError || outcome == OutcomeFailed:
			summary.Failed = append(summary.Failed, fmt.Sprintf(summaryFailCharge, sub.ID, price))
		default:
			summary.Succeeded = append(summary.Succeeded, fmt.Sprintf(summarySuccessCharge, sub.ID, price))
		}
	}

	s.logger.Info("Cron tick completed",
		zap.Bool("sandbox", sandbox),
		zap.Bool("token_refreshed", summary.TokenRefreshed),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("errors", len(summary.TransactionErrors)))

	if s.cfg.SummaryEmail != "" {
		if err := s.mailer.Send(ctx, s.cfg.SummaryEmail, SummarySubject, RenderSummary(summary)); err != nil {
			s.logger.Error("Failed to send cron summary", zap.Error(err))
		}
	}

	return summary, nil
}

func (s *Service) refreshToken(ctx context.Context, summary *Summary) {
	err := s.refresher.Refresh(ctx)
	if err == nil {
		summary.TokenRefreshed = true
		return
	}

	s.logger.Error("Scheduled token refresh failed", zap.Error(err))
	if apiErr, ok := square.AsAPIError(err); ok {
		summary.TokenUpdateError = apiErr.Error()
		return
	}
	summary.TokenUpdateError = TokenRefreshFailedMessage
}

// ChargeSubscriptionByID loads and charges one subscription
func (s *Service) ChargeSubscriptionByID(ctx context.Context, subscriptionID int64) (ChargeOutcome, error) {
	sub, err := s.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	return s.ChargeSubscription(ctx, sub)
}

// ChargeSubscription charges one cycle of sub and records the result in the subscription
// and order histories. Charge failures are recorded, not returned; an error means the
// subscription could not be billed or recorded at all.
func (s *Service) ChargeSubscription(ctx context.Context, sub *domain.Subscription) (ChargeOutcome, error) {
	outcome, err := s.chargeSubscription(ctx, sub)
	observability.RecordSubscriptionCharge(string(outcome))
	return outcome, err
}

func (s *Service) chargeSubscription(ctx context.Context, sub *domain.Subscription) (ChargeOutcome, error) {
	if sub.CardID == "" || sub.CustomerID == "" {
		if err := s.subscriptions.AddHistory(ctx, sub.ID, int(domain.SubscriptionStatusFailed), commentMissingCard); err != nil {
			return OutcomeError, err
		}
		if err := s.subscriptions.AddLog(ctx, sub.ID, logCode, logMissingCard, false); err != nil {
			return OutcomeError, err
		}
		return OutcomeError, nil
	}

	inTrial := sub.InTrial()
	plan := sub.CurrentPlan()
	price, err := decimal.NewFromString(plan.Price)
	if err != nil {
		return OutcomeError, fmt.Errorf("invalid price %q for subscription %d: %w", plan.Price, sub.ID, err)
	}
	free := price.IsZero()

	status := domain.PaymentStatusCompleted
	if !free {
		paid, err := s.charger.ChargeRecurring(ctx, payment.ChargeRequest{
			Total:         price,
			StoreCurrency: s.cfg.StoreCurrency,
			SourceID:      sub.CardID,
			CustomerID:    sub.CustomerID,
			Email:         sub.CustomerEmail,
			OrderID:       sub.OrderID,
		})
		if err != nil {
			return OutcomeError, s.recordChargeError(ctx, sub, err)
		}
		status = paid.Status
	}

	if status != domain.PaymentStatusCompleted && status != domain.PaymentStatusApproved {
		return OutcomeFailed, s.recordFailure(ctx, sub, status)
	}

	if err := s.recordSuccess(ctx, sub, plan, status, free, inTrial); err != nil {
		return OutcomeError, err
	}
	if free {
		return OutcomeFree, nil
	}
	return OutcomeCharged, nil
}

func (s *Service) recordChargeError(ctx context.Context, sub *domain.Subscription, chargeErr error) error {
	message := chargeErr.Error()
	if apiErr, ok := square.AsAPIError(chargeErr); ok {
		message = apiErr.Error()
	}

	s.logger.Error("Recurring charge failed",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("order_id", sub.OrderID),
		zap.Error(chargeErr))

	if err := s.subscriptions.AddHistory(ctx, sub.ID, int(domain.SubscriptionStatusFailed), message); err != nil {
		return err
	}
	if err := s.subscriptions.AddLog(ctx, sub.ID, logCode, message, false); err != nil {
		return err
	}
	return s.orders.AddHistory(ctx, sub.OrderID, s.cfg.StatusFailed, message, s.cfg.NotifyRecurringFail)
}

func (s *Service) recordFailure(ctx context.Context, sub *domain.Subscription, status domain.PaymentStatus) error {
	comment := strings.TrimSpace(commentSuspended)

	if err := s.subscriptions.AddHistory(ctx, sub.ID, int(domain.SubscriptionStatusSuspended), comment); err != nil {
		return err
	}
	if err := s.subscriptions.AddLog(ctx, sub.ID, logCode, "Payment failed with status: "+string(status), false); err != nil {
		return err
	}
	return s.orders.AddHistory(ctx, sub.OrderID, s.cfg.StatusFailed, comment, s.cfg.NotifyRecurringFail)
}

func (s *Service) recordSuccess(ctx context.Context, sub *domain.Subscription, plan domain.SubscriptionPlan, status domain.PaymentStatus, free, inTrial bool) error {
	trial, regular := sub.Trial, sub.Regular
	var comment string
	if !free {
		comment = payment.StatusComment(domain.PaymentStatusCompleted)
	}

	now := s.now()
	var next time.Time
	trialExpired, subscriptionExpired := false, false

	trialRemaining := trial.Remaining - 1
	countsDown := !inTrial && regular.Duration > 0 && regular.Remaining > 0
	regularRemaining := regular.Remaining - 1

	switch {
	case inTrial && trialRemaining <= 0:
		trialExpired = true
		next = domain.NextChargeDate(now, regular)
	case inTrial:
		next = domain.NextChargeDate(now, trial)
	default:
		subscriptionExpired = countsDown && regularRemaining <= 0
		next = domain.NextChargeDate(now, regular)
	}

	// due date first: a failed counter write must not leave a billed cycle due
	if err := s.subscriptions.SetDateNext(ctx, sub.ID, next); err != nil {
		return err
	}

	if inTrial {
		if err := s.subscriptions.SetTrialRemaining(ctx, sub.ID, trialRemaining); err != nil {
			return err
		}
	} else if countsDown {
		if err := s.subscriptions.SetRemaining(ctx, sub.ID, regularRemaining); err != nil {
			return err
		}
	}

	if trialExpired {
		comment += commentTrialExpired
	}
	subStatus := domain.SubscriptionStatusActive
	if subscriptionExpired {
		comment += commentSubscriptionEnded
		subStatus = domain.SubscriptionStatusExpired
	}
	comment = strings.TrimSpace(comment)

	if err := s.subscriptions.AddHistory(ctx, sub.ID, int(subStatus), comment); err != nil {
		return err
	}

	price := s.formatPrice(plan.Price, sub.Currency)
	if err := s.subscriptions.AddLog(ctx, sub.ID, logCode, "Payment successful: "+price, true); err != nil {
		return err
	}

	s.logger.Info("Recurring charge succeeded",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("order_id", sub.OrderID),
		zap.String("status", string(status)),
		zap.Bool("free", free),
		zap.Time("date_next", next))

	return s.orders.AddHistory(ctx, sub.OrderID, s.orderStatus(status), comment, s.cfg.NotifyRecurringSuccess)
}

func (s *Service) orderStatus(status domain.PaymentStatus) int {
	switch status {
	case domain.PaymentStatusApproved:
		return s.cfg.StatusAuthorized
	case domain.PaymentStatusCompleted:
		return s.cfg.StatusCaptured
	}
	return s.cfg.StatusDefault
}

// formatPrice renders a store-currency price in currency, e.g. "10.00 EUR"
func (s *Service) formatPrice(price, currency string) string {
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return price
	}
	if currency == "" {
		currency = s.cfg.StoreCurrency
	}
	converted := s.currencies.Convert(amount, s.cfg.StoreCurrency, currency)
	minor, err := s.converter.ToMinorUnits(converted, currency)
	if err != nil {
		return price + " " + currency
	}
	return s.converter.Format(minor, currency) + " " + currency
}

// RenderSummary renders the HTML body of the summary e-mail
func RenderSummary(summary *Summary) string {
	var b strings.Builder
	b.WriteString(summaryIntro)
	b.WriteString("<br /><br />")

	section := func(heading string, lines []string) {
		b.WriteString("<strong>")
		b.WriteString(heading)
		b.WriteString("</strong><br />")
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("<br />")
		}
		b.WriteString("<br />")
	}

	token := summaryTokenUpdated
	if summary.TokenUpdateError != "" {
		token = html.EscapeString(summary.TokenUpdateError)
	} else if !summary.TokenRefreshed {
		token = "Skipped (sandbox)"
	}
	section(summaryTokenHeading, []string{token})

	if len(summary.TransactionErrors) > 0 {
		section(summaryErrorHeading, summary.TransactionErrors)
	}
	if len(summary.Failed) > 0 {
		section(summaryFailHeading, summary.Failed)
	}
	if len(summary.Succeeded) > 0 {
		section(summarySuccessHeading, summary.Succeeded)
	}

	return b.String()
}

// ParseSubscriptionID parses a positive subscription id
func ParseSubscriptionID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subscription id %q", raw)
	}
	return id, nil
}
