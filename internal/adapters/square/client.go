package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	"github.com/kevin07696/squareup-service/pkg/observability"
)

const (
	ProductionBaseURL = "https://connect.squareup.com"
	SandboxBaseURL    = "https://connect.squareupsandbox.com"

	// APIVersion is the path version segment
	APIVersion = "v2"
	// SquareVersion is sent in the Square-Version header and pinned on webhook subscriptions
	SquareVersion = "2026-01-22"

	// Scope is the permission set requested when connecting a merchant
	Scope = "MERCHANT_PROFILE_READ PAYMENTS_READ PAYMENTS_WRITE ORDERS_READ SETTLEMENTS_READ CUSTOMERS_READ CUSTOMERS_WRITE"
)

const (
	endpointAuthorize      = "oauth2/authorize"
	endpointToken          = "oauth2/token"
	endpointLocations      = "locations"
	endpointPayments       = "payments"
	endpointCapturePayment = "payments/%s/complete"
	endpointCancelPayment  = "payments/%s/cancel"
	endpointRefunds        = "refunds"
	endpointPaymentLinks   = "online-checkout/payment-links"
	endpointOrders         = "orders"
	endpointCustomers      = "customers"
	endpointCustomerSearch = "customers/search"
	endpointCards          = "cards"
	endpointDisableCard    = "cards/%s/disable"
	endpointWebhooks       = "webhooks/subscriptions"
	endpointApplePay       = "apple-pay/domains"

	redactedTokenResponse = "[REDACTED - token endpoint]"
)

// CredentialSource supplies the Credential Record snapshot used to authenticate calls
type CredentialSource interface {
	Load(ctx context.Context) (*credentials.Record, error)
}

// Config holds client configuration
type Config struct {
	Messages       Messages
	BaseURL        string
	SandboxBaseURL string
	// Debug logs request lines and response bodies; the stored debug setting also enables it
	Debug bool
}

// DefaultConfig returns the production configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        ProductionBaseURL,
		SandboxBaseURL: SandboxBaseURL,
		Messages:       DefaultMessages(),
	}
}

// Client talks to the Square REST API
type Client struct {
	creds      CredentialSource
	httpClient ports.HTTPClient
	logger     ports.Logger
	cfg        Config
}

// NewClient creates a new Square API client with dependency injection
func NewClient(cfg Config, creds CredentialSource, httpClient ports.HTTPClient, logger ports.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionBaseURL
	}
	if cfg.SandboxBaseURL == "" {
		cfg.SandboxBaseURL = SandboxBaseURL
	}
	if cfg.Messages.Overrides == nil {
		cfg.Messages = DefaultMessages()
	}
	return &Client{
		cfg:        cfg,
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
	}
}

// MaxIdempotencyKeyLength is the longest idempotency key the API accepts
const MaxIdempotencyKeyLength = 45

// NewIdempotencyKey mints a key for a new logical operation
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// environment selects the base URL of a request
type environment int

const (
	// envSelected follows the stored sandbox flag
	envSelected environment = iota
	// envLive always uses production (OAuth endpoints)
	envLive
	// envTokenMatch uses sandbox only when the explicit token is the stored sandbox token
	envTokenMatch
)

type request struct {
	rec       *credentials.Record
	body      interface{}
	form      url.Values
	query     url.Values
	method    string
	endpoint  string
	route     string // metric label; defaults to endpoint
	token     string // explicit bearer token; empty resolves from the credential store
	env       environment
	auth      bool
	noVersion bool
}

func (c *Client) execute(ctx context.Context, req request, out interface{}) (err error) {
	start := time.Now()
	route := req.route
	if route == "" {
		route = req.endpoint
	}
	defer func() {
		outcome := "ok"
		if IsTransportError(err) {
			outcome = "transport_error"
		} else if err != nil {
			outcome = "api_error"
		}
		observability.RecordAPIRequest(req.method, route, outcome, time.Since(start))
	}()

	rec := req.rec
	if rec == nil {
		rec, err = c.creds.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
	}

	sandbox := false
	switch req.env {
	case envSelected:
		sandbox = rec.Sandbox
	case envTokenMatch:
		sandbox = req.token != "" && req.token == rec.SandboxToken
	}

	token := req.token
	if req.auth && token == "" {
		token = rec.ActiveAccessToken()
	}

	debug := c.cfg.Debug || rec.Debug

	httpReq, err := c.buildRequest(ctx, req, sandbox, token)
	if err != nil {
		return err
	}

	if debug {
		c.logger.Debug(fmt.Sprintf("SQUARE API %s %s", req.method, httpReq.URL.String()))
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		tErr := &TransportError{Err: err}
		c.logger.Error("Square API Error: "+tErr.Error(), ports.String("endpoint", route))
		return tErr
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		tErr := &TransportError{StatusCode: httpResp.StatusCode, Err: err}
		c.logger.Error("Square API Error: "+tErr.Error(), ports.String("endpoint", route))
		return tErr
	}

	if debug {
		logged := string(body)
		if req.noVersion {
			logged = redactedTokenResponse
		}
		c.logger.Debug("SQUARE API RESPONSE: " + logged)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		if httpResp.StatusCode < 300 && out == nil {
			return nil
		}
		tErr := &TransportError{StatusCode: httpResp.StatusCode}
		c.logger.Error("Square API Error: "+tErr.Error(), ports.String("endpoint", route))
		return tErr
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		tErr := &TransportError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("invalid response body: %w", err)}
		c.logger.Error("Square API Error: "+tErr.Error(), ports.String("endpoint", route))
		return tErr
	}

	if !envelope.Errors.Empty() {
		apiErr := NewAPIError(httpResp.StatusCode, envelope.Errors, c.cfg.Messages)
		c.logger.Error("Square API Error: "+apiErr.Error(),
			ports.String("endpoint", route),
			ports.Int("status_code", httpResp.StatusCode),
		)
		return apiErr
	}

	if httpResp.StatusCode >= 400 {
		tErr := &TransportError{StatusCode: httpResp.StatusCode}
		c.logger.Error("Square API Error: "+tErr.Error(), ports.String("endpoint", route))
		return tErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &TransportError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
		}
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, req request, sandbox bool, token string) (*http.Request, error) {
	base := c.cfg.BaseURL
	if sandbox {
		base = c.cfg.SandboxBaseURL
	}

	u := strings.TrimRight(base, "/")
	if !req.noVersion {
		u += "/" + APIVersion
	}
	u += "/" + req.endpoint
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var (
		payload     io.Reader
		contentType = "application/json"
	)
	switch {
	case req.form != nil:
		payload = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Square-Version", SquareVersion)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", contentType)
	if req.auth {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return httpReq, nil
}

// AuthorizeURL is the provider authorization page merchants are sent to
func (c *Client) AuthorizeURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + endpointAuthorize
}

// TokenURL is the OAuth token endpoint (no version segment)
func (c *Client) TokenURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + endpointToken
}
