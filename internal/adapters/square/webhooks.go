package square

import (
	"context"
	"fmt"
	"net/url"
)

// WebhookSubscriptionName labels subscriptions created by this service
const WebhookSubscriptionName = "Square Payment Service"

// CreateWebhookSubscriptionRequest registers a notification URL for event types
type CreateWebhookSubscriptionRequest struct {
	IdempotencyKey  string
	NotificationURL string
	Token           string
	EventTypes      []string
}

type webhookSubscriptionBody struct {
	Name            string   `json:"name"`
	NotificationURL string   `json:"notification_url"`
	APIVersion      string   `json:"api_version"`
	EventTypes      []string `json:"event_types"`
}

// CreateWebhookSubscription registers a webhook subscription pinned to SquareVersion.
// The returned subscription carries the signature key used to verify notifications.
func (c *Client) CreateWebhookSubscription(ctx context.Context, req *CreateWebhookSubscriptionRequest) (*WebhookSubscription, error) {
	ensureKey(&req.IdempotencyKey)

	body := struct {
		IdempotencyKey string                  `json:"idempotency_key"`
		Subscription   webhookSubscriptionBody `json:"subscription"`
	}{
		IdempotencyKey: req.IdempotencyKey,
		Subscription: webhookSubscriptionBody{
			Name:            WebhookSubscriptionName,
			EventTypes:      req.EventTypes,
			NotificationURL: req.NotificationURL,
			APIVersion:      SquareVersion,
		},
	}

	var resp struct {
		Subscription *WebhookSubscription `json:"subscription"`
	}
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: endpointWebhooks,
		auth:     true,
		token:    req.Token,
		body:     body,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Subscription == nil {
		return nil, &TransportError{Err: fmt.Errorf("create subscription response has no subscription")}
	}
	return resp.Subscription, nil
}

// ListWebhookSubscriptions lists the application's webhook subscriptions
func (c *Client) ListWebhookSubscriptions(ctx context.Context, token string) ([]WebhookSubscription, error) {
	var resp struct {
		Subscriptions []WebhookSubscription `json:"subscriptions"`
	}
	if err := c.execute(ctx, request{
		method:   "GET",
		endpoint: endpointWebhooks,
		auth:     true,
		token:    token,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Subscriptions, nil
}

// DeleteWebhookSubscription removes a webhook subscription
func (c *Client) DeleteWebhookSubscription(ctx context.Context, subscriptionID, token string) error {
	return c.execute(ctx, request{
		method:   "DELETE",
		endpoint: endpointWebhooks + "/" + url.PathEscape(subscriptionID),
		route:    endpointWebhooks + "/{id}",
		auth:     true,
		token:    token,
	}, nil)
}

// RegisterApplePayDomain registers a storefront domain for Apple Pay and returns its status
func (c *Client) RegisterApplePayDomain(ctx context.Context, domainName, token string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: endpointApplePay,
		auth:     true,
		token:    token,
		body:     map[string]string{"domain_name": domainName},
	}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
