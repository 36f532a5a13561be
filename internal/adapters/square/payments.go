package square

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// CardOnFilePrefix marks a stored-card source id
const CardOnFilePrefix = "ccof:"

// CustomerDetails describes how the buyer took part in a payment
type CustomerDetails struct {
	CustomerInitiated bool `json:"customer_initiated"`
	SellerKeyedIn     bool `json:"seller_keyed_in"`
}

// CreatePaymentRequest creates a payment. IdempotencyKey is minted on first send and kept on
// the request, so resending the same request value reuses it.
type CreatePaymentRequest struct {
	BillingAddress                 *Address         `json:"billing_address,omitempty"`
	CustomerDetails                *CustomerDetails `json:"customer_details,omitempty"`
	IdempotencyKey                 string           `json:"idempotency_key"`
	SourceID                       string           `json:"source_id"`
	LocationID                     string           `json:"location_id"`
	ReferenceID                    string           `json:"reference_id,omitempty"`
	BuyerEmailAddress              string           `json:"buyer_email_address,omitempty"`
	BuyerPhoneNumber               string           `json:"buyer_phone_number,omitempty"`
	StatementDescriptionIdentifier string           `json:"statement_description_identifier,omitempty"`
	CustomerID                     string           `json:"customer_id,omitempty"`
	VerificationToken              string           `json:"verification_token,omitempty"`
	Token                          string           `json:"-"` // explicit bearer token
	AmountMoney                    Money            `json:"amount_money"`
	Autocomplete                   bool             `json:"autocomplete"`
}

// RefundPaymentRequest refunds part or all of a payment
type RefundPaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	PaymentID      string `json:"payment_id"`
	Reason         string `json:"reason,omitempty"`
	Token          string `json:"-"`
	AmountMoney    Money  `json:"amount_money"`
}

type paymentResponse struct {
	Payment *Payment `json:"payment"`
}

type refundResponse struct {
	Refund *Refund `json:"refund"`
}

func ensureKey(key *string) {
	if *key == "" {
		*key = NewIdempotencyKey()
	}
}

// GetPayment fetches a payment; nil when the response carries none
func (c *Client) GetPayment(ctx context.Context, paymentID, token string) (*Payment, error) {
	var resp paymentResponse
	if err := c.execute(ctx, request{
		method:   "GET",
		endpoint: endpointPayments + "/" + url.PathEscape(paymentID),
		route:    endpointPayments + "/{id}",
		auth:     true,
		token:    token,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Payment, nil
}

// CreatePayment charges a source. Location and autocomplete come from the stored settings
// (autocomplete is off in delayed-capture mode). Card-on-file sources are charged as
// merchant-initiated for req.CustomerID.
func (c *Client) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	rec, err := c.creds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	ensureKey(&req.IdempotencyKey)

	body := *req
	body.LocationID = rec.ActiveLocationID()
	body.Autocomplete = !rec.DelayCapture
	body.CustomerDetails = &CustomerDetails{CustomerInitiated: true, SellerKeyedIn: false}
	body.CustomerID = ""
	if strings.HasPrefix(req.SourceID, CardOnFilePrefix) {
		body.CustomerID = req.CustomerID
		body.CustomerDetails.CustomerInitiated = false
	}

	var resp paymentResponse
	if err := c.execute(ctx, request{
		rec:      rec,
		method:   "POST",
		endpoint: endpointPayments,
		auth:     true,
		token:    req.Token,
		body:     body,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Payment == nil {
		return nil, &TransportError{Err: fmt.Errorf("create payment response has no payment")}
	}
	return resp.Payment, nil
}

// CompletePayment captures a delayed-capture payment
func (c *Client) CompletePayment(ctx context.Context, paymentID, token string) (*Payment, error) {
	return c.paymentAction(ctx, endpointCapturePayment, paymentID, token)
}

// CancelPayment voids a delayed-capture payment
func (c *Client) CancelPayment(ctx context.Context, paymentID, token string) (*Payment, error) {
	return c.paymentAction(ctx, endpointCancelPayment, paymentID, token)
}

func (c *Client) paymentAction(ctx context.Context, pattern, paymentID, token string) (*Payment, error) {
	var resp paymentResponse
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: fmt.Sprintf(pattern, url.PathEscape(paymentID)),
		route:    fmt.Sprintf(pattern, "{id}"),
		auth:     true,
		token:    token,
		body:     struct{}{},
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Payment, nil
}

// RefundPayment refunds a payment
func (c *Client) RefundPayment(ctx context.Context, req *RefundPaymentRequest) (*Refund, error) {
	ensureKey(&req.IdempotencyKey)

	var resp refundResponse
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: endpointRefunds,
		auth:     true,
		token:    req.Token,
		body:     req,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Refund == nil {
		return nil, &TransportError{Err: fmt.Errorf("refund response has no refund")}
	}
	return resp.Refund, nil
}

// AcceptedPaymentMethods toggles wallets on a hosted checkout page
type AcceptedPaymentMethods struct {
	ApplePay         bool `json:"apple_pay"`
	GooglePay        bool `json:"google_pay"`
	CashAppPay       bool `json:"cash_app_pay"`
	AfterpayClearpay bool `json:"afterpay_clearpay"`
}

// CreatePaymentLinkRequest builds a quick-pay checkout link
type CreatePaymentLinkRequest struct {
	BillingAddress         *Address
	IdempotencyKey         string
	Name                   string
	RedirectURL            string
	BuyerEmail             string
	BuyerPhoneNumber       string
	Token                  string
	Price                  Money
	AcceptedPaymentMethods AcceptedPaymentMethods
}

type quickPay struct {
	Name       string `json:"name"`
	LocationID string `json:"location_id"`
	PriceMoney Money  `json:"price_money"`
}

type checkoutOptions struct {
	RedirectURL            string                 `json:"redirect_url,omitempty"`
	AcceptedPaymentMethods AcceptedPaymentMethods `json:"accepted_payment_methods"`
	AskForShippingAddress  bool                   `json:"ask_for_shipping_address"`
	EnableCoupon           bool                   `json:"enable_coupon"`
}

type prePopulatedData struct {
	BuyerAddress     *Address `json:"buyer_address,omitempty"`
	BuyerEmail       string   `json:"buyer_email,omitempty"`
	BuyerPhoneNumber string   `json:"buyer_phone_number,omitempty"`
}

type createPaymentLinkBody struct {
	IdempotencyKey   string           `json:"idempotency_key"`
	QuickPay         quickPay         `json:"quick_pay"`
	CheckoutOptions  checkoutOptions  `json:"checkout_options"`
	PrePopulatedData prePopulatedData `json:"pre_populated_data"`
}

// CreatePaymentLink creates a hosted checkout link at the active location
func (c *Client) CreatePaymentLink(ctx context.Context, req *CreatePaymentLinkRequest) (*PaymentLink, error) {
	rec, err := c.creds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	ensureKey(&req.IdempotencyKey)

	body := createPaymentLinkBody{
		IdempotencyKey: req.IdempotencyKey,
		QuickPay: quickPay{
			Name:       req.Name,
			LocationID: rec.ActiveLocationID(),
			PriceMoney: req.Price,
		},
		CheckoutOptions: checkoutOptions{
			RedirectURL:            req.RedirectURL,
			AcceptedPaymentMethods: req.AcceptedPaymentMethods,
		},
		PrePopulatedData: prePopulatedData{
			BuyerAddress:     req.BillingAddress,
			BuyerEmail:       req.BuyerEmail,
			BuyerPhoneNumber: req.BuyerPhoneNumber,
		},
	}

	var resp struct {
		PaymentLink *PaymentLink `json:"payment_link"`
	}
	if err := c.execute(ctx, request{
		rec:      rec,
		method:   "POST",
		endpoint: endpointPaymentLinks,
		auth:     true,
		token:    req.Token,
		body:     body,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.PaymentLink, nil
}

// RetrieveOrder fetches an order; nil when the response carries none
func (c *Client) RetrieveOrder(ctx context.Context, orderID, token string) (*Order, error) {
	var resp struct {
		Order json.RawMessage `json:"order"`
	}
	if err := c.execute(ctx, request{
		method:   "GET",
		endpoint: endpointOrders + "/" + url.PathEscape(orderID),
		route:    endpointOrders + "/{id}",
		auth:     true,
		token:    token,
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Order) == 0 || string(resp.Order) == "null" {
		return nil, nil
	}

	order := &Order{Raw: resp.Order}
	if err := json.Unmarshal(resp.Order, order); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to unmarshal order: %w", err)}
	}
	return order, nil
}
