package square

import (
	"context"
	"fmt"
	"net/url"
)

type exactFilter struct {
	Exact string `json:"exact"`
}

type customerFilter struct {
	EmailAddress *exactFilter `json:"email_address,omitempty"`
	PhoneNumber  *exactFilter `json:"phone_number,omitempty"`
}

type searchCustomersBody struct {
	Query struct {
		Filter customerFilter `json:"filter"`
	} `json:"query"`
}

// SearchCustomers finds customers matching email and phone exactly
func (c *Client) SearchCustomers(ctx context.Context, email, phone, token string) ([]Customer, error) {
	var body searchCustomersBody
	if email != "" {
		body.Query.Filter.EmailAddress = &exactFilter{Exact: email}
	}
	if phone != "" {
		body.Query.Filter.PhoneNumber = &exactFilter{Exact: phone}
	}

	var resp struct {
		Customers []Customer `json:"customers"`
	}
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: endpointCustomerSearch,
		auth:     true,
		token:    token,
		body:     body,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

// CreateCustomerRequest creates a customer profile from a billing address
type CreateCustomerRequest struct {
	Address        *Address `json:"address,omitempty"`
	IdempotencyKey string   `json:"idempotency_key"`
	GivenName      string   `json:"given_name,omitempty"`
	FamilyName     string   `json:"family_name,omitempty"`
	EmailAddress   string   `json:"email_address,omitempty"`
	PhoneNumber    string   `json:"phone_number,omitempty"`
	Token          string   `json:"-"`
}

// CreateCustomer creates a customer; names default to the address names
func (c *Client) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*Customer, error) {
	ensureKey(&req.IdempotencyKey)
	if req.Address != nil {
		if req.GivenName == "" {
			req.GivenName = req.Address.FirstName
		}
		if req.FamilyName == "" {
			req.FamilyName = req.Address.LastName
		}
	}

	var resp struct {
		Customer *Customer `json:"customer"`
	}
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: endpointCustomers,
		auth:     true,
		token:    req.Token,
		body:     req,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Customer == nil {
		return nil, &TransportError{Err: fmt.Errorf("create customer response has no customer")}
	}
	return resp.Customer, nil
}

// ListCards returns every enabled card of a customer, following cursors until exhausted
func (c *Client) ListCards(ctx context.Context, customerID, token string) ([]Card, error) {
	var (
		all    []Card
		cursor string
	)

	for {
		query := url.Values{}
		query.Set("customer_id", customerID)
		query.Set("include_disabled", "false")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page struct {
			Cards  []Card `json:"cards"`
			Cursor string `json:"cursor"`
		}
		if err := c.execute(ctx, request{
			method:   "GET",
			endpoint: endpointCards,
			auth:     true,
			token:    token,
			query:    query,
		}, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Cards...)
		if page.Cursor == "" || page.Cursor == cursor {
			break
		}
		cursor = page.Cursor
	}

	if all == nil {
		all = []Card{}
	}
	return all, nil
}

// CreateCardRequest stores a card on file for a customer
type CreateCardRequest struct {
	BillingAddress    *Address
	IdempotencyKey    string
	SourceID          string
	VerificationToken string
	CustomerID        string
	Token             string
}

type createCardBody struct {
	Card              Card   `json:"card"`
	IdempotencyKey    string `json:"idempotency_key"`
	SourceID          string `json:"source_id"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// CreateCard stores a card on file
func (c *Client) CreateCard(ctx context.Context, req *CreateCardRequest) (*Card, error) {
	ensureKey(&req.IdempotencyKey)

	body := createCardBody{
		IdempotencyKey:    req.IdempotencyKey,
		SourceID:          req.SourceID,
		VerificationToken: req.VerificationToken,
		Card: Card{
			CustomerID:     req.CustomerID,
			BillingAddress: req.BillingAddress,
		},
	}

	var resp struct {
		Card *Card `json:"card"`
	}
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: endpointCards,
		auth:     true,
		token:    req.Token,
		body:     body,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Card == nil {
		return nil, &TransportError{Err: fmt.Errorf("create card response has no card")}
	}
	return resp.Card, nil
}

// DisableCard disables a card on file
func (c *Client) DisableCard(ctx context.Context, cardID, token string) (*Card, error) {
	var resp struct {
		Card *Card `json:"card"`
	}
	if err := c.execute(ctx, request{
		method:   "POST",
		endpoint: fmt.Sprintf(endpointDisableCard, url.PathEscape(cardID)),
		route:    fmt.Sprintf(endpointDisableCard, "{id}"),
		auth:     true,
		token:    token,
		body:     struct{}{},
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Card, nil
}
