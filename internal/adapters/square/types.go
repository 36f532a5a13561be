package square

import "encoding/json"

// Money is an amount in minor units
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// Address is a postal address in the network's format
type Address struct {
	AddressLine1                 string `json:"address_line_1,omitempty"`
	AddressLine2                 string `json:"address_line_2,omitempty"`
	AddressLine3                 string `json:"address_line_3,omitempty"`
	Locality                     string `json:"locality,omitempty"`
	Sublocality                  string `json:"sublocality,omitempty"`
	Sublocality2                 string `json:"sublocality_2,omitempty"`
	Sublocality3                 string `json:"sublocality_3,omitempty"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1,omitempty"`
	AdministrativeDistrictLevel2 string `json:"administrative_district_level_2,omitempty"`
	AdministrativeDistrictLevel3 string `json:"administrative_district_level_3,omitempty"`
	PostalCode                   string `json:"postal_code,omitempty"`
	Country                      string `json:"country,omitempty"`
	FirstName                    string `json:"first_name,omitempty"`
	LastName                     string `json:"last_name,omitempty"`
	Organization                 string `json:"organization,omitempty"`
}

// Card is a stored or charged card
type Card struct {
	BillingAddress *Address `json:"billing_address,omitempty"`
	ID             string   `json:"id,omitempty"`
	CardBrand      string   `json:"card_brand,omitempty"`
	Last4          string   `json:"last_4,omitempty"`
	CardholderName string   `json:"cardholder_name,omitempty"`
	CustomerID     string   `json:"customer_id,omitempty"`
	Fingerprint    string   `json:"fingerprint,omitempty"`
	ExpMonth       int      `json:"exp_month,omitempty"`
	ExpYear        int      `json:"exp_year,omitempty"`
	Enabled        bool     `json:"enabled,omitempty"`
}

// CardDetails is the card section of a payment
type CardDetails struct {
	Card   Card   `json:"card"`
	Status string `json:"status,omitempty"`
}

// ApplicationDetails identifies the product that created a payment
type ApplicationDetails struct {
	SquareProduct string `json:"square_product,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
}

// Payment is the network's payment object
type Payment struct {
	AmountMoney        Money               `json:"amount_money"`
	RefundedMoney      *Money              `json:"refunded_money,omitempty"`
	CardDetails        *CardDetails        `json:"card_details,omitempty"`
	BillingAddress     *Address            `json:"billing_address,omitempty"`
	ApplicationDetails *ApplicationDetails `json:"application_details,omitempty"`
	ID                 string              `json:"id"`
	CreatedAt          string              `json:"created_at"`
	UpdatedAt          string              `json:"updated_at"`
	Status             string              `json:"status"`
	SourceType         string              `json:"source_type"`
	LocationID         string              `json:"location_id"`
	OrderID            string              `json:"order_id,omitempty"`
	CustomerID         string              `json:"customer_id,omitempty"`
	ReferenceID        string              `json:"reference_id,omitempty"`
	BuyerEmailAddress  string              `json:"buyer_email_address,omitempty"`
	ReceiptURL         string              `json:"receipt_url,omitempty"`
	RefundIDs          []string            `json:"refund_ids,omitempty"`
}

// Refund is the network's refund object
type Refund struct {
	AmountMoney Money  `json:"amount_money"`
	ID          string `json:"id"`
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Location is a merchant location
type Location struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	Country      string   `json:"country,omitempty"`
	MerchantID   string   `json:"merchant_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CanProcessCards reports whether the location has card processing capability
func (l Location) CanProcessCards() bool {
	for _, c := range l.Capabilities {
		if c == "CREDIT_CARD_PROCESSING" {
			return true
		}
	}
	return false
}

// Customer is a customer profile
type Customer struct {
	Address      *Address `json:"address,omitempty"`
	ID           string   `json:"id"`
	GivenName    string   `json:"given_name,omitempty"`
	FamilyName   string   `json:"family_name,omitempty"`
	EmailAddress string   `json:"email_address,omitempty"`
	PhoneNumber  string   `json:"phone_number,omitempty"`
}

// PaymentLink is a hosted checkout link
type PaymentLink struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	LongURL string `json:"long_url,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Version int    `json:"version,omitempty"`
}

// Order is kept raw; callers only inspect it for display
type Order struct {
	Raw json.RawMessage `json:"-"`
	ID  string          `json:"id"`
}

// WebhookSubscription is a registered webhook endpoint
type WebhookSubscription struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NotificationURL string   `json:"notification_url"`
	APIVersion      string   `json:"api_version,omitempty"`
	SignatureKey    string   `json:"signature_key,omitempty"`
	EventTypes      []string `json:"event_types"`
	Enabled         bool     `json:"enabled"`
}

// TokenResponse is the OAuth token endpoint result
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    string `json:"expires_at"`
	MerchantID   string `json:"merchant_id"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// errorEnvelope is embedded by every response to detect API errors
type errorEnvelope struct {
	Errors ErrorList `json:"errors"`
}
