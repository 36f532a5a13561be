package square

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// Grant types accepted by the token endpoint
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// AppCredentials identify the OAuth application
type AppCredentials struct {
	ClientID     string
	ClientSecret string
}

// ExchangeCode trades an authorization code for an access/refresh token pair
func (c *Client) ExchangeCode(ctx context.Context, app AppCredentials, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)
	form.Set("grant_type", GrantAuthorizationCode)

	return c.obtainToken(ctx, form)
}

// RefreshAccessToken obtains a new access token from a refresh token
func (c *Client) RefreshAccessToken(ctx context.Context, app AppCredentials, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret)
	form.Set("grant_type", GrantRefreshToken)
	form.Set("refresh_token", refreshToken)

	return c.obtainToken(ctx, form)
}

// obtainToken posts a form-encoded body to the unversioned token endpoint on production
func (c *Client) obtainToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.execute(ctx, request{
		method:    "POST",
		endpoint:  endpointToken,
		form:      form,
		env:       envLive,
		noVersion: true,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return &resp, fmt.Errorf("token response has no access token")
	}
	return &resp, nil
}

// OAuth2Config describes the application for authorization-link construction.
// Token exchange goes through ExchangeCode so responses share the client's error handling.
func (c *Client) OAuth2Config(app AppCredentials, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       strings.Fields(Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizeURL(),
			TokenURL:  c.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
