package square

import (
	"context"
	"fmt"
	"net/url"
)

type listLocationsResponse struct {
	Locations []Location `json:"locations"`
}

// VerifyToken reports whether token is still accepted. A revoked or expired token
// yields false; any other failure is returned.
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	err := c.execute(ctx, request{
		method:   "GET",
		endpoint: endpointLocations,
		auth:     true,
		token:    token,
		env:      envTokenMatch,
	}, nil)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.IsAuthorizationProblem() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListLocations returns the locations able to process cards and the id of the first one
// ("" when none qualifies).
func (c *Client) ListLocations(ctx context.Context, token string) ([]Location, string, error) {
	var resp listLocationsResponse
	if err := c.execute(ctx, request{
		method:   "GET",
		endpoint: endpointLocations,
		auth:     true,
		token:    token,
		env:      envTokenMatch,
	}, &resp); err != nil {
		return nil, "", err
	}

	eligible := make([]Location, 0, len(resp.Locations))
	for _, loc := range resp.Locations {
		if loc.CanProcessCards() {
			eligible = append(eligible, loc)
		}
	}

	firstID := ""
	if len(eligible) > 0 {
		firstID = eligible[0].ID
	}
	return eligible, firstID, nil
}

// RetrieveLocation fetches one location; nil when the response carries none
func (c *Client) RetrieveLocation(ctx context.Context, token, locationID string) (*Location, error) {
	var resp struct {
		Location *Location `json:"location"`
	}
	if err := c.execute(ctx, request{
		method:   "GET",
		endpoint: endpointLocations + "/" + url.PathEscape(locationID),
		route:    fmt.Sprintf("%s/{id}", endpointLocations),
		auth:     true,
		token:    token,
		env:      envTokenMatch,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Location, nil
}
