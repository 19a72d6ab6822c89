// Package adplatform is the thin collaborator for the external ad platform.
// Handlers fetch a token from the vault immediately before each outbound
// call; the token lives only for the duration of that call.
package adplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Campaign is the subset of ad-platform campaign fields the dashboard
// surfaces.
type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Client calls the ad platform on behalf of a connected account.
type Client interface {
	ListCampaigns(ctx context.Context, accessToken, externalAccountID string) ([]Campaign, error)
}

// HTTPClient is the production Client. It never stores tokens; the caller
// supplies a freshly retrieved one per call.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the given platform API base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) ListCampaigns(ctx context.Context, accessToken, externalAccountID string) ([]Campaign, error) {
	url := fmt.Sprintf("%s/v2/accounts/%s/campaigns", c.baseURL, externalAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ad platform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ad platform returned %d", resp.StatusCode)
	}

	var body struct {
		Campaigns []Campaign `json:"campaigns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding campaign list: %w", err)
	}
	return body.Campaigns, nil
}
