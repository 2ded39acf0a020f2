package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RevenueCatClient validates App Store and Play Store purchases through
// the RevenueCat subscriber API.
type RevenueCatClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewRevenueCatClient creates a new RevenueCat client.
func NewRevenueCatClient(apiKey string) *RevenueCatClient {
	return &RevenueCatClient{
		apiKey:     apiKey,
		baseURL:    "https://api.revenuecat.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *RevenueCatClient) Enabled() bool {
	return c.apiKey != ""
}

type revenueCatSubscriber struct {
	Subscriber struct {
		NonSubscriptions map[string][]struct {
			ID           string `json:"id"`
			Store        string `json:"store"`
			PurchaseDate string `json:"purchase_date"`
		} `json:"non_subscriptions"`
		Entitlements map[string]struct {
			ProductIdentifier string  `json:"product_identifier"`
			ExpiresDate       *string `json:"expires_date"`
		} `json:"entitlements"`
	} `json:"subscriber"`
}

// HasPurchase checks the subscriber keyed by the purchase token for the
// product. A non-subscription entry counts only when its store matches
// the platform; an entitlement counts only without an expires_date,
// since one-time purchases never expire.
func (c *RevenueCatClient) HasPurchase(ctx context.Context, purchaseToken, productID, platform string) (bool, error) {
	endpoint := c.baseURL + "/v1/subscribers/" + url.PathEscape(purchaseToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("revenuecat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("revenuecat returned %d", resp.StatusCode)
	}

	var sub revenueCatSubscriber
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return false, fmt.Errorf("failed to parse revenuecat response: %w", err)
	}

	for _, purchase := range sub.Subscriber.NonSubscriptions[productID] {
		if strings.EqualFold(purchase.Store, platform) {
			return true, nil
		}
	}
	for _, ent := range sub.Subscriber.Entitlements {
		if ent.ProductIdentifier == productID && ent.ExpiresDate == nil {
			return true, nil
		}
	}
	return false, nil
}
