package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// NOWPaymentsClient talks to the NOWPayments invoice API for crypto
// checkout.
type NOWPaymentsClient struct {
	apiKey     string
	ipnSecret  string
	baseURL    string
	httpClient *http.Client
}

// NewNOWPaymentsClient creates a new NOWPayments client.
func NewNOWPaymentsClient(apiKey, ipnSecret string) *NOWPaymentsClient {
	return &NOWPaymentsClient{
		apiKey:     apiKey,
		ipnSecret:  ipnSecret,
		baseURL:    "https://api.nowpayments.io/v1",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *NOWPaymentsClient) Enabled() bool {
	return c.apiKey != ""
}

// Invoice is a hosted crypto checkout page.
type Invoice struct {
	ID         json.Number `json:"id"`
	InvoiceURL string      `json:"invoice_url"`
}

// CreateInvoice opens a hosted payment page for the given USD amount.
// orderID ties the invoice back to our purchase row via the IPN. An
// empty payCurrency lets the payer choose the coin on the hosted page.
func (c *NOWPaymentsClient) CreateInvoice(ctx context.Context, amountUSD float64, payCurrency, orderID, description, callbackURL string) (*Invoice, error) {
	payload := map[string]any{
		"price_amount":      amountUSD,
		"price_currency":    "usd",
		"order_id":          orderID,
		"order_description": description,
		"ipn_callback_url":  callbackURL,
	}
	if payCurrency != "" {
		payload["pay_currency"] = payCurrency
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoice", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nowpayments request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("nowpayments returned %d: %s", resp.StatusCode, raw)
	}

	var invoice Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("failed to parse nowpayments invoice: %w", err)
	}
	return &invoice, nil
}

// PaymentStatus returns the upstream status string for a payment id.
func (c *NOWPaymentsClient) PaymentStatus(ctx context.Context, paymentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payment/"+paymentID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nowpayments request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nowpayments returned %d", resp.StatusCode)
	}

	var out struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.PaymentStatus, nil
}

// VerifyIPN checks the x-nowpayments-sig header. The signature is
// HMAC-SHA512 over the IPN body re-serialized with sorted keys.
func (c *NOWPaymentsClient) VerifyIPN(body []byte, signature string) bool {
	if c.ipnSecret == "" || signature == "" {
		return false
	}

	sorted, err := canonicalIPN(body)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(c.ipnSecret))
	mac.Write(sorted)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalIPN re-serializes an IPN body with sorted keys. Values stay
// as raw JSON so numeric payment ids above 2^53 keep their exact
// digits instead of going through float64.
func canonicalIPN(body []byte) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := json.Compact(&buf, payload[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
