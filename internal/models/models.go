// Package models defines the domain models for the application.
package models

import "time"

// User is an account provisioned through OAuth. APIKey is the bearer
// credential for all authenticated endpoints.
type User struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`    // github | google | apple
	ProviderID string    `json:"provider_id"` // upstream account id
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	APIKey     string    `json:"-"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Encrypted at rest; only consulted in self-hosted mode.
	OpenAIAPIKeyEncrypted string `json:"-"`
	GeminiAPIKeyEncrypted string `json:"-"`
}

// UserCredits is the single balance row per user. Balance never goes
// below zero; the lifetime counters only grow.
type UserCredits struct {
	UserID            string    `json:"user_id"`
	Balance           int       `json:"balance"`
	LifetimePurchased int       `json:"lifetime_purchased"`
	LifetimeSpent     int       `json:"lifetime_spent"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CreditTransactionType defines the type of a journal entry.
type CreditTransactionType string

const (
	TxTypePurchase        CreditTransactionType = "purchase"
	TxTypeSpend           CreditTransactionType = "spend"
	TxTypeRefund          CreditTransactionType = "refund"
	TxTypeBonus           CreditTransactionType = "bonus"
	TxTypeAdminAdjustment CreditTransactionType = "admin_adjustment"
)

// CreditTransaction is an append-only journal entry. Amount is signed;
// BalanceAfter snapshots the balance at write time.
type CreditTransaction struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Type         CreditTransactionType `json:"type"`
	Amount       int                   `json:"amount"`
	BalanceAfter int                   `json:"balance_after"`
	Description  string                `json:"description"`
	ReferenceID  string                `json:"reference_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// PurchaseStatus is the lifecycle state of a credit purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// CreditPurchase records one checkout across any payment provider.
// The pending -> completed transition happens at most once.
type CreditPurchase struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	PackID          string         `json:"pack_id"`
	Credits         int            `json:"credits"`
	AmountUSDCents  int            `json:"amount_usd_cents"`
	PaymentProvider string         `json:"payment_provider"` // stripe | nowpayments | revenuecat
	PaymentID       string         `json:"payment_id,omitempty"`
	Status          PurchaseStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// StoredImage is a generated image persisted to object storage.
// R2Key is {user_id}/{image_id}.png and doubles as the blob key.
type StoredImage struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	R2Key           string    `json:"r2_key"`
	Prompt          string    `json:"prompt"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Size            string    `json:"size"`
	Quality         string    `json:"quality"`
	PerImageCredits int       `json:"per_image_credits"`
	CostCents       int       `json:"cost_cents"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// RequestType distinguishes generation from edit requests in usage records.
type RequestType string

const (
	RequestTypeGeneration RequestType = "generation"
	RequestTypeEdit       RequestType = "edit"
)

// UsageRecord captures per-request telemetry for the usage endpoints.
// SimplifiedCost marks providers without token-level reporting.
type UsageRecord struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Provider         string      `json:"provider"`
	Model            string      `json:"model"`
	RequestType      RequestType `json:"request_type"`
	Prompt           string      `json:"prompt"`
	Size             string      `json:"size"`
	Quality          string      `json:"quality"`
	R2Keys           []string    `json:"r2_keys"`
	TextTokens       int         `json:"text_tokens"`
	ImageTokens      int         `json:"image_tokens"`
	OutputTokens     int         `json:"output_tokens"`
	TotalTokens      int         `json:"total_tokens"`
	ImageCount       int         `json:"image_count"`
	CreditsCharged   int         `json:"credits_charged"`
	ResponseTimeMs   int         `json:"response_time_ms"`
	SimplifiedCost   bool        `json:"simplified_cost"`
	InputImagesCount int         `json:"input_images_count"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// DeviceAuthFlow tracks one RFC 8628 device authorization attempt.
// ID is our opaque handle; DeviceCode is the upstream provider's code.
type DeviceAuthFlow struct {
	ID         string    `json:"id"`
	DeviceCode string    `json:"device_code"`
	UserCode   string    `json:"user_code"`
	ClientType string    `json:"client_type"`
	Provider   string    `json:"provider"` // github | google
	UserID     string    `json:"user_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeviceFlowStatus summarizes a flow for the polling status endpoint.
type DeviceFlowStatus string

const (
	DeviceFlowPending   DeviceFlowStatus = "pending"
	DeviceFlowCompleted DeviceFlowStatus = "completed"
	DeviceFlowExpired   DeviceFlowStatus = "expired"
)

// Status derives the polling state of the flow at the given time.
func (f *DeviceAuthFlow) Status(now time.Time) DeviceFlowStatus {
	if f.UserID != "" {
		return DeviceFlowCompleted
	}
	if now.After(f.ExpiresAt) {
		return DeviceFlowExpired
	}
	return DeviceFlowPending
}
