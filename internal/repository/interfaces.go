// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/guitaripod/pixie/internal/models"
)

// UserRepository defines methods for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
	GetByProviderID(ctx context.Context, provider, providerID string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, email, name string) error
	// UpdateProviderKeys stores encrypted per-user provider API keys.
	// A nil pointer leaves the column untouched; an empty string clears it.
	UpdateProviderKeys(ctx context.Context, id string, openaiEncrypted, geminiEncrypted *string) error
	Count(ctx context.Context) (int, error)
}

// CreditRepository defines methods for the balance row and the journal.
// Deduct and Add are atomic: the balance update and the journal entry
// commit together or not at all.
type CreditRepository interface {
	Initialize(ctx context.Context, userID string) error
	GetBalance(ctx context.Context, userID string) (*models.UserCredits, error)
	// Add credits the balance and appends a journal entry with a positive amount.
	Add(ctx context.Context, userID string, amount int, txType models.CreditTransactionType, description, referenceID string) (*models.CreditTransaction, error)
	// Deduct debits the balance and appends a journal entry with a negative
	// amount. Returns ErrInsufficientCredits when the balance cannot cover it.
	Deduct(ctx context.Context, userID string, amount int, txType models.CreditTransactionType, description, referenceID string) (*models.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error)
	GetTotals(ctx context.Context) (*CreditTotals, error)
}

// CreditTotals aggregates every balance row, for the admin stats endpoint.
type CreditTotals struct {
	TotalBalance   int `json:"total_balance"`
	TotalPurchased int `json:"total_purchased"`
	TotalSpent     int `json:"total_spent"`
}

// PurchaseRepository defines methods for credit purchase data access.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *models.CreditPurchase) error
	GetByID(ctx context.Context, id string) (*models.CreditPurchase, error)
	GetByProviderPaymentID(ctx context.Context, provider, paymentID string) (*models.CreditPurchase, error)
	SetPaymentID(ctx context.Context, id, paymentID string) error
	// Complete transitions pending -> completed. Returns false when the
	// purchase was already completed or failed, making webhook retries safe.
	Complete(ctx context.Context, id string, completedAt time.Time) (bool, error)
	Fail(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	TotalRevenueCents(ctx context.Context) (int, error)
}

// ImageRepository defines methods for stored image metadata.
type ImageRepository interface {
	Create(ctx context.Context, image *models.StoredImage) error
	GetByID(ctx context.Context, id string) (*models.StoredImage, error)
	List(ctx context.Context, limit, offset int) ([]*models.StoredImage, int, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.StoredImage, int, error)
	// ListExpired returns images past their expiry so the caller can also
	// remove the blobs before deleting the rows.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.StoredImage, error)
	Delete(ctx context.Context, id string) error
	TotalCostCents(ctx context.Context) (int, error)
}

// UsageRepository defines methods for usage telemetry.
type UsageRepository interface {
	Create(ctx context.Context, record *models.UsageRecord) error
	GetUserSummary(ctx context.Context, userID string, start, end time.Time) (*UsageSummary, error)
	GetUserDaily(ctx context.Context, userID string, start, end time.Time) ([]DailyUsage, error)
	GetSystemStats(ctx context.Context, start, end time.Time) (*SystemStats, error)
	GetTopUsers(ctx context.Context, start, end time.Time, limit int) ([]UserTokenUsage, error)
	TotalImages(ctx context.Context) (int, error)
}

// UsageSummary aggregates a user's requests over a window.
type UsageSummary struct {
	TotalRequests int `json:"total_requests"`
	TotalTokens   int `json:"total_tokens"`
	TotalImages   int `json:"total_images"`
}

// DailyUsage is one day's aggregated usage.
type DailyUsage struct {
	Date     string `json:"date"`
	Requests int    `json:"requests"`
	Tokens   int    `json:"tokens"`
	Images   int    `json:"images"`
}

// SystemStats aggregates usage across all users.
type SystemStats struct {
	UniqueUsers       int     `json:"unique_users"`
	TotalRequests     int     `json:"total_requests"`
	TotalTokens       int     `json:"total_tokens"`
	TotalImages       int     `json:"total_images"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	ErrorRate         float64 `json:"error_rate"`
}

// UserTokenUsage ranks a user by token consumption.
type UserTokenUsage struct {
	UserID   string `json:"user_id"`
	Requests int    `json:"requests"`
	Tokens   int    `json:"tokens"`
	Images   int    `json:"images"`
}

// DeviceAuthRepository defines methods for device authorization flows.
type DeviceAuthRepository interface {
	Create(ctx context.Context, flow *models.DeviceAuthFlow) error
	GetByID(ctx context.Context, id string) (*models.DeviceAuthFlow, error)
	SetUser(ctx context.Context, id, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// LockRepository serializes image generation per user.
type LockRepository interface {
	// Acquire inserts the user's lock row. A held lock older than the TTL
	// is reclaimed and the insert retried once; otherwise ErrLockHeld.
	Acquire(ctx context.Context, userID string, ttl time.Duration) error
	Release(ctx context.Context, userID string) error
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	User       UserRepository
	Credit     CreditRepository
	Purchase   PurchaseRepository
	Image      ImageRepository
	Usage      UsageRepository
	DeviceAuth DeviceAuthRepository
	Lock       LockRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:       NewSQLiteUserRepository(db),
		Credit:     NewSQLiteCreditRepository(db),
		Purchase:   NewSQLitePurchaseRepository(db),
		Image:      NewSQLiteImageRepository(db),
		Usage:      NewSQLiteUsageRepository(db),
		DeviceAuth: NewSQLiteDeviceAuthRepository(db),
		Lock:       NewSQLiteLockRepository(db),
	}
}
