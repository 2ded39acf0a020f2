// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Deployment modes.
const (
	ModeOfficial   = "official"
	ModeSelfHosted = "self-hosted"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL    string
	TursoURL       string
	TursoAuthToken string

	// Deployment mode
	DeploymentMode string // "official" or "self-hosted"
	AdminEnabled   bool

	// Billing
	CreditMultiplier float64 // markup over provider USD cost (default 3.0)

	// Service provider keys (official mode)
	OpenAIAPIKey string
	GeminiAPIKey string

	// Encryption (at-rest protection of user-supplied provider keys)
	SecretKey     string
	EncryptionKey []byte // 32-byte key for AES-256-GCM

	// OAuth: GitHub
	GitHubClientID     string
	GitHubClientSecret string

	// OAuth: Google (web + device + native app audiences)
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleDeviceClientID  string
	GoogleAndroidClientID string
	GoogleIOSClientID     string

	// OAuth: Apple
	AppleTeamID     string
	AppleServiceID  string
	AppleKeyID      string
	ApplePrivateKey string // PEM-encoded ES256 private key

	// Stripe
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePublishableKey string
	StripePriceIDs       map[string]string // pack id -> price id

	// NOWPayments (crypto)
	NOWPaymentsAPIKey    string
	NOWPaymentsIPNSecret string

	// RevenueCat (App Store / Play Store)
	RevenueCatAPIKey string

	// Object storage (R2/S3-compatible)
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string

	// CORS
	CORSOrigins []string

	// Maintenance worker
	CleanupEnabled  bool
	CleanupInterval time.Duration
	ImageTTL        time.Duration // how long stored images remain fetchable
	LockTTL         time.Duration // user lock staleness cutoff

	// Scale-to-zero: shut down after this long without traffic (0 disables)
	IdleTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnvWithFallback("BASE_URL", "SERVICE_URL", "http://localhost:8080"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:pixie.db?_journal=WAL&_timeout=5000"),
		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		DeploymentMode: getEnv("DEPLOYMENT_MODE", ModeOfficial),
		AdminEnabled:   getEnvBool("ADMIN_ENABLED", true),

		CreditMultiplier: getEnvFloat("CREDIT_MULTIPLIER", 3.0),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		SecretKey: getEnv("SECRET_KEY", ""),

		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),

		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleDeviceClientID:  getEnvWithFallback("GOOGLE_DEVICE_CLIENT_ID", "GOOGLE_CLIENT_ID", ""),
		GoogleAndroidClientID: getEnv("GOOGLE_ANDROID_CLIENT_ID", ""),
		GoogleIOSClientID:     getEnv("GOOGLE_IOS_CLIENT_ID", ""),

		AppleTeamID:     getEnv("APPLE_TEAM_ID", ""),
		AppleServiceID:  getEnv("APPLE_SERVICE_ID", ""),
		AppleKeyID:      getEnv("APPLE_KEY_ID", ""),
		ApplePrivateKey: getEnv("APPLE_PRIVATE_KEY", ""),

		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),

		NOWPaymentsAPIKey:    getEnv("NOWPAYMENTS_API_KEY", ""),
		NOWPaymentsIPNSecret: getEnv("NOWPAYMENTS_IPN_SECRET", ""),

		RevenueCatAPIKey: getEnv("REVENUECAT_API_KEY", ""),

		StorageEndpoint:  getEnvWithFallback("AWS_ENDPOINT_URL_S3", "STORAGE_ENDPOINT", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),

		CleanupEnabled:  getEnvBool("CLEANUP_ENABLED", true),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		ImageTTL:        getEnvDuration("IMAGE_TTL", 7*24*time.Hour),
		LockTTL:         getEnvDuration("LOCK_TTL", 60*time.Second),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	cfg.StripePriceIDs = map[string]string{
		"starter":    getEnv("STRIPE_PRICE_ID_STARTER", ""),
		"basic":      getEnv("STRIPE_PRICE_ID_BASIC", ""),
		"popular":    getEnv("STRIPE_PRICE_ID_POPULAR", ""),
		"pro":        getEnv("STRIPE_PRICE_ID_BUSINESS", ""),
		"enterprise": getEnv("STRIPE_PRICE_ID_ENTERPRISE", ""),
	}

	switch cfg.DeploymentMode {
	case ModeOfficial, ModeSelfHosted:
	default:
		return nil, fmt.Errorf("DEPLOYMENT_MODE must be %q or %q, got %q", ModeOfficial, ModeSelfHosted, cfg.DeploymentMode)
	}

	if cfg.CreditMultiplier <= 0 {
		return nil, fmt.Errorf("CREDIT_MULTIPLIER must be positive, got %v", cfg.CreditMultiplier)
	}

	// Self-hosted installs never expose the admin surface and may run
	// without a configured secret.
	if cfg.IsSelfHosted() {
		cfg.AdminEnabled = false
		if cfg.SecretKey == "" {
			cfg.SecretKey = generateRandomSecret(64)
		}
	} else if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required in official mode")
	}

	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		cfg.EncryptionKey = deriveEncryptionKey(cfg.SecretKey)
	}

	return cfg, nil
}

// IsSelfHosted returns true if running in self-hosted mode.
func (c *Config) IsSelfHosted() bool {
	return c.DeploymentMode == ModeSelfHosted
}

// StorageEnabled returns true if an object storage bucket is configured.
func (c *Config) StorageEnabled() bool {
	return c.StorageBucket != "" && c.StorageEndpoint != ""
}

// StripeEnabled returns true if Stripe checkout is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback (should never happen)
		return "self-hosted-secret-change-me-" + base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
// HKDF (HMAC-based Key Derivation Function) is appropriate for deriving keys from
// high-entropy secrets. For low-entropy passwords, use Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("pixie-api-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
