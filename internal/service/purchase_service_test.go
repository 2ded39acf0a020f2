package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

func newTestPurchaseService(t *testing.T, cfg *config.Config) (*PurchaseService, *repository.Repositories) {
	t.Helper()
	repos := setupTestRepos(t)
	credit := NewCreditService(repos, cfg, testLogger())
	return NewPurchaseService(cfg, repos, credit, testLogger()), repos
}

func TestCompletePurchaseCreditsOnce(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestPurchaseService(t, testConfig())
	user := seedUser(t, repos, "u1", 0)

	pack, _ := config.FindCreditPack("basic")
	purchase, err := svc.newPurchase(ctx, user.ID, pack, "stripe")
	if err != nil {
		t.Fatalf("newPurchase failed: %v", err)
	}

	// Webhook retries call complete repeatedly; credits land once.
	for i := 0; i < 3; i++ {
		if err := svc.completePurchase(ctx, purchase.ID); err != nil {
			t.Fatalf("completePurchase attempt %d failed: %v", i, err)
		}
	}

	balance, err := repos.Credit.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != pack.TotalCredits() {
		t.Errorf("expected %d credits, got %d", pack.TotalCredits(), balance.Balance)
	}

	got, err := repos.Purchase.GetByID(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.PurchaseStatusCompleted || got.CompletedAt == nil {
		t.Errorf("purchase not completed: %+v", got)
	}
}

func TestCompletePurchaseSurfacesCreditFailure(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestPurchaseService(t, testConfig())

	// A user without a credit account makes the grant fail after the
	// purchase row has already flipped to completed.
	user := &models.User{
		ID:         "u-no-account",
		Provider:   "github",
		ProviderID: "gh-u-no-account",
		Email:      "u-no-account@example.com",
		Name:       "Test User",
		APIKey:     "pixie_u-no-account",
	}
	if err := repos.User.Create(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	pack, _ := config.FindCreditPack("basic")
	purchase, err := svc.newPurchase(ctx, user.ID, pack, "stripe")
	if err != nil {
		t.Fatalf("newPurchase failed: %v", err)
	}

	if err := svc.completePurchase(ctx, purchase.ID); err == nil {
		t.Fatal("expected error when credit grant fails")
	}

	got, err := repos.Purchase.GetByID(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.PurchaseStatusCompleted {
		t.Errorf("purchase status = %s, want completed", got.Status)
	}

	// The retry is a no-op; recovery is manual, keyed off the error log.
	if err := svc.completePurchase(ctx, purchase.ID); err != nil {
		t.Fatalf("retry after failed grant errored: %v", err)
	}
}

func TestCryptoPaymentRejectsStarterPack(t *testing.T) {
	cfg := testConfig()
	cfg.NOWPaymentsAPIKey = "np-key"
	svc, repos := newTestPurchaseService(t, cfg)
	user := seedUser(t, repos, "u1", 0)

	_, err := svc.CreateCryptoPayment(context.Background(), user.ID, "starter", "")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCryptoWebhookSettlesPurchase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.NOWPaymentsAPIKey = "np-key"
	cfg.NOWPaymentsIPNSecret = "ipn-secret"
	svc, repos := newTestPurchaseService(t, cfg)
	user := seedUser(t, repos, "u1", 0)

	pack, _ := config.FindCreditPack("popular")
	purchase, err := svc.newPurchase(ctx, user.ID, pack, "nowpayments")
	if err != nil {
		t.Fatalf("newPurchase failed: %v", err)
	}

	// Keys already sorted, so the body is its own canonical form.
	body := fmt.Sprintf(`{"order_id":%q,"payment_id":12345,"payment_status":"finished"}`, purchase.ID)
	if err := svc.HandleCryptoWebhook(ctx, []byte(body), signIPN(t, "ipn-secret", body)); err != nil {
		t.Fatalf("HandleCryptoWebhook failed: %v", err)
	}

	balance, err := repos.Credit.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != pack.TotalCredits() {
		t.Errorf("expected %d credits, got %d", pack.TotalCredits(), balance.Balance)
	}

	// A replayed IPN changes nothing.
	if err := svc.HandleCryptoWebhook(ctx, []byte(body), signIPN(t, "ipn-secret", body)); err != nil {
		t.Fatalf("replayed webhook failed: %v", err)
	}
	balance, _ = repos.Credit.GetBalance(ctx, user.ID)
	if balance.Balance != pack.TotalCredits() {
		t.Errorf("replay double-credited: %d", balance.Balance)
	}
}

func TestCryptoWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	cfg.NOWPaymentsAPIKey = "np-key"
	cfg.NOWPaymentsIPNSecret = "ipn-secret"
	svc, _ := newTestPurchaseService(t, cfg)

	body := []byte(`{"order_id":"p1","payment_status":"finished"}`)
	err := svc.HandleCryptoWebhook(context.Background(), body, "deadbeef")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

// signIPN reproduces the NOWPayments IPN signature: HMAC-SHA512 over
// the canonical sorted-key body.
func signIPN(t *testing.T, secret string, canonical string) string {
	t.Helper()
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyIPNPreservesLargePaymentID(t *testing.T) {
	client := NewNOWPaymentsClient("np-key", "ipn-secret")

	// 9007199254740993 loses its last digit in float64.
	body := []byte(`{"payment_status":"finished","payment_id":9007199254740993,"order_id":"p1"}`)
	canonical := `{"order_id":"p1","payment_id":9007199254740993,"payment_status":"finished"}`

	if !client.VerifyIPN(body, signIPN(t, "ipn-secret", canonical)) {
		t.Error("valid signature over large payment_id rejected")
	}

	rounded := `{"order_id":"p1","payment_id":9007199254740992,"payment_status":"finished"}`
	if client.VerifyIPN(body, signIPN(t, "ipn-secret", rounded)) {
		t.Error("signature over rounded payment_id accepted")
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	cfg.StripeSecretKey = "sk_test_123"
	cfg.StripeWebhookSecret = "whsec_test"
	svc, _ := newTestPurchaseService(t, cfg)

	body := []byte(`{"type":"checkout.session.completed"}`)
	err := svc.HandleStripeWebhook(context.Background(), body, "t=1,v1=bogus")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestStripeWebhookCompletesCheckout(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.StripeSecretKey = "sk_test_123"
	cfg.StripeWebhookSecret = "whsec_test"
	svc, repos := newTestPurchaseService(t, cfg)
	user := seedUser(t, repos, "u1", 0)

	pack, _ := config.FindCreditPack("basic")
	purchase, err := svc.newPurchase(ctx, user.ID, pack, "stripe")
	if err != nil {
		t.Fatalf("newPurchase failed: %v", err)
	}

	payload := fmt.Sprintf(`{"id":"evt_1","api_version":%q,"type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"purchase_id":%q}}}}`,
		stripe.APIVersion, purchase.ID)
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(cfg.StripeWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	if err := svc.HandleStripeWebhook(ctx, []byte(payload), header); err != nil {
		t.Fatalf("HandleStripeWebhook failed: %v", err)
	}

	balance, err := repos.Credit.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != pack.TotalCredits() {
		t.Errorf("expected %d credits, got %d", pack.TotalCredits(), balance.Balance)
	}
}

func TestValidateRevenueCatPurchase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RevenueCatAPIKey = "rc-key"
	svc, repos := newTestPurchaseService(t, cfg)
	user := seedUser(t, repos, "u1", 0)

	// RevenueCat reports the store in upper case; matching against the
	// claimed platform is case-insensitive.
	store := "ANDROID"
	owned := map[string]bool{"pixie_basic": true}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer rc-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		subscriber := map[string]any{
			"non_subscriptions": map[string]any{},
			"entitlements":      map[string]any{},
		}
		if owned["pixie_basic"] {
			subscriber["non_subscriptions"] = map[string]any{
				"pixie_basic": []map[string]any{{
					"id":            "txn-1",
					"store":         store,
					"purchase_date": time.Now().UTC().Format(time.RFC3339),
				}},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"subscriber": subscriber})
	}))
	defer server.Close()
	svc.revenueCat.baseURL = server.URL

	purchase, err := svc.ValidateRevenueCatPurchase(ctx, user.ID, "basic", "token-1", "pixie_basic", "android")
	if err != nil {
		t.Fatalf("ValidateRevenueCatPurchase failed: %v", err)
	}
	if purchase.Status != models.PurchaseStatusCompleted {
		t.Errorf("expected completed purchase, got %s", purchase.Status)
	}

	pack, _ := config.FindCreditPack("basic")
	balance, _ := repos.Credit.GetBalance(ctx, user.ID)
	if balance.Balance != pack.TotalCredits() {
		t.Errorf("expected %d credits, got %d", pack.TotalCredits(), balance.Balance)
	}

	// Replaying the same purchase token is rejected.
	_, err = svc.ValidateRevenueCatPurchase(ctx, user.ID, "basic", "token-1", "pixie_basic", "android")
	if !errors.Is(err, ErrDuplicatePurchase) {
		t.Fatalf("expected ErrDuplicatePurchase, got %v", err)
	}

	// The claimed platform must match the store on the RevenueCat entry.
	_, err = svc.ValidateRevenueCatPurchase(ctx, user.ID, "basic", "token-2", "pixie_basic", "ios")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for store mismatch, got %v", err)
	}

	// A purchase RevenueCat does not know about leaves no pending row.
	owned["pixie_basic"] = false
	_, err = svc.ValidateRevenueCatPurchase(ctx, user.ID, "basic", "token-3", "pixie_basic", "android")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	ghost, err := repos.Purchase.GetByProviderPaymentID(ctx, "revenuecat", "token-3")
	if err != nil {
		t.Fatalf("GetByProviderPaymentID failed: %v", err)
	}
	if ghost != nil {
		t.Errorf("invalid purchase row not deleted: %+v", ghost)
	}
}

func TestValidateRevenueCatPurchaseRejectsBadPlatform(t *testing.T) {
	cfg := testConfig()
	cfg.RevenueCatAPIKey = "rc-key"
	svc, repos := newTestPurchaseService(t, cfg)
	user := seedUser(t, repos, "u1", 0)

	_, err := svc.ValidateRevenueCatPurchase(context.Background(), user.ID, "basic", "token-1", "pixie_basic", "web")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRevenueCatEntitlementMatching(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RevenueCatAPIKey = "rc-key"
	svc, repos := newTestPurchaseService(t, cfg)
	user := seedUser(t, repos, "u1", 0)

	// No one-time purchase entry; one active entitlement for the
	// product and one expired subscription entitlement.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"subscriber": map[string]any{
			"non_subscriptions": map[string]any{},
			"entitlements": map[string]any{
				"credits": map[string]any{"product_identifier": "pixie_basic"},
				"legacy":  map[string]any{"product_identifier": "pixie_sub", "expires_date": "2025-01-01T00:00:00Z"},
			},
		}})
	}))
	defer server.Close()
	svc.revenueCat.baseURL = server.URL

	purchase, err := svc.ValidateRevenueCatPurchase(ctx, user.ID, "basic", "ent-token-1", "pixie_basic", "ios")
	if err != nil {
		t.Fatalf("ValidateRevenueCatPurchase failed: %v", err)
	}
	if purchase.Status != models.PurchaseStatusCompleted {
		t.Errorf("expected completed purchase, got %s", purchase.Status)
	}

	// The expired entitlement's product does not validate.
	_, err = svc.ValidateRevenueCatPurchase(ctx, user.ID, "basic", "ent-token-2", "pixie_sub", "ios")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for expired entitlement, got %v", err)
	}
}

func TestGetPurchaseStatusChecksOwnership(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestPurchaseService(t, testConfig())
	owner := seedUser(t, repos, "owner", 0)
	other := seedUser(t, repos, "other", 0)

	pack, _ := config.FindCreditPack("basic")
	purchase, err := svc.newPurchase(ctx, owner.ID, pack, "stripe")
	if err != nil {
		t.Fatalf("newPurchase failed: %v", err)
	}

	got, err := svc.GetPurchaseStatus(ctx, other.ID, purchase.ID)
	if err != nil {
		t.Fatalf("GetPurchaseStatus failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for another user's purchase, got %+v", got)
	}

	got, err = svc.GetPurchaseStatus(ctx, owner.ID, purchase.ID)
	if err != nil {
		t.Fatalf("GetPurchaseStatus failed: %v", err)
	}
	if got == nil || got.Status != models.PurchaseStatusPending {
		t.Errorf("expected pending purchase, got %+v", got)
	}
}
