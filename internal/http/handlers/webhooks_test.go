package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/database/migrations"
	"github.com/guitaripod/pixie/internal/repository"
	"github.com/guitaripod/pixie/internal/service"
)

func signStripe(t *testing.T, secret, payload string, ts int64) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookHandler(t *testing.T) *WebhookHandler {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		DeploymentMode:       config.ModeOfficial,
		CreditMultiplier:     3.0,
		LockTTL:              time.Minute,
		StripeSecretKey:      "sk_test_123",
		StripeWebhookSecret:  "whsec_test",
		NOWPaymentsAPIKey:    "np-key",
		NOWPaymentsIPNSecret: "ipn-secret",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := repository.NewRepositories(db)
	credit := service.NewCreditService(repos, cfg, logger)
	return NewWebhookHandler(service.NewPurchaseService(cfg, repos, credit, logger))
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	h := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook",
		bytes.NewBufferString(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid webhook signature") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStripeWebhookRejectsStaleTimestamp(t *testing.T) {
	h := newWebhookHandler(t)

	// A correctly signed payload from an hour ago falls outside the
	// replay tolerance.
	payload := `{"type":"checkout.session.completed"}`
	stale := time.Now().Add(-time.Hour).Unix()
	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Stripe-Signature", signStripe(t, "whsec_test", payload, stale))
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCryptoWebhookRejectsBadSignature(t *testing.T) {
	h := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/credits/webhook/crypto",
		bytes.NewBufferString(`{"order_id":"p1","payment_status":"finished"}`))
	req.Header.Set("x-nowpayments-sig", "deadbeef")
	rec := httptest.NewRecorder()
	h.Crypto(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCryptoWebhookRejectsMissingSignature(t *testing.T) {
	h := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/credits/webhook/crypto",
		bytes.NewBufferString(`{"order_id":"p1","payment_status":"finished"}`))
	rec := httptest.NewRecorder()
	h.Crypto(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
