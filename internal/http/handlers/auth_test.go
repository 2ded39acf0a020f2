package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
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
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
	"github.com/guitaripod/pixie/internal/service"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *repository.Repositories) {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{DeploymentMode: config.ModeOfficial, BaseURL: "http://localhost:8080"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := repository.NewRepositories(db)
	return NewAuthHandler(service.NewAuthService(cfg, repos, logger)), repos
}

func pollDeviceToken(t *testing.T, h *AuthHandler, deviceCode string) *httptest.ResponseRecorder {
	t.Helper()
	body := strings.NewReader(`{"device_code":"` + deviceCode + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/device/token", body)
	rec := httptest.NewRecorder()
	h.DeviceToken(rec, req)
	return rec
}

func TestDevicePollErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"pending", service.ErrAuthorizationPending, http.StatusBadRequest, "Authorization pending"},
		{"slow down", service.ErrSlowDown, http.StatusBadRequest, "Slow down"},
		{"expired", service.ErrDeviceCodeExpired, http.StatusBadRequest, "Device code expired"},
		{"denied", service.ErrAccessDenied, http.StatusUnauthorized, "Access denied"},
		{"unknown code", service.ErrInvalidDeviceCode, http.StatusBadRequest, "Invalid device code"},
		{"opaque", errors.New("network down"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := devicePollError(tt.err)
			if appErr.GetStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", appErr.GetStatus(), tt.wantStatus)
			}
			if appErr.Detail.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", appErr.Detail.Message, tt.wantMessage)
			}
		})
	}
}

func TestDeviceTokenExpiredFlowEnvelope(t *testing.T) {
	h, repos := newAuthHandler(t)

	flow := &models.DeviceAuthFlow{
		ID:         "flow-1",
		DeviceCode: "upstream-code",
		UserCode:   "ABCD-1234",
		ClientType: "cli",
		Provider:   "github",
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
		CreatedAt:  time.Now().UTC().Add(-16 * time.Minute),
	}
	if err := repos.DeviceAuth.Create(context.Background(), flow); err != nil {
		t.Fatalf("failed to seed device flow: %v", err)
	}

	rec := pollDeviceToken(t, h, flow.ID)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var envelope struct {
		Error ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if envelope.Error.Message != "Device code expired" {
		t.Errorf("message = %q", envelope.Error.Message)
	}
	if envelope.Error.Type != "invalid_request_error" {
		t.Errorf("type = %q", envelope.Error.Type)
	}
}

func TestDeviceTokenUnknownCode(t *testing.T) {
	h, _ := newAuthHandler(t)

	rec := pollDeviceToken(t, h, "no-such-flow")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid device code") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDeviceTokenMissingCode(t *testing.T) {
	h, _ := newAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/device/token", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.DeviceToken(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
