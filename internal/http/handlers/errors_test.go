package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/repository"
	"github.com/guitaripod/pixie/internal/service"
)

func TestMapErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{"moderation", imggen.ErrModerated, http.StatusBadRequest, "invalid_request_error", "bad_request"},
		{"wrapped moderation", fmt.Errorf("openai: %w", imggen.ErrModerated), http.StatusBadRequest, "invalid_request_error", "bad_request"},
		{"streaming", service.ErrStreamingUnsupported, http.StatusBadRequest, "invalid_request_error", "bad_request"},
		{"insufficient credits", repository.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits", "insufficient_credits"},
		{"lock held", repository.ErrLockHeld, http.StatusTooManyRequests, "rate_limit_exceeded", "rate_limit_exceeded"},
		{"invalid token", service.ErrInvalidToken, http.StatusUnauthorized, "authentication_error", "unauthorized"},
		{"unknown model", imggen.ErrUnsupportedModel, http.StatusBadRequest, "invalid_request_error", "bad_request"},
		{"unknown pack", service.ErrUnknownPack, http.StatusBadRequest, "invalid_request_error", "bad_request"},
		{"opaque", errors.New("database exploded"), http.StatusInternalServerError, "internal_error", "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := mapError(tt.err)
			if appErr.GetStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", appErr.GetStatus(), tt.wantStatus)
			}
			if appErr.Detail.Type != tt.wantType {
				t.Errorf("type = %q, want %q", appErr.Detail.Type, tt.wantType)
			}
			if appErr.Detail.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", appErr.Detail.Code, tt.wantCode)
			}
		})
	}
}

func TestErrorKindTable(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		status   int
		wantType string
		wantCode string
	}{
		{"bad request", badRequest("x"), http.StatusBadRequest, "invalid_request_error", "bad_request"},
		{"unauthorized", unauthorized("x"), http.StatusUnauthorized, "authentication_error", "unauthorized"},
		{"forbidden", forbidden("x"), http.StatusForbidden, "permission_denied", "forbidden"},
		{"not found", notFound("x"), http.StatusNotFound, "not_found", "not_found"},
		{"internal", internalError(), http.StatusInternalServerError, "internal_error", "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.GetStatus() != tt.status {
				t.Errorf("status = %d, want %d", tt.err.GetStatus(), tt.status)
			}
			if tt.err.Detail.Type != tt.wantType {
				t.Errorf("type = %q, want %q", tt.err.Detail.Type, tt.wantType)
			}
			if tt.err.Detail.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", tt.err.Detail.Code, tt.wantCode)
			}
		})
	}
}

func TestMapErrorModerationMessage(t *testing.T) {
	appErr := mapError(imggen.ErrModerated)
	if appErr.Detail.Message != moderationMessage {
		t.Errorf("message = %q, want the canned moderation message", appErr.Detail.Message)
	}
}

func TestMapErrorHidesInternalDetails(t *testing.T) {
	appErr := mapError(errors.New("pq: connection refused at 10.0.0.5"))
	if appErr.Detail.Message != "An unexpected error occurred" {
		t.Errorf("internal details leaked: %q", appErr.Detail.Message)
	}
}

func TestMapErrorLockHeldMessage(t *testing.T) {
	appErr := mapError(repository.ErrLockHeld)
	if appErr.Detail.Message != "Another request is already in progress" {
		t.Errorf("message = %q", appErr.Detail.Message)
	}
}

func TestMapErrorPassesThroughAppError(t *testing.T) {
	original := notFound("Image not found: abc")
	appErr := mapError(fmt.Errorf("handler: %w", original))
	if appErr != original {
		t.Errorf("wrapped AppError not unwrapped")
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, badRequest("Missing prompt"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var envelope struct {
		Error ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if envelope.Error.Message != "Missing prompt" || envelope.Error.Type != "invalid_request_error" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}
