package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guitaripod/pixie/internal/service"
)

// AuthHandler handles OAuth sign-in, native token exchange and the
// device authorization flow.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Authorize handles GET /v1/auth/{provider}: it redirects the browser
// to the provider's consent page.
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	redirectURI := r.URL.Query().Get("redirect_uri")
	state := r.URL.Query().Get("state")
	if redirectURI == "" {
		writeError(w, badRequest("redirect_uri is required"))
		return
	}

	target, err := h.authSvc.AuthorizeURL(provider, state, redirectURI)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback handles the provider's redirect back to us. Clients may
// also POST the code themselves as JSON; Apple posts a form.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	code := r.URL.Query().Get("code")
	redirectURI := r.URL.Query().Get("redirect_uri")
	if code == "" && r.Method == http.MethodPost {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body struct {
				Code        string `json:"code"`
				RedirectURI string `json:"redirect_uri"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				code = body.Code
				if body.RedirectURI != "" {
					redirectURI = body.RedirectURI
				}
			}
		} else if err := r.ParseForm(); err == nil {
			code = r.FormValue("code")
		}
	}
	if code == "" {
		writeError(w, badRequest("code is required"))
		return
	}

	result, err := h.authSvc.Callback(r.Context(), provider, code, redirectURI)
	if err != nil {
		writeError(w, mapError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// NativeTokenInput carries a provider-issued identity token.
type NativeTokenInput struct {
	Body struct {
		IDToken string `json:"id_token" doc:"Identity token from the native sign-in SDK"`
	}
}

// AuthResultOutput wraps the issued credentials.
type AuthResultOutput struct {
	Body service.AuthResult
}

// GoogleToken handles POST /v1/auth/google/token for native apps.
func (h *AuthHandler) GoogleToken(ctx context.Context, input *NativeTokenInput) (*AuthResultOutput, error) {
	result, err := h.authSvc.GoogleIDToken(ctx, input.Body.IDToken)
	if err != nil {
		return nil, mapError(err)
	}
	return &AuthResultOutput{Body: *result}, nil
}

// AppleToken handles POST /v1/auth/apple/token for native apps.
func (h *AuthHandler) AppleToken(ctx context.Context, input *NativeTokenInput) (*AuthResultOutput, error) {
	result, err := h.authSvc.AppleIDToken(ctx, input.Body.IDToken)
	if err != nil {
		return nil, mapError(err)
	}
	return &AuthResultOutput{Body: *result}, nil
}

// DeviceStartInput begins a device authorization flow.
type DeviceStartInput struct {
	Body struct {
		Provider   string `json:"provider" enum:"github,google"`
		ClientType string `json:"client_type,omitempty" doc:"Free-form client identifier, e.g. cli"`
	}
}

// DeviceStartOutput is the device flow bootstrap response.
type DeviceStartOutput struct {
	Body service.DeviceFlowStart
}

// DeviceStart handles POST /v1/auth/device/code.
func (h *AuthHandler) DeviceStart(ctx context.Context, input *DeviceStartInput) (*DeviceStartOutput, error) {
	start, err := h.authSvc.StartDeviceFlow(ctx, input.Body.ClientType, input.Body.Provider)
	if err != nil {
		return nil, mapError(err)
	}
	return &DeviceStartOutput{Body: *start}, nil
}

// DeviceToken handles POST /v1/auth/device/token. It stays a raw
// handler so the CLI can match on the poll messages without a typed
// schema; errors use the standard envelope. "Access denied" is the one
// terminal state the user caused, and it answers 401.
func (h *AuthHandler) DeviceToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceCode string `json:"device_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DeviceCode == "" {
		writeError(w, badRequest("device_code is required"))
		return
	}

	result, err := h.authSvc.PollDeviceFlow(r.Context(), body.DeviceCode)
	if err != nil {
		writeError(w, devicePollError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// devicePollError maps the device grant sentinels onto the envelope
// messages polling clients key off.
func devicePollError(err error) *AppError {
	switch {
	case errors.Is(err, service.ErrAuthorizationPending):
		return badRequest("Authorization pending")
	case errors.Is(err, service.ErrSlowDown):
		return badRequest("Slow down")
	case errors.Is(err, service.ErrDeviceCodeExpired):
		return badRequest("Device code expired")
	case errors.Is(err, service.ErrAccessDenied):
		return unauthorized("Access denied")
	case errors.Is(err, service.ErrInvalidDeviceCode):
		return badRequest("Invalid device code")
	default:
		return internalError()
	}
}

// DeviceStatusInput addresses a device flow.
type DeviceStatusInput struct {
	DeviceCode string `path:"deviceCode"`
}

// DeviceStatusOutput reports the flow state without polling upstream.
type DeviceStatusOutput struct {
	Body service.DeviceFlowState
}

// DeviceStatus handles GET /v1/auth/device/{deviceCode}/status.
func (h *AuthHandler) DeviceStatus(ctx context.Context, input *DeviceStatusInput) (*DeviceStatusOutput, error) {
	state, err := h.authSvc.DeviceFlowStatus(ctx, input.DeviceCode)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeviceCode) {
			return nil, notFound("Unknown device code")
		}
		return nil, mapError(err)
	}
	return &DeviceStatusOutput{Body: *state}, nil
}
