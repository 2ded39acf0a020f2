package handlers

import (
	"context"
	"time"

	"github.com/guitaripod/pixie/internal/service"
)

// UserHandler handles account endpoints.
type UserHandler struct {
	userSvc *service.UserService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(userSvc *service.UserService) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

// MeOutput is the current account response. The API key is never
// echoed back.
type MeOutput struct {
	Body struct {
		ID        string    `json:"id"`
		Provider  string    `json:"provider"`
		Email     string    `json:"email,omitempty"`
		Name      string    `json:"name,omitempty"`
		IsAdmin   bool      `json:"is_admin"`
		CreatedAt time.Time `json:"created_at"`

		HasOpenAIKey bool `json:"has_openai_key"`
		HasGeminiKey bool `json:"has_gemini_key"`
	}
}

// Me handles GET /v1/me.
func (h *UserHandler) Me(ctx context.Context, input *struct{}) (*MeOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	out := &MeOutput{}
	out.Body.ID = user.ID
	out.Body.Provider = user.Provider
	out.Body.Email = user.Email
	out.Body.Name = user.Name
	out.Body.IsAdmin = user.IsAdmin
	out.Body.CreatedAt = user.CreatedAt
	out.Body.HasOpenAIKey = user.OpenAIAPIKeyEncrypted != ""
	out.Body.HasGeminiKey = user.GeminiAPIKeyEncrypted != ""
	return out, nil
}

// ProviderKeysInput carries the user's own provider keys. Omitted
// fields are untouched; empty strings clear the stored key.
type ProviderKeysInput struct {
	Body struct {
		OpenAIAPIKey *string `json:"openai_api_key,omitempty"`
		GeminiAPIKey *string `json:"gemini_api_key,omitempty"`
	}
}

// ProviderKeysOutput acknowledges the update.
type ProviderKeysOutput struct {
	Body struct {
		Updated bool `json:"updated"`
	}
}

// SetProviderKeys handles PUT /v1/me/provider-keys.
func (h *UserHandler) SetProviderKeys(ctx context.Context, input *ProviderKeysInput) (*ProviderKeysOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	err := h.userSvc.SetProviderKeys(ctx, user.ID, input.Body.OpenAIAPIKey, input.Body.GeminiAPIKey)
	if err != nil {
		return nil, mapError(err)
	}

	out := &ProviderKeysOutput{}
	out.Body.Updated = true
	return out, nil
}
