package handlers

import (
	"context"

	"github.com/guitaripod/pixie/internal/service"
)

// AdminHandler handles the admin-only endpoints. Routes are mounted
// behind the admin middleware, so handlers assume an admin caller.
type AdminHandler struct {
	adminSvc *service.AdminService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(adminSvc *service.AdminService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc}
}

// AdjustCreditsInput is the manual adjustment request.
type AdjustCreditsInput struct {
	Body struct {
		UserID string `json:"user_id"`
		Amount int    `json:"amount" doc:"Signed credit delta; negative debits clamp at zero"`
		Reason string `json:"reason"`
	}
}

// AdjustCreditsOutput reports what the adjustment did.
type AdjustCreditsOutput struct {
	Body service.AdjustResult
}

// AdjustCredits handles POST /v1/admin/credits/adjust.
func (h *AdminHandler) AdjustCredits(ctx context.Context, input *AdjustCreditsInput) (*AdjustCreditsOutput, error) {
	admin, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	result, err := h.adminSvc.AdjustCredits(ctx, admin.ID, input.Body.UserID, input.Body.Amount, input.Body.Reason)
	if err != nil {
		return nil, mapError(err)
	}
	return &AdjustCreditsOutput{Body: *result}, nil
}

// StatsOutput is the platform dashboard response.
type StatsOutput struct {
	Body service.PlatformStats
}

// Stats handles GET /v1/admin/credits/stats.
func (h *AdminHandler) Stats(ctx context.Context, input *struct{}) (*StatsOutput, error) {
	if _, appErr := requireUser(ctx); appErr != nil {
		return nil, appErr
	}

	stats, err := h.adminSvc.Stats(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &StatsOutput{Body: *stats}, nil
}
