package handlers

import (
	"context"
	"time"

	"github.com/guitaripod/pixie/internal/service"
)

// UsageHandler handles usage reporting endpoints.
type UsageHandler struct {
	usageSvc *service.UsageService
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usageSvc *service.UsageService) *UsageHandler {
	return &UsageHandler{usageSvc: usageSvc}
}

// UsageWindowInput selects the reporting window. Empty bounds default
// to the last 30 days.
type UsageWindowInput struct {
	Start string `query:"start" doc:"Window start, RFC 3339"`
	End   string `query:"end" doc:"Window end, RFC 3339"`
}

func (i *UsageWindowInput) window() (time.Time, time.Time, *AppError) {
	var start, end time.Time
	var err error
	if i.Start != "" {
		if start, err = time.Parse(time.RFC3339, i.Start); err != nil {
			return start, end, badRequest("start must be RFC 3339")
		}
	}
	if i.End != "" {
		if end, err = time.Parse(time.RFC3339, i.End); err != nil {
			return start, end, badRequest("end must be RFC 3339")
		}
	}
	return start, end, nil
}

// UserUsageInput addresses one user's usage over a window. Callers may
// only read their own usage unless they are an admin.
type UserUsageInput struct {
	UserID string `path:"userID" doc:"User whose usage to report"`
	UsageWindowInput
}

func requireSelfOrAdmin(ctx context.Context, userID string) *AppError {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return appErr
	}
	if user.ID != userID && !user.IsAdmin {
		return forbidden("You can only view your own usage")
	}
	return nil
}

// UserUsageOutput is the per-user usage summary.
type UserUsageOutput struct {
	Body service.UserUsageReport
}

// GetUserUsage handles GET /v1/usage/users/{userID}.
func (h *UsageHandler) GetUserUsage(ctx context.Context, input *UserUsageInput) (*UserUsageOutput, error) {
	if appErr := requireSelfOrAdmin(ctx, input.UserID); appErr != nil {
		return nil, appErr
	}
	start, end, appErr := input.window()
	if appErr != nil {
		return nil, appErr
	}

	report, err := h.usageSvc.UserReport(ctx, input.UserID, start, end)
	if err != nil {
		return nil, mapError(err)
	}
	return &UserUsageOutput{Body: *report}, nil
}

// UserUsageDetailsOutput is the per-user daily breakdown.
type UserUsageDetailsOutput struct {
	Body service.UserUsageDetails
}

// GetUserUsageDetails handles GET /v1/usage/users/{userID}/details.
func (h *UsageHandler) GetUserUsageDetails(ctx context.Context, input *UserUsageInput) (*UserUsageDetailsOutput, error) {
	if appErr := requireSelfOrAdmin(ctx, input.UserID); appErr != nil {
		return nil, appErr
	}
	start, end, appErr := input.window()
	if appErr != nil {
		return nil, appErr
	}

	details, err := h.usageSvc.UserDetails(ctx, input.UserID, start, end)
	if err != nil {
		return nil, mapError(err)
	}
	return &UserUsageDetailsOutput{Body: *details}, nil
}

// SystemUsageOutput is the system-wide usage report.
type SystemUsageOutput struct {
	Body service.SystemUsageReport
}

// GetSystemUsage handles GET /v1/usage/system. Mounted behind the
// admin middleware.
func (h *UsageHandler) GetSystemUsage(ctx context.Context, input *UsageWindowInput) (*SystemUsageOutput, error) {
	if _, appErr := requireUser(ctx); appErr != nil {
		return nil, appErr
	}
	start, end, appErr := input.window()
	if appErr != nil {
		return nil, appErr
	}

	report, err := h.usageSvc.SystemReport(ctx, start, end)
	if err != nil {
		return nil, mapError(err)
	}
	return &SystemUsageOutput{Body: *report}, nil
}
