package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/guitaripod/pixie/internal/repository"
)

// DefaultUsageWindow is the reporting window when the caller gives none.
const DefaultUsageWindow = 30 * 24 * time.Hour

// UsageService aggregates the per-request telemetry for reporting.
type UsageService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewUsageService creates a new usage service.
func NewUsageService(repos *repository.Repositories, logger *slog.Logger) *UsageService {
	return &UsageService{repos: repos, logger: logger}
}

// resolveWindow fills in the default 30-day window for zero bounds.
func resolveWindow(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-DefaultUsageWindow)
	}
	return start, end
}

// UserUsageReport is one user's usage summary over a window.
type UserUsageReport struct {
	UserID      string                   `json:"user_id"`
	PeriodStart time.Time                `json:"period_start"`
	PeriodEnd   time.Time                `json:"period_end"`
	Summary     *repository.UsageSummary `json:"summary"`
}

// UserReport builds a user's usage summary for the window.
func (s *UsageService) UserReport(ctx context.Context, userID string, start, end time.Time) (*UserUsageReport, error) {
	start, end = resolveWindow(start, end)

	summary, err := s.repos.Usage.GetUserSummary(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	return &UserUsageReport{
		UserID:      userID,
		PeriodStart: start,
		PeriodEnd:   end,
		Summary:     summary,
	}, nil
}

// UserUsageDetails is one user's day-by-day breakdown over a window.
type UserUsageDetails struct {
	UserID      string                  `json:"user_id"`
	PeriodStart time.Time               `json:"period_start"`
	PeriodEnd   time.Time               `json:"period_end"`
	DailyUsage  []repository.DailyUsage `json:"daily_usage"`
}

// UserDetails builds a user's daily usage breakdown for the window.
func (s *UsageService) UserDetails(ctx context.Context, userID string, start, end time.Time) (*UserUsageDetails, error) {
	start, end = resolveWindow(start, end)

	daily, err := s.repos.Usage.GetUserDaily(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	return &UserUsageDetails{
		UserID:      userID,
		PeriodStart: start,
		PeriodEnd:   end,
		DailyUsage:  daily,
	}, nil
}

// SystemUsageReport is the admin-wide view over a window.
type SystemUsageReport struct {
	PeriodStart time.Time                   `json:"period_start"`
	PeriodEnd   time.Time                   `json:"period_end"`
	Stats       *repository.SystemStats     `json:"stats"`
	TopUsers    []repository.UserTokenUsage `json:"top_users"`
}

// SystemReport builds the system-wide usage report, including the ten
// heaviest users by token consumption.
func (s *UsageService) SystemReport(ctx context.Context, start, end time.Time) (*SystemUsageReport, error) {
	start, end = resolveWindow(start, end)

	stats, err := s.repos.Usage.GetSystemStats(ctx, start, end)
	if err != nil {
		return nil, err
	}
	topUsers, err := s.repos.Usage.GetTopUsers(ctx, start, end, 10)
	if err != nil {
		return nil, err
	}

	return &SystemUsageReport{
		PeriodStart: start,
		PeriodEnd:   end,
		Stats:       stats,
		TopUsers:    topUsers,
	}, nil
}
