package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guitaripod/pixie/internal/repository"
)

// AdminService backs the admin-only endpoints: manual credit
// adjustments and the platform dashboard.
type AdminService struct {
	repos   *repository.Repositories
	credits *CreditService
	logger  *slog.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(repos *repository.Repositories, credits *CreditService, logger *slog.Logger) *AdminService {
	return &AdminService{repos: repos, credits: credits, logger: logger}
}

// AdjustResult reports what an adjustment actually did. Applied can be
// smaller in magnitude than requested when a debit clamps at zero.
type AdjustResult struct {
	UserID     string `json:"user_id"`
	Applied    int    `json:"applied"`
	NewBalance int    `json:"new_balance"`
}

// AdjustCredits applies a signed credit adjustment to a user.
func (s *AdminService) AdjustCredits(ctx context.Context, adminID, userID string, amount int, reason string) (*AdjustResult, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrInvalidRequest)
	}
	user, err := s.repos.User.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user %s", ErrInvalidRequest, userID)
	}

	applied, newBalance, err := s.credits.AdminAdjust(ctx, adminID, userID, amount, reason)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin credit adjustment",
		"admin_id", adminID,
		"user_id", userID,
		"requested", amount,
		"applied", applied,
	)
	return &AdjustResult{UserID: userID, Applied: applied, NewBalance: newBalance}, nil
}

// PlatformStats is the admin dashboard payload.
type PlatformStats struct {
	Users struct {
		Total int `json:"total"`
	} `json:"users"`
	Credits repository.CreditTotals `json:"credits"`
	Revenue struct {
		TotalUSD       float64 `json:"total_usd"`
		ProviderCosts  float64 `json:"openai_costs_usd"`
		GrossProfitUSD float64 `json:"gross_profit"`
		Margin         string  `json:"margin"`
	} `json:"revenue"`
	Images struct {
		Total int `json:"total"`
	} `json:"images"`
}

// Stats assembles the platform dashboard: user counts, credit totals,
// revenue against provider cost, and image volume.
func (s *AdminService) Stats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}

	userCount, err := s.repos.User.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.Users.Total = userCount

	totals, err := s.repos.Credit.GetTotals(ctx)
	if err != nil {
		return nil, err
	}
	stats.Credits = *totals

	revenueCents, err := s.repos.Purchase.TotalRevenueCents(ctx)
	if err != nil {
		return nil, err
	}
	costCents, err := s.repos.Image.TotalCostCents(ctx)
	if err != nil {
		return nil, err
	}

	revenue := float64(revenueCents) / 100
	costs := float64(costCents) / 100
	profit := revenue - costs
	margin := 0.0
	if revenue > 0 {
		margin = profit / revenue * 100
	}
	stats.Revenue.TotalUSD = revenue
	stats.Revenue.ProviderCosts = costs
	stats.Revenue.GrossProfitUSD = profit
	stats.Revenue.Margin = fmt.Sprintf("%.1f%%", margin)

	imageCount, err := s.repos.Usage.TotalImages(ctx)
	if err != nil {
		return nil, err
	}
	stats.Images.Total = imageCount

	return stats, nil
}
