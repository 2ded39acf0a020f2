package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

// Pagination bounds shared by the listing endpoints.
const (
	MaxPerPage                 = 100
	DefaultGalleryPerPage      = 20
	DefaultTransactionsPerPage = 50
)

// ClampPage normalizes a page number (1-based).
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// ClampPerPage normalizes a page size into [1, MaxPerPage].
func ClampPerPage(perPage, def int) int {
	if perPage < 1 {
		return def
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

// CreditService owns the credit ledger and the price estimate surface.
type CreditService struct {
	repos      *repository.Repositories
	multiplier float64
	logger     *slog.Logger
}

// NewCreditService creates a new credit service.
func NewCreditService(repos *repository.Repositories, cfg *config.Config, logger *slog.Logger) *CreditService {
	return &CreditService{
		repos:      repos,
		multiplier: cfg.CreditMultiplier,
		logger:     logger,
	}
}

// GetBalance returns the user's balance row, creating it if absent.
func (s *CreditService) GetBalance(ctx context.Context, userID string) (*models.UserCredits, error) {
	balance, err := s.repos.Credit.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		if err := s.repos.Credit.Initialize(ctx, userID); err != nil {
			return nil, err
		}
		return s.repos.Credit.GetBalance(ctx, userID)
	}
	return balance, nil
}

// ListTransactions returns a page of the user's journal, newest first.
func (s *CreditService) ListTransactions(ctx context.Context, userID string, page, perPage int) ([]*models.CreditTransaction, int, int, error) {
	page = ClampPage(page)
	perPage = ClampPerPage(perPage, DefaultTransactionsPerPage)

	entries, err := s.repos.Credit.ListTransactions(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, 0, err
	}
	return entries, page, perPage, nil
}

// Estimate is the deterministic cost preview for a generation request.
type Estimate struct {
	Credits      int
	EstimatedUSD string
	Note         string
}

// Estimate computes the up-front estimate and the ±15% tolerance note.
func (s *CreditService) Estimate(quality, size string, n int, isEdit bool) Estimate {
	credits := imggen.EstimateCredits(quality, size, n, isEdit)
	tolerance := credits*15/100 + 1
	return Estimate{
		Credits:      credits,
		EstimatedUSD: fmt.Sprintf("$%.2f", imggen.CreditsToUSD(credits)),
		Note:         fmt.Sprintf("Actual cost may vary ±%d credits based on prompt complexity", tolerance),
	}
}

// Reserve verifies the balance covers the estimate. It does not mutate;
// the per-user lock guarantees no concurrent spend between reserve and
// deduct.
func (s *CreditService) Reserve(ctx context.Context, userID string, credits int) error {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if balance.Balance < credits {
		return repository.ErrInsufficientCredits
	}
	return nil
}

// Deduct charges credits and journals the spend.
func (s *CreditService) Deduct(ctx context.Context, userID string, credits int, description, reference string) (*models.CreditTransaction, error) {
	return s.repos.Credit.Deduct(ctx, userID, credits, models.TxTypeSpend, description, reference)
}

// Add credits the balance and journals the entry.
func (s *CreditService) Add(ctx context.Context, userID string, credits int, txType models.CreditTransactionType, description, reference string) (*models.CreditTransaction, error) {
	return s.repos.Credit.Add(ctx, userID, credits, txType, description, reference)
}

// ReconcileCost converts provider token telemetry into the final charge.
func (s *CreditService) ReconcileCost(usage imggen.Usage) int {
	return imggen.TokenCostCredits(usage, s.multiplier)
}

// CostCents converts charged credits back to provider cost cents.
func (s *CreditService) CostCents(credits int) int {
	return imggen.CostCents(credits, s.multiplier)
}

// AdminAdjust applies a signed credit adjustment. Negative adjustments
// clamp at zero so the balance invariant holds; the journal records the
// delta actually applied.
func (s *CreditService) AdminAdjust(ctx context.Context, adminID, userID string, amount int, reason string) (applied int, newBalance int, err error) {
	description := fmt.Sprintf("Admin adjustment by %s: %s", adminID, reason)

	switch {
	case amount > 0:
		entry, err := s.repos.Credit.Add(ctx, userID, amount, models.TxTypeAdminAdjustment, description, "")
		if err != nil {
			return 0, 0, err
		}
		return amount, entry.BalanceAfter, nil

	case amount < 0:
		balance, err := s.GetBalance(ctx, userID)
		if err != nil {
			return 0, 0, err
		}
		deduct := -amount
		if deduct > balance.Balance {
			deduct = balance.Balance
		}
		if deduct == 0 {
			return 0, balance.Balance, nil
		}
		entry, err := s.repos.Credit.Deduct(ctx, userID, deduct, models.TxTypeAdminAdjustment, description, "")
		if err != nil {
			return 0, 0, err
		}
		return -deduct, entry.BalanceAfter, nil

	default:
		balance, err := s.GetBalance(ctx, userID)
		if err != nil {
			return 0, 0, err
		}
		return 0, balance.Balance, nil
	}
}

// Packs returns the purchase catalogue.
func (s *CreditService) Packs() []config.CreditPack {
	return config.CreditPacks()
}
