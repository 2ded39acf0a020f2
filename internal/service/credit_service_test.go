package service

import (
	"context"
	"errors"
	"testing"

	"github.com/guitaripod/pixie/internal/repository"
)

func newTestCreditService(t *testing.T) (*CreditService, *repository.Repositories) {
	t.Helper()
	repos := setupTestRepos(t)
	return NewCreditService(repos, testConfig(), testLogger()), repos
}

func TestEstimateIncludesToleranceNote(t *testing.T) {
	svc, _ := newTestCreditService(t)

	est := svc.Estimate("high", "1024x1024", 1, false)
	if est.Credits != 62 {
		t.Fatalf("expected 62 credits, got %d", est.Credits)
	}
	if est.EstimatedUSD != "$0.62" {
		t.Errorf("expected $0.62, got %s", est.EstimatedUSD)
	}
	// 15% of 62 plus one.
	want := "Actual cost may vary ±10 credits based on prompt complexity"
	if est.Note != want {
		t.Errorf("note = %q, want %q", est.Note, want)
	}
}

func TestEstimateEditSurcharge(t *testing.T) {
	svc, _ := newTestCreditService(t)

	gen := svc.Estimate("low", "1024x1024", 1, false)
	edit := svc.Estimate("low", "1024x1024", 1, true)
	if edit.Credits != gen.Credits+3 {
		t.Errorf("expected +3 edit surcharge, got %d vs %d", edit.Credits, gen.Credits)
	}
}

func TestReserveChecksBalance(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestCreditService(t)
	user := seedUser(t, repos, "u1", 10)

	if err := svc.Reserve(ctx, user.ID, 10); err != nil {
		t.Errorf("reserve at exact balance failed: %v", err)
	}
	if err := svc.Reserve(ctx, user.ID, 11); !errors.Is(err, repository.ErrInsufficientCredits) {
		t.Errorf("expected ErrInsufficientCredits, got %v", err)
	}

	// Reserve never mutates the balance.
	balance, err := svc.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != 10 {
		t.Errorf("balance changed by reserve: %d", balance.Balance)
	}
}

func TestGetBalanceInitializesMissingRow(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestCreditService(t)
	user := seedUser(t, repos, "u1", 0)

	balance, err := svc.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != 0 {
		t.Errorf("expected zero balance, got %d", balance.Balance)
	}
}

func TestAdminAdjustAdds(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestCreditService(t)
	user := seedUser(t, repos, "u1", 50)

	applied, newBalance, err := svc.AdminAdjust(ctx, "admin-1", user.ID, 100, "goodwill")
	if err != nil {
		t.Fatalf("AdminAdjust failed: %v", err)
	}
	if applied != 100 || newBalance != 150 {
		t.Errorf("applied=%d newBalance=%d, want 100/150", applied, newBalance)
	}

	entries, err := repos.Credit.ListTransactions(ctx, user.ID, 1, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	want := "Admin adjustment by admin-1: goodwill"
	if entries[0].Description != want {
		t.Errorf("description = %q, want %q", entries[0].Description, want)
	}
}

func TestAdminAdjustClampsDebitAtZero(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestCreditService(t)
	user := seedUser(t, repos, "u1", 30)

	applied, newBalance, err := svc.AdminAdjust(ctx, "admin-1", user.ID, -100, "abuse")
	if err != nil {
		t.Fatalf("AdminAdjust failed: %v", err)
	}
	if applied != -30 || newBalance != 0 {
		t.Errorf("applied=%d newBalance=%d, want -30/0", applied, newBalance)
	}

	balance, err := repos.Credit.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != 0 {
		t.Errorf("expected clamped balance 0, got %d", balance.Balance)
	}
}

func TestAdminAdjustZeroIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc, repos := newTestCreditService(t)
	user := seedUser(t, repos, "u1", 30)

	applied, newBalance, err := svc.AdminAdjust(ctx, "admin-1", user.ID, 0, "nothing")
	if err != nil {
		t.Fatalf("AdminAdjust failed: %v", err)
	}
	if applied != 0 || newBalance != 30 {
		t.Errorf("applied=%d newBalance=%d, want 0/30", applied, newBalance)
	}

	entries, err := repos.Credit.ListTransactions(ctx, user.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	// Only the seed entry.
	if len(entries) != 1 {
		t.Errorf("expected no new journal entry, got %d entries", len(entries))
	}
}
