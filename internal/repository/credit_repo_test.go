package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/guitaripod/pixie/internal/models"
)

func TestCreditRepository_InitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	InsertTestUser(t, db, "user-1", "pixie_abc")

	if err := repos.Credit.Initialize(ctx, "user-1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := repos.Credit.Initialize(ctx, "user-1"); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}

	balance, err := repos.Credit.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance == nil || balance.Balance != 0 {
		t.Errorf("balance = %+v, want zero balance row", balance)
	}
}

func TestCreditRepository_DeductInsufficient(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	seedUserWithCredits(t, db, repos, "user-1", 10)

	_, err := repos.Credit.Deduct(ctx, "user-1", 11, models.TxTypeSpend, "too much", "")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Deduct() error = %v, want ErrInsufficientCredits", err)
	}

	// Balance must be untouched after a rejected deduction.
	balance, err := repos.Credit.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.Balance != 10 {
		t.Errorf("balance = %d, want 10", balance.Balance)
	}
	if balance.LifetimeSpent != 0 {
		t.Errorf("lifetime_spent = %d, want 0", balance.LifetimeSpent)
	}
}

func TestCreditRepository_DeductExactBalance(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	seedUserWithCredits(t, db, repos, "user-1", 25)

	entry, err := repos.Credit.Deduct(ctx, "user-1", 25, models.TxTypeSpend, "all of it", "")
	if err != nil {
		t.Fatalf("Deduct() error = %v", err)
	}
	if entry.Amount != -25 {
		t.Errorf("journal amount = %d, want -25", entry.Amount)
	}
	if entry.BalanceAfter != 0 {
		t.Errorf("balance_after = %d, want 0", entry.BalanceAfter)
	}
}

func TestCreditRepository_JournalTelescopes(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	seedUserWithCredits(t, db, repos, "user-1", 0)

	ops := []struct {
		add    bool
		amount int
	}{
		{true, 100},
		{false, 30},
		{false, 20},
		{true, 500},
		{false, 1},
	}
	for _, op := range ops {
		var err error
		if op.add {
			_, err = repos.Credit.Add(ctx, "user-1", op.amount, models.TxTypePurchase, "add", "")
		} else {
			_, err = repos.Credit.Deduct(ctx, "user-1", op.amount, models.TxTypeSpend, "spend", "")
		}
		if err != nil {
			t.Fatalf("ledger op %+v error = %v", op, err)
		}
	}

	entries, err := repos.Credit.ListTransactions(ctx, "user-1", 100, 0)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	// Newest first: each balance_after must equal the previous entry's
	// balance_after plus this entry's signed amount.
	for i := 0; i < len(entries)-1; i++ {
		prev := entries[i+1].BalanceAfter
		if got := prev + entries[i].Amount; got != entries[i].BalanceAfter {
			t.Errorf("entry %d: balance_after = %d, want %d", i, entries[i].BalanceAfter, got)
		}
	}

	balance, _ := repos.Credit.GetBalance(ctx, "user-1")
	if balance.Balance != 549 {
		t.Errorf("final balance = %d, want 549", balance.Balance)
	}
	if balance.LifetimePurchased != 600 {
		t.Errorf("lifetime_purchased = %d, want 600", balance.LifetimePurchased)
	}
	if balance.LifetimeSpent != 51 {
		t.Errorf("lifetime_spent = %d, want 51", balance.LifetimeSpent)
	}
}

func TestCreditRepository_RefundDoesNotGrowLifetimePurchased(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	seedUserWithCredits(t, db, repos, "user-1", 100)

	if _, err := repos.Credit.Add(ctx, "user-1", 40, models.TxTypeRefund, "refund", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	balance, _ := repos.Credit.GetBalance(ctx, "user-1")
	if balance.Balance != 140 {
		t.Errorf("balance = %d, want 140", balance.Balance)
	}
	if balance.LifetimePurchased != 100 {
		t.Errorf("lifetime_purchased = %d, want 100 (refunds excluded)", balance.LifetimePurchased)
	}
}

func TestCreditRepository_ListTransactionsPagination(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	seedUserWithCredits(t, db, repos, "user-1", 1000)

	for i := 0; i < 5; i++ {
		if _, err := repos.Credit.Deduct(ctx, "user-1", 1, models.TxTypeSpend, "spend", ""); err != nil {
			t.Fatalf("Deduct() error = %v", err)
		}
	}

	page1, err := repos.Credit.ListTransactions(ctx, "user-1", 3, 0)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(page1) != 3 {
		t.Fatalf("page 1 length = %d, want 3", len(page1))
	}

	page2, err := repos.Credit.ListTransactions(ctx, "user-1", 3, 3)
	if err != nil {
		t.Fatalf("ListTransactions() offset error = %v", err)
	}
	// 6 entries total (seed + 5 spends), so the second page has 3.
	if len(page2) != 3 {
		t.Fatalf("page 2 length = %d, want 3", len(page2))
	}
	if page1[0].ID == page2[0].ID {
		t.Error("pages should not overlap")
	}
}

func TestCreditRepository_GetTotals(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	seedUserWithCredits(t, db, repos, "user-1", 100)
	seedUserWithCredits(t, db, repos, "user-2", 50)

	if _, err := repos.Credit.Deduct(ctx, "user-1", 30, models.TxTypeSpend, "spend", ""); err != nil {
		t.Fatalf("Deduct() error = %v", err)
	}

	totals, err := repos.Credit.GetTotals(ctx)
	if err != nil {
		t.Fatalf("GetTotals() error = %v", err)
	}
	if totals.TotalBalance != 120 {
		t.Errorf("total balance = %d, want 120", totals.TotalBalance)
	}
	if totals.TotalPurchased != 150 {
		t.Errorf("total purchased = %d, want 150", totals.TotalPurchased)
	}
	if totals.TotalSpent != 30 {
		t.Errorf("total spent = %d, want 30", totals.TotalSpent)
	}
}
