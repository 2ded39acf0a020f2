package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/guitaripod/pixie/internal/models"
)

// ErrInsufficientCredits is returned when a deduction exceeds the balance.
var ErrInsufficientCredits = errors.New("insufficient credits")

// SQLiteCreditRepository implements CreditRepository using SQLite.
type SQLiteCreditRepository struct {
	db *sql.DB
}

// NewSQLiteCreditRepository creates a new SQLite credit repository.
func NewSQLiteCreditRepository(db *sql.DB) *SQLiteCreditRepository {
	return &SQLiteCreditRepository{db: db}
}

func (r *SQLiteCreditRepository) Initialize(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO user_credits (user_id, balance, lifetime_purchased, lifetime_spent, created_at, updated_at)
		VALUES (?, 0, 0, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, now, now); err != nil {
		return fmt.Errorf("failed to initialize credits: %w", err)
	}
	return nil
}

func (r *SQLiteCreditRepository) GetBalance(ctx context.Context, userID string) (*models.UserCredits, error) {
	query := `
		SELECT user_id, balance, lifetime_purchased, lifetime_spent, created_at, updated_at
		FROM user_credits WHERE user_id = ?
	`
	var c models.UserCredits
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&c.UserID, &c.Balance, &c.LifetimePurchased, &c.LifetimeSpent,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func (r *SQLiteCreditRepository) Add(ctx context.Context, userID string, amount int, txType models.CreditTransactionType, description, referenceID string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("add amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// Purchases and bonuses grow the lifetime counter; refunds and
	// positive admin adjustments only restore the balance.
	lifetimeDelta := 0
	if txType == models.TxTypePurchase || txType == models.TxTypeBonus {
		lifetimeDelta = amount
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_credits
		SET balance = balance + ?, lifetime_purchased = lifetime_purchased + ?, updated_at = ?
		WHERE user_id = ?
	`, amount, lifetimeDelta, now.Format(time.RFC3339), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("no credit account for user %s", userID)
	}

	entry, err := appendJournal(ctx, tx, userID, amount, txType, description, referenceID, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit credit: %w", err)
	}
	return entry, nil
}

func (r *SQLiteCreditRepository) Deduct(ctx context.Context, userID string, amount int, txType models.CreditTransactionType, description, referenceID string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// The balance guard in the WHERE clause is what keeps the balance
	// non-negative under concurrent deductions.
	res, err := tx.ExecContext(ctx, `
		UPDATE user_credits
		SET balance = balance - ?, lifetime_spent = lifetime_spent + ?, updated_at = ?
		WHERE user_id = ? AND balance >= ?
	`, amount, amount, now.Format(time.RFC3339), userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, ErrInsufficientCredits
	}

	entry, err := appendJournal(ctx, tx, userID, -amount, txType, description, referenceID, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}
	return entry, nil
}

// appendJournal writes the journal entry inside the caller's transaction,
// snapshotting balance_after from the freshly updated balance row.
func appendJournal(ctx context.Context, tx *sql.Tx, userID string, amount int, txType models.CreditTransactionType, description, referenceID string, now time.Time) (*models.CreditTransaction, error) {
	var balanceAfter int
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM user_credits WHERE user_id = ?`, userID).Scan(&balanceAfter); err != nil {
		return nil, fmt.Errorf("failed to read balance after update: %w", err)
	}

	entry := &models.CreditTransaction{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Description:  description,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, type, amount, balance_after, description, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, string(entry.Type), entry.Amount, entry.BalanceAfter,
		entry.Description, nullableString(entry.ReferenceID), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to append journal entry: %w", err)
	}
	return entry, nil
}

func (r *SQLiteCreditRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_after, description, reference_id, created_at
		FROM credit_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var entries []*models.CreditTransaction
	for rows.Next() {
		var e models.CreditTransaction
		var txType, createdAt string
		var referenceID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &txType, &e.Amount, &e.BalanceAfter,
			&e.Description, &referenceID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		e.Type = models.CreditTransactionType(txType)
		e.ReferenceID = referenceID.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *SQLiteCreditRepository) GetTotals(ctx context.Context) (*CreditTotals, error) {
	query := `
		SELECT COALESCE(SUM(balance), 0), COALESCE(SUM(lifetime_purchased), 0), COALESCE(SUM(lifetime_spent), 0)
		FROM user_credits
	`
	var t CreditTotals
	if err := r.db.QueryRowContext(ctx, query).Scan(&t.TotalBalance, &t.TotalPurchased, &t.TotalSpent); err != nil {
		return nil, fmt.Errorf("failed to aggregate credits: %w", err)
	}
	return &t, nil
}
