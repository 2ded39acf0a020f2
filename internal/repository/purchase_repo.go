package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guitaripod/pixie/internal/models"
)

// SQLitePurchaseRepository implements PurchaseRepository using SQLite.
type SQLitePurchaseRepository struct {
	db *sql.DB
}

// NewSQLitePurchaseRepository creates a new SQLite purchase repository.
func NewSQLitePurchaseRepository(db *sql.DB) *SQLitePurchaseRepository {
	return &SQLitePurchaseRepository{db: db}
}

func (r *SQLitePurchaseRepository) Create(ctx context.Context, purchase *models.CreditPurchase) error {
	now := time.Now().UTC()
	purchase.CreatedAt = now
	if purchase.Status == "" {
		purchase.Status = models.PurchaseStatusPending
	}

	query := `
		INSERT INTO credit_purchases (id, user_id, pack_id, credits, amount_usd_cents, payment_provider, payment_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		purchase.ID, purchase.UserID, purchase.PackID, purchase.Credits,
		purchase.AmountUSDCents, purchase.PaymentProvider, purchase.PaymentID,
		string(purchase.Status), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

func (r *SQLitePurchaseRepository) GetByID(ctx context.Context, id string) (*models.CreditPurchase, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *SQLitePurchaseRepository) GetByProviderPaymentID(ctx context.Context, provider, paymentID string) (*models.CreditPurchase, error) {
	return r.getOne(ctx, "payment_provider = ? AND payment_id = ?", provider, paymentID)
}

func (r *SQLitePurchaseRepository) getOne(ctx context.Context, where string, args ...any) (*models.CreditPurchase, error) {
	query := `
		SELECT id, user_id, pack_id, credits, amount_usd_cents, payment_provider, payment_id, status, created_at, completed_at
		FROM credit_purchases WHERE ` + where

	var p models.CreditPurchase
	var status, createdAt string
	var completedAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.UserID, &p.PackID, &p.Credits, &p.AmountUSDCents,
		&p.PaymentProvider, &p.PaymentID, &status, &createdAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	p.Status = models.PurchaseStatus(status)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		p.CompletedAt = &t
	}
	return &p, nil
}

func (r *SQLitePurchaseRepository) SetPaymentID(ctx context.Context, id, paymentID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE credit_purchases SET payment_id = ? WHERE id = ?`, paymentID, id)
	if err != nil {
		return fmt.Errorf("failed to set payment id: %w", err)
	}
	return nil
}

func (r *SQLitePurchaseRepository) Complete(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	// The status guard makes duplicate webhook deliveries a no-op.
	res, err := r.db.ExecContext(ctx, `
		UPDATE credit_purchases SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(models.PurchaseStatusCompleted), completedAt.UTC().Format(time.RFC3339),
		id, string(models.PurchaseStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to complete purchase: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLitePurchaseRepository) Fail(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credit_purchases SET status = ? WHERE id = ? AND status = ?
	`, string(models.PurchaseStatusFailed), id, string(models.PurchaseStatusPending))
	if err != nil {
		return fmt.Errorf("failed to mark purchase failed: %w", err)
	}
	return nil
}

func (r *SQLitePurchaseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credit_purchases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	return nil
}

func (r *SQLitePurchaseRepository) TotalRevenueCents(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_usd_cents), 0) FROM credit_purchases WHERE status = ?
	`, string(models.PurchaseStatusCompleted)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	return total, nil
}
