package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guitaripod/pixie/internal/models"
)

// SQLiteDeviceAuthRepository implements DeviceAuthRepository using SQLite.
type SQLiteDeviceAuthRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceAuthRepository creates a new SQLite device auth repository.
func NewSQLiteDeviceAuthRepository(db *sql.DB) *SQLiteDeviceAuthRepository {
	return &SQLiteDeviceAuthRepository{db: db}
}

func (r *SQLiteDeviceAuthRepository) Create(ctx context.Context, flow *models.DeviceAuthFlow) error {
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO device_auth_flows (id, device_code, user_code, client_type, provider, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		flow.ID, flow.DeviceCode, flow.UserCode, flow.ClientType, flow.Provider,
		nullableString(flow.UserID),
		flow.ExpiresAt.UTC().Format(time.RFC3339), flow.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create device auth flow: %w", err)
	}
	return nil
}

func (r *SQLiteDeviceAuthRepository) GetByID(ctx context.Context, id string) (*models.DeviceAuthFlow, error) {
	query := `
		SELECT id, device_code, user_code, client_type, provider, user_id, expires_at, created_at
		FROM device_auth_flows WHERE id = ?
	`
	var f models.DeviceAuthFlow
	var userID sql.NullString
	var expiresAt, createdAt string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.DeviceCode, &f.UserCode, &f.ClientType, &f.Provider,
		&userID, &expiresAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device auth flow: %w", err)
	}

	f.UserID = userID.String
	f.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &f, nil
}

func (r *SQLiteDeviceAuthRepository) SetUser(ctx context.Context, id, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE device_auth_flows SET user_id = ? WHERE id = ?`, userID, id); err != nil {
		return fmt.Errorf("failed to complete device auth flow: %w", err)
	}
	return nil
}

func (r *SQLiteDeviceAuthRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM device_auth_flows WHERE expires_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired device auth flows: %w", err)
	}
	return res.RowsAffected()
}
