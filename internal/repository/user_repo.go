package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guitaripod/pixie/internal/models"
)

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, provider, provider_id, email, name, api_key, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	isAdmin := 0
	if user.IsAdmin {
		isAdmin = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Provider, user.ProviderID,
		nullableString(user.Email), nullableString(user.Name),
		user.APIKey, isAdmin,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *SQLiteUserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	return r.getOne(ctx, "api_key = ?", apiKey)
}

func (r *SQLiteUserRepository) GetByProviderID(ctx context.Context, provider, providerID string) (*models.User, error) {
	return r.getOne(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

func (r *SQLiteUserRepository) getOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := `
		SELECT id, provider, provider_id, email, name, api_key, is_admin,
		       openai_api_key_encrypted, gemini_api_key_encrypted,
		       created_at, updated_at
		FROM users WHERE ` + where

	var user models.User
	var email, name, openaiKey, geminiKey sql.NullString
	var isAdmin int
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Provider, &user.ProviderID, &email, &name,
		&user.APIKey, &isAdmin, &openaiKey, &geminiKey,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Email = email.String
	user.Name = name.String
	user.IsAdmin = isAdmin != 0
	user.OpenAIAPIKeyEncrypted = openaiKey.String
	user.GeminiAPIKeyEncrypted = geminiKey.String
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	user.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &user, nil
}

func (r *SQLiteUserRepository) UpdateProfile(ctx context.Context, id, email, name string) error {
	query := `UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		nullableString(email), nullableString(name),
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) UpdateProviderKeys(ctx context.Context, id string, openaiEncrypted, geminiEncrypted *string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if openaiEncrypted != nil {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE users SET openai_api_key_encrypted = ?, updated_at = ? WHERE id = ?`,
			nullableString(*openaiEncrypted), now, id,
		); err != nil {
			return fmt.Errorf("failed to update openai key: %w", err)
		}
	}
	if geminiEncrypted != nil {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE users SET gemini_api_key_encrypted = ?, updated_at = ? WHERE id = ?`,
			nullableString(*geminiEncrypted), now, id,
		); err != nil {
			return fmt.Errorf("failed to update gemini key: %w", err)
		}
	}
	return nil
}

func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// nullableString converts empty strings to NULL for optional columns.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
