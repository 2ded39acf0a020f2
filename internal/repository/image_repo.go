package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guitaripod/pixie/internal/models"
)

// SQLiteImageRepository implements ImageRepository using SQLite.
type SQLiteImageRepository struct {
	db *sql.DB
}

// NewSQLiteImageRepository creates a new SQLite image repository.
func NewSQLiteImageRepository(db *sql.DB) *SQLiteImageRepository {
	return &SQLiteImageRepository{db: db}
}

const imageColumns = `id, user_id, r2_key, prompt, provider, model, size, quality, per_image_credits, cost_cents, created_at, expires_at`

func (r *SQLiteImageRepository) Create(ctx context.Context, image *models.StoredImage) error {
	query := `
		INSERT INTO stored_images (` + imageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		image.ID, image.UserID, image.R2Key, image.Prompt, image.Provider, image.Model,
		image.Size, image.Quality, image.PerImageCredits, image.CostCents,
		image.CreatedAt.UTC().Format(time.RFC3339), image.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create stored image: %w", err)
	}
	return nil
}

func (r *SQLiteImageRepository) GetByID(ctx context.Context, id string) (*models.StoredImage, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM stored_images WHERE id = ?`, id)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stored image: %w", err)
	}
	return img, nil
}

func (r *SQLiteImageRepository) List(ctx context.Context, limit, offset int) ([]*models.StoredImage, int, error) {
	return r.list(ctx, "", nil, limit, offset)
}

func (r *SQLiteImageRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.StoredImage, int, error) {
	return r.list(ctx, "WHERE user_id = ?", []any{userID}, limit, offset)
}

func (r *SQLiteImageRepository) list(ctx context.Context, where string, args []any, limit, offset int) ([]*models.StoredImage, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stored_images `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count stored images: %w", err)
	}

	query := `SELECT ` + imageColumns + ` FROM stored_images ` + where + `
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stored images: %w", err)
	}
	defer rows.Close()

	var images []*models.StoredImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan stored image: %w", err)
		}
		images = append(images, img)
	}
	return images, total, rows.Err()
}

func (r *SQLiteImageRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.StoredImage, error) {
	query := `SELECT ` + imageColumns + ` FROM stored_images WHERE expires_at < ? LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired images: %w", err)
	}
	defer rows.Close()

	var images []*models.StoredImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *SQLiteImageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM stored_images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete stored image: %w", err)
	}
	return nil
}

func (r *SQLiteImageRepository) TotalCostCents(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM stored_images`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate image costs: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*models.StoredImage, error) {
	var img models.StoredImage
	var createdAt, expiresAt string
	err := row.Scan(
		&img.ID, &img.UserID, &img.R2Key, &img.Prompt, &img.Provider, &img.Model,
		&img.Size, &img.Quality, &img.PerImageCredits, &img.CostCents,
		&createdAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	img.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	img.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	return &img, nil
}
