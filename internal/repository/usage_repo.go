package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/guitaripod/pixie/internal/models"
)

// SQLiteUsageRepository implements UsageRepository using SQLite.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a new SQLite usage repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

func (r *SQLiteUsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == "" {
		record.ID = ulid.Make().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	simplified := 0
	if record.SimplifiedCost {
		simplified = 1
	}

	query := `
		INSERT INTO usage_records (id, user_id, provider, model, request_type, prompt, image_size, image_quality, r2_keys,
			text_tokens, image_tokens, output_tokens, total_tokens, image_count, credits_charged,
			response_time_ms, simplified_cost, input_images_count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Provider, record.Model, string(record.RequestType),
		record.Prompt, record.Size, record.Quality, strings.Join(record.R2Keys, ","),
		record.TextTokens, record.ImageTokens, record.OutputTokens,
		record.TotalTokens, record.ImageCount, record.CreditsCharged,
		record.ResponseTimeMs, simplified, record.InputImagesCount,
		nullableString(record.Error), record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

func (r *SQLiteUsageRepository) GetUserSummary(ctx context.Context, userID string, start, end time.Time) (*UsageSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(image_count), 0)
		FROM usage_records
		WHERE user_id = ? AND error IS NULL AND created_at >= ? AND created_at < ?
	`
	var s UsageSummary
	err := r.db.QueryRowContext(ctx, query, userID,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
	).Scan(&s.TotalRequests, &s.TotalTokens, &s.TotalImages)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return &s, nil
}

func (r *SQLiteUsageRepository) GetUserDaily(ctx context.Context, userID string, start, end time.Time) ([]DailyUsage, error) {
	query := `
		SELECT DATE(created_at), COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(image_count), 0)
		FROM usage_records
		WHERE user_id = ? AND error IS NULL AND created_at >= ? AND created_at < ?
		GROUP BY DATE(created_at)
		ORDER BY DATE(created_at) DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily usage: %w", err)
	}
	defer rows.Close()

	var days []DailyUsage
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Date, &d.Requests, &d.Tokens, &d.Images); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (r *SQLiteUsageRepository) GetSystemStats(ctx context.Context, start, end time.Time) (*SystemStats, error) {
	query := `
		SELECT COUNT(DISTINCT user_id), COUNT(*),
		       COALESCE(SUM(total_tokens), 0), COALESCE(SUM(image_count), 0),
		       COALESCE(AVG(response_time_ms), 0),
		       COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM usage_records
		WHERE created_at >= ? AND created_at < ?
	`
	var s SystemStats
	var errorCount int
	err := r.db.QueryRowContext(ctx, query,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
	).Scan(&s.UniqueUsers, &s.TotalRequests, &s.TotalTokens, &s.TotalImages,
		&s.AvgResponseTimeMs, &errorCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get system stats: %w", err)
	}
	if s.TotalRequests > 0 {
		s.ErrorRate = float64(errorCount) / float64(s.TotalRequests) * 100
	}
	return &s, nil
}

func (r *SQLiteUsageRepository) GetTopUsers(ctx context.Context, start, end time.Time, limit int) ([]UserTokenUsage, error) {
	query := `
		SELECT user_id, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(image_count), 0)
		FROM usage_records
		WHERE error IS NULL AND created_at >= ? AND created_at < ?
		GROUP BY user_id
		ORDER BY SUM(total_tokens) DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []UserTokenUsage
	for rows.Next() {
		var u UserTokenUsage
		if err := rows.Scan(&u.UserID, &u.Requests, &u.Tokens, &u.Images); err != nil {
			return nil, fmt.Errorf("failed to scan top user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteUsageRepository) TotalImages(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(image_count), 0) FROM usage_records WHERE error IS NULL`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count generated images: %w", err)
	}
	return total, nil
}
