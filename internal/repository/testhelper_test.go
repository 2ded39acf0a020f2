package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/guitaripod/pixie/internal/database/migrations"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestUser is a helper to insert a test user directly.
func InsertTestUser(t *testing.T, db *sql.DB, id, apiKey string) {
	t.Helper()
	query := `
		INSERT INTO users (id, provider, provider_id, email, name, api_key, created_at, updated_at)
		VALUES (?, 'github', ?, 'test@example.com', 'Test User', ?, datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, id, "gh-"+id, apiKey); err != nil {
		t.Fatalf("failed to insert test user: %v", err)
	}
}

// seedUserWithCredits inserts a user and gives them an initialized balance.
func seedUserWithCredits(t *testing.T, db *sql.DB, repos *Repositories, userID string, balance int) {
	t.Helper()
	ctx := context.Background()
	InsertTestUser(t, db, userID, "pixie_"+userID)
	if err := repos.Credit.Initialize(ctx, userID); err != nil {
		t.Fatalf("failed to initialize credits: %v", err)
	}
	if balance > 0 {
		if _, err := repos.Credit.Add(ctx, userID, balance, "purchase", "seed", ""); err != nil {
			t.Fatalf("failed to seed balance: %v", err)
		}
	}
}
