package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/database/migrations"
	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		DeploymentMode:   config.ModeOfficial,
		BaseURL:          "http://localhost:8080",
		CreditMultiplier: 3.0,
		LockTTL:          60 * time.Second,
		ImageTTL:         7 * 24 * time.Hour,
	}
}

// setupTestDB creates an in-memory SQLite database with migrations applied.
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

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.NewRepositories(setupTestDB(t))
}

// seedUser creates a user with an initialized balance and returns it.
func seedUser(t *testing.T, repos *repository.Repositories, id string, balance int) *models.User {
	t.Helper()
	ctx := context.Background()
	user := &models.User{
		ID:         id,
		Provider:   "github",
		ProviderID: "gh-" + id,
		Email:      id + "@example.com",
		Name:       "Test User",
		APIKey:     "pixie_" + id,
	}
	if err := repos.User.Create(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if err := repos.Credit.Initialize(ctx, user.ID); err != nil {
		t.Fatalf("failed to initialize credits: %v", err)
	}
	if balance > 0 {
		if _, err := repos.Credit.Add(ctx, user.ID, balance, models.TxTypeBonus, "seed", ""); err != nil {
			t.Fatalf("failed to seed balance: %v", err)
		}
	}
	return user
}

// fakeProvider is a scriptable imggen.Provider for pipeline tests.
type fakeProvider struct {
	name     string
	features imggen.Features
	response *imggen.Response
	err      error

	generateCalls int
	editCalls     int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Features() imggen.Features { return p.features }

func (p *fakeProvider) Generate(ctx context.Context, req *imggen.Request) (*imggen.Response, error) {
	p.generateCalls++
	return p.response, p.err
}

func (p *fakeProvider) Edit(ctx context.Context, req *imggen.EditRequest) (*imggen.Response, error) {
	p.editCalls++
	return p.response, p.err
}

// fakeResolver resolves every model to the same provider.
type fakeResolver struct {
	provider imggen.Provider
}

func (r *fakeResolver) ForModel(model string) (imggen.Provider, error) {
	return r.provider, nil
}

// fakeStorage is an in-memory BlobStore.
type fakeStorage struct {
	blobs   map[string][]byte
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (s *fakeStorage) IsEnabled() bool { return true }

func (s *fakeStorage) PublicURL(key string) string { return "http://localhost:8080/r2/" + key }

func (s *fakeStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.blobs[key] = data
	return nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	delete(s.blobs, key)
	s.deleted = append(s.deleted, key)
	return nil
}
