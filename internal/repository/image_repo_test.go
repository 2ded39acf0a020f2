package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/guitaripod/pixie/internal/models"
)

func insertTestImage(t *testing.T, repos *Repositories, userID string, createdAt, expiresAt time.Time) *models.StoredImage {
	t.Helper()
	id := uuid.NewString()
	img := &models.StoredImage{
		ID:              id,
		UserID:          userID,
		R2Key:           fmt.Sprintf("%s/%s.png", userID, id),
		Prompt:          "a capful of stars",
		Model:           "gpt-image-1",
		Size:            "1024x1024",
		Quality:         "low",
		PerImageCredits: 6,
		CostCents:       2,
		CreatedAt:       createdAt,
		ExpiresAt:       expiresAt,
	}
	if err := repos.Image.Create(context.Background(), img); err != nil {
		t.Fatalf("failed to insert test image: %v", err)
	}
	return img
}

func TestImageRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	InsertTestUser(t, db, "user-1", "pixie_a")
	InsertTestUser(t, db, "user-2", "pixie_b")

	now := time.Now().UTC()
	expires := now.Add(7 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		insertTestImage(t, repos, "user-1", now.Add(time.Duration(i)*time.Second), expires)
	}
	insertTestImage(t, repos, "user-2", now, expires)

	images, total, err := repos.Image.ListByUser(ctx, "user-1", 2, 0)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(images) != 2 {
		t.Errorf("page length = %d, want 2", len(images))
	}
	// Newest first.
	if len(images) == 2 && images[0].CreatedAt.Before(images[1].CreatedAt) {
		t.Error("images should be ordered newest first")
	}

	all, total, err := repos.Image.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Errorf("global list = %d/%d, want 4/4", len(all), total)
	}
}

func TestImageRepository_ListExpired(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := NewRepositories(db)
	InsertTestUser(t, db, "user-1", "pixie_a")

	now := time.Now().UTC()
	expired := insertTestImage(t, repos, "user-1", now.Add(-8*24*time.Hour), now.Add(-24*time.Hour))
	insertTestImage(t, repos, "user-1", now, now.Add(7*24*time.Hour))

	got, err := repos.Image.ListExpired(ctx, now, 100)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Errorf("ListExpired() = %d images, want only the expired one", len(got))
	}

	if err := repos.Image.Delete(ctx, expired.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	img, err := repos.Image.GetByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if img != nil {
		t.Error("deleted image should be gone")
	}
}
