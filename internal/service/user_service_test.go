package service

import (
	"context"
	"errors"
	"testing"

	"github.com/guitaripod/pixie/internal/crypto"
)

func TestSetProviderKeysEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	user := seedUser(t, repos, "u1", 0)

	key := make([]byte, 32)
	encryptor, err := crypto.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	svc := NewUserService(repos, encryptor, testLogger())

	openai := "sk-live-secret"
	if err := svc.SetProviderKeys(ctx, user.ID, &openai, nil); err != nil {
		t.Fatalf("SetProviderKeys failed: %v", err)
	}

	stored, err := repos.User.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.OpenAIAPIKeyEncrypted == "" || stored.OpenAIAPIKeyEncrypted == openai {
		t.Errorf("key stored in the clear or not at all: %q", stored.OpenAIAPIKeyEncrypted)
	}
	if stored.GeminiAPIKeyEncrypted != "" {
		t.Errorf("untouched gemini key was written: %q", stored.GeminiAPIKeyEncrypted)
	}

	plaintext, err := encryptor.Decrypt(stored.OpenAIAPIKeyEncrypted)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plaintext != openai {
		t.Errorf("round trip mismatch: %q", plaintext)
	}

	// An empty string clears the key.
	empty := ""
	if err := svc.SetProviderKeys(ctx, user.ID, &empty, nil); err != nil {
		t.Fatalf("clearing key failed: %v", err)
	}
	stored, _ = repos.User.GetByID(ctx, user.ID)
	if stored.OpenAIAPIKeyEncrypted != "" {
		t.Errorf("key not cleared: %q", stored.OpenAIAPIKeyEncrypted)
	}
}

func TestSetProviderKeysRequiresAtLeastOne(t *testing.T) {
	repos := setupTestRepos(t)
	user := seedUser(t, repos, "u1", 0)
	encryptor, _ := crypto.NewEncryptor(make([]byte, 32))
	svc := NewUserService(repos, encryptor, testLogger())

	err := svc.SetProviderKeys(context.Background(), user.ID, nil, nil)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
