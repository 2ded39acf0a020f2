package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guitaripod/pixie/internal/crypto"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

// UserService handles account-level operations outside the auth flows.
type UserService struct {
	repos     *repository.Repositories
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(repos *repository.Repositories, encryptor *crypto.Encryptor, logger *slog.Logger) *UserService {
	return &UserService{repos: repos, encryptor: encryptor, logger: logger}
}

// SetProviderKeys stores the user's own provider API keys, encrypted at
// rest. A nil pointer leaves a key untouched; an empty string clears it.
func (s *UserService) SetProviderKeys(ctx context.Context, userID string, openaiKey, geminiKey *string) error {
	encrypt := func(key *string) (*string, error) {
		if key == nil {
			return nil, nil
		}
		if *key == "" {
			empty := ""
			return &empty, nil
		}
		encrypted, err := s.encryptor.Encrypt(*key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt provider key: %w", err)
		}
		return &encrypted, nil
	}

	openaiEnc, err := encrypt(openaiKey)
	if err != nil {
		return err
	}
	geminiEnc, err := encrypt(geminiKey)
	if err != nil {
		return err
	}
	if openaiEnc == nil && geminiEnc == nil {
		return fmt.Errorf("%w: no keys provided", ErrInvalidRequest)
	}

	if err := s.repos.User.UpdateProviderKeys(ctx, userID, openaiEnc, geminiEnc); err != nil {
		return err
	}
	s.logger.Info("provider keys updated", "user_id", userID)
	return nil
}

// Get returns a user by id, or nil when unknown.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repos.User.GetByID(ctx, id)
}
