package service

import (
	"fmt"
	"log/slog"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/crypto"
	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/repository"
)

// Services holds every service instance, wired once at startup.
type Services struct {
	Storage  *StorageService
	Credit   *CreditService
	Image    *ImageService
	Auth     *AuthService
	User     *UserService
	Purchase *PurchaseService
	Usage    *UsageService
	Admin    *AdminService
	Cleanup  *CleanupService
}

// NewServices constructs the full service graph.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	storage, err := NewStorageService(cfg, logger.With("service", "storage"))
	if err != nil {
		return nil, err
	}

	registry := imggen.NewRegistry(cfg, logger.With("service", "imggen"))
	credit := NewCreditService(repos, cfg, logger.With("service", "credit"))
	image := NewImageService(cfg, repos, credit, registry, storage, encryptor, logger.With("service", "image"))
	auth := NewAuthService(cfg, repos, logger.With("service", "auth"))
	user := NewUserService(repos, encryptor, logger.With("service", "user"))
	purchase := NewPurchaseService(cfg, repos, credit, logger.With("service", "purchase"))
	usage := NewUsageService(repos, logger.With("service", "usage"))
	admin := NewAdminService(repos, credit, logger.With("service", "admin"))
	cleanup := NewCleanupService(repos, storage, cfg.LockTTL, logger.With("service", "cleanup"))

	logger.Info("services initialized",
		"mode", cfg.DeploymentMode,
		"storage", storage.IsEnabled(),
		"stripe", cfg.StripeEnabled(),
		"models", registry.Models(),
	)

	return &Services{
		Storage:  storage,
		Credit:   credit,
		Image:    image,
		Auth:     auth,
		User:     user,
		Purchase: purchase,
		Usage:    usage,
		Admin:    admin,
		Cleanup:  cleanup,
	}, nil
}
