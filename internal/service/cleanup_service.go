package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/guitaripod/pixie/internal/repository"
)

// expiredBatchSize bounds one cleanup sweep so a large backlog cannot
// hold the worker for a whole interval.
const expiredBatchSize = 500

// CleanupService removes expired images, stale locks and dead device
// flows. The maintenance worker calls Run on an interval.
type CleanupService struct {
	repos   *repository.Repositories
	storage BlobStore
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(repos *repository.Repositories, storage BlobStore, lockTTL time.Duration, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		repos:   repos,
		storage: storage,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// Run performs one cleanup sweep. Failures on individual items are
// logged and skipped so one bad blob cannot wedge the whole sweep.
func (s *CleanupService) Run(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := s.repos.Image.ListExpired(ctx, now, expiredBatchSize)
	if err != nil {
		return err
	}
	removed := 0
	for _, img := range expired {
		if s.storage.IsEnabled() {
			if err := s.storage.Delete(ctx, img.R2Key); err != nil {
				s.logger.Error("failed to delete expired blob", "key", img.R2Key, "error", err)
				continue
			}
		}
		if err := s.repos.Image.Delete(ctx, img.ID); err != nil {
			s.logger.Error("failed to delete expired image row", "id", img.ID, "error", err)
			continue
		}
		removed++
	}

	staleLocks, err := s.repos.Lock.ReleaseStale(ctx, now.Add(-s.lockTTL))
	if err != nil {
		s.logger.Error("failed to release stale locks", "error", err)
	}

	deadFlows, err := s.repos.DeviceAuth.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("failed to delete expired device flows", "error", err)
	}

	if removed > 0 || staleLocks > 0 || deadFlows > 0 {
		s.logger.Info("cleanup sweep finished",
			"images_removed", removed,
			"stale_locks", staleLocks,
			"device_flows", deadFlows,
		)
	}
	return nil
}
