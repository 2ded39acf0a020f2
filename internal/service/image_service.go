package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/crypto"
	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

// ProviderResolver resolves models to providers. *imggen.Registry
// satisfies it; tests substitute fakes.
type ProviderResolver interface {
	ForModel(model string) (imggen.Provider, error)
}

// BlobStore is the storage surface the image pipeline needs.
type BlobStore interface {
	IsEnabled() bool
	PublicURL(key string) string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ImageService runs the generation pipeline and the gallery queries.
type ImageService struct {
	repos      *repository.Repositories
	credits    *CreditService
	providers  ProviderResolver
	storage    BlobStore
	encryptor  *crypto.Encryptor
	selfHosted bool
	lockTTL    time.Duration
	imageTTL   time.Duration
	logger     *slog.Logger
}

// NewImageService creates a new image service.
func NewImageService(cfg *config.Config, repos *repository.Repositories, credits *CreditService, providers ProviderResolver, storage BlobStore, encryptor *crypto.Encryptor, logger *slog.Logger) *ImageService {
	return &ImageService{
		repos:      repos,
		credits:    credits,
		providers:  providers,
		storage:    storage,
		encryptor:  encryptor,
		selfHosted: cfg.IsSelfHosted(),
		lockTTL:    cfg.LockTTL,
		imageTTL:   cfg.ImageTTL,
		logger:     logger,
	}
}

// GeneratedImage is one image in the wire response. Images are always
// returned by URL, never inline.
type GeneratedImage struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageResponse mirrors the OpenAI images response shape.
type ImageResponse struct {
	Created      int64            `json:"created"`
	Data         []GeneratedImage `json:"data"`
	Background   string           `json:"background,omitempty"`
	OutputFormat string           `json:"output_format,omitempty"`
	Quality      string           `json:"quality,omitempty"`
	Size         string           `json:"size,omitempty"`
	Usage        *imggen.Usage    `json:"usage,omitempty"`
}

// Generate runs the full pipeline for a text-to-image request.
func (s *ImageService) Generate(ctx context.Context, user *models.User, req *imggen.Request) (*ImageResponse, error) {
	return s.run(ctx, user, req, nil)
}

// Edit runs the full pipeline for an image edit request.
func (s *ImageService) Edit(ctx context.Context, user *models.User, req *imggen.EditRequest) (*ImageResponse, error) {
	return s.run(ctx, user, &req.Request, req)
}

// run is the shared pipeline: lock, estimate, reserve, call, store,
// charge, record. The lock is released on every exit path.
func (s *ImageService) run(ctx context.Context, user *models.User, req *imggen.Request, edit *imggen.EditRequest) (*ImageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if edit != nil {
		if err := edit.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
		}
	}

	if err := s.repos.Lock.Acquire(ctx, user.ID, s.lockTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.repos.Lock.Release(context.WithoutCancel(ctx), user.ID); err != nil {
			s.logger.Error("failed to release user lock", "user_id", user.ID, "error", err)
		}
	}()

	provider, err := s.providers.ForModel(req.Model)
	if err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = imggen.DefaultModel
	}

	isEdit := edit != nil
	if isEdit && !provider.Features().SupportsEdit {
		return nil, fmt.Errorf("%w: %s", imggen.ErrEditUnsupported, req.Model)
	}

	n := req.N
	if n <= 0 {
		n = 1
	}
	quality := req.Quality
	if quality == "" {
		quality = "auto"
	}
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}

	estimate := imggen.EstimateCredits(quality, size, n, isEdit)
	if err := s.credits.Reserve(ctx, user.ID, estimate); err != nil {
		return nil, err
	}

	if err := s.resolveAPIKey(user, provider.Name(), req); err != nil {
		return nil, err
	}

	start := time.Now()
	var resp *imggen.Response
	if isEdit {
		resp, err = provider.Edit(ctx, edit)
	} else {
		resp, err = provider.Generate(ctx, req)
	}
	elapsed := time.Since(start)

	if err != nil {
		s.recordUsage(ctx, user.ID, req, size, quality, isEdit, edit, nil, nil, 0, 0, elapsed, provider, err)
		return nil, err
	}

	reconciled := estimate
	simplified := provider.Features().SimplifiedCost
	if !simplified && resp.Usage != nil {
		reconciled = s.credits.ReconcileCost(*resp.Usage)
	}
	perImage := reconciled / n
	if perImage < 1 {
		perImage = 1
	}

	now := time.Now().UTC()
	var stored []GeneratedImage
	var keys []string
	for i, img := range resp.Images {
		imageID := uuid.NewString()
		key := BuildKey(user.ID, imageID)

		if err := s.storage.Put(ctx, key, img.Data, "image/png"); err != nil {
			s.logger.Error("failed to store image blob", "key", key, "error", err)
			continue
		}

		record := &models.StoredImage{
			ID:              imageID,
			UserID:          user.ID,
			R2Key:           key,
			Prompt:          req.Prompt,
			Provider:        provider.Name(),
			Model:           req.Model,
			Size:            size,
			Quality:         quality,
			PerImageCredits: perImage,
			CostCents:       s.credits.CostCents(perImage),
			CreatedAt:       now,
			ExpiresAt:       now.Add(s.imageTTL),
		}
		if err := s.repos.Image.Create(ctx, record); err != nil {
			s.logger.Error("failed to persist image metadata", "key", key, "error", err)
			continue
		}

		generated := GeneratedImage{URL: s.storage.PublicURL(key)}
		if i < len(resp.RevisedPrompts) {
			generated.RevisedPrompt = resp.RevisedPrompts[i]
		}
		stored = append(stored, generated)
		keys = append(keys, key)
	}

	charged := 0
	if len(stored) > 0 {
		charged = perImage * len(stored)
		noun := "image"
		if len(stored) != 1 {
			noun = "images"
		}
		description := fmt.Sprintf("Generated %d %s using %s", len(stored), noun, req.Model)
		if _, err := s.credits.Deduct(ctx, user.ID, charged, description, strings.Join(keys, ",")); err != nil {
			// The gate held at reserve time; a failure here means a
			// concurrent admin adjustment. Log it rather than void
			// work already delivered.
			s.logger.Error("failed to deduct credits after generation",
				"user_id", user.ID, "credits", charged, "error", err)
		}
	}

	s.recordUsage(ctx, user.ID, req, size, quality, isEdit, edit, resp.Usage, keys, len(stored), charged, elapsed, provider, nil)

	out := &ImageResponse{
		Created:      now.Unix(),
		Data:         stored,
		OutputFormat: req.OutputFormat,
		Size:         size,
		Usage:        resp.Usage,
	}
	if provider.Name() == "openai" {
		out.Background = req.Background
		out.Quality = quality
	}
	return out, nil
}

// resolveAPIKey decides which provider credential the call will use.
// Official deployments always use the server key. Self-hosted requires a
// request key or a stored (encrypted) user key.
func (s *ImageService) resolveAPIKey(user *models.User, providerName string, req *imggen.Request) error {
	if !s.selfHosted {
		req.APIKey = ""
		return nil
	}
	if req.APIKey != "" {
		return nil
	}

	var encrypted string
	switch providerName {
	case "openai":
		encrypted = user.OpenAIAPIKeyEncrypted
	case "gemini":
		encrypted = user.GeminiAPIKeyEncrypted
	}
	if encrypted == "" || s.encryptor == nil {
		return fmt.Errorf("%w: configure a key for %s or pass one with the request", imggen.ErrMissingAPIKey, providerName)
	}

	key, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt stored provider key: %w", err)
	}
	req.APIKey = key
	return nil
}

func (s *ImageService) recordUsage(ctx context.Context, userID string, req *imggen.Request, size, quality string, isEdit bool, edit *imggen.EditRequest, usage *imggen.Usage, keys []string, imagesStored, charged int, elapsed time.Duration, provider imggen.Provider, callErr error) {
	record := &models.UsageRecord{
		UserID:         userID,
		Provider:       provider.Name(),
		Model:          req.Model,
		RequestType:    models.RequestTypeGeneration,
		Prompt:         req.Prompt,
		Size:           size,
		Quality:        quality,
		R2Keys:         keys,
		ImageCount:     imagesStored,
		CreditsCharged: charged,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		SimplifiedCost: provider.Features().SimplifiedCost,
	}
	if isEdit {
		record.RequestType = models.RequestTypeEdit
		record.InputImagesCount = len(edit.Images)
	}
	if usage != nil {
		record.TextTokens = usage.TextTokens
		record.ImageTokens = usage.ImageTokens
		record.OutputTokens = usage.OutputTokens
		record.TotalTokens = usage.TotalTokens
	}
	if callErr != nil {
		record.Error = callErr.Error()
	}
	if err := s.repos.Usage.Create(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Error("failed to write usage record", "user_id", userID, "error", err)
	}
}

// ImageMetadata is the gallery projection of a stored image.
type ImageMetadata struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	UserID    string    `json:"user_id"`
	Model     string    `json:"model"`
	Size      string    `json:"size"`
	Quality   string    `json:"quality"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *ImageService) toMetadata(img *models.StoredImage) ImageMetadata {
	return ImageMetadata{
		ID:        img.ID,
		URL:       s.storage.PublicURL(img.R2Key),
		Prompt:    img.Prompt,
		UserID:    img.UserID,
		Model:     img.Model,
		Size:      img.Size,
		Quality:   img.Quality,
		CreatedAt: img.CreatedAt,
	}
}

// ListImages returns a page of the public gallery, newest first.
func (s *ImageService) ListImages(ctx context.Context, page, perPage int) ([]ImageMetadata, int, int, int, error) {
	page = ClampPage(page)
	perPage = ClampPerPage(perPage, DefaultGalleryPerPage)

	images, total, err := s.repos.Image.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	out := make([]ImageMetadata, 0, len(images))
	for _, img := range images {
		out = append(out, s.toMetadata(img))
	}
	return out, total, page, perPage, nil
}

// ListUserImages returns a page of one user's images.
func (s *ImageService) ListUserImages(ctx context.Context, userID string, page, perPage int) ([]ImageMetadata, int, int, int, error) {
	page = ClampPage(page)
	perPage = ClampPerPage(perPage, DefaultGalleryPerPage)

	images, total, err := s.repos.Image.ListByUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	out := make([]ImageMetadata, 0, len(images))
	for _, img := range images {
		out = append(out, s.toMetadata(img))
	}
	return out, total, page, perPage, nil
}

// GetImage returns one image's metadata, or nil when unknown.
func (s *ImageService) GetImage(ctx context.Context, id string) (*ImageMetadata, error) {
	img, err := s.repos.Image.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, nil
	}
	meta := s.toMetadata(img)
	return &meta, nil
}
