// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/guitaripod/pixie/internal/config"
)

// ErrBlobNotFound is returned when a key has no object behind it.
var ErrBlobNotFound = errors.New("blob not found")

// StorageService persists image bytes in R2/S3-compatible object storage.
type StorageService struct {
	client  *s3.Client
	bucket  string
	baseURL string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled() {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			baseURL: cfg.BaseURL,
			enabled: false,
			logger:  logger,
		}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint and path style for S3-compatible storage (R2, Tigris, MinIO).
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		client:  client,
		bucket:  cfg.StorageBucket,
		baseURL: cfg.BaseURL,
		enabled: true,
		logger:  logger,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// BuildKey returns the canonical blob key for a user's image.
func BuildKey(userID, imageID string) string {
	return userID + "/" + imageID + ".png"
}

// PublicURL returns the URL at which a stored blob is served.
func (s *StorageService) PublicURL(key string) string {
	return s.baseURL + "/r2/" + key
}

// Put stores image bytes under the given key.
func (s *StorageService) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if !s.enabled {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	return nil
}

// Get fetches the bytes behind a key. Returns ErrBlobNotFound for keys
// without an object.
func (s *StorageService) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.enabled {
		return nil, fmt.Errorf("storage is not configured")
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to fetch blob %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes the object behind a key. Missing objects are not an error.
func (s *StorageService) Delete(ctx context.Context, key string) error {
	if !s.enabled {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}
