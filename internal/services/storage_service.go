package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/classable/classable/pkg/errors"
)

// StorageConfig holds S3-compatible object store settings.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// URLExpiry bounds the lifetime of presigned URLs.
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

// ErrStorageDisabled is returned when no object store is configured.
var ErrStorageDisabled = apperrors.New("STORAGE_DISABLED", "File storage is not enabled on this deployment", 501)

const defaultURLExpiry = 15 * time.Minute

// StorageService hands out presigned URLs for class material uploads and
// downloads. The server never proxies file bytes.
type StorageService struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewStorageService(cfg StorageConfig) (*StorageService, error) {
	if cfg.Endpoint == "" {
		return &StorageService{}, nil
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage service: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage service: init client: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}

	return &StorageService{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

// Enabled reports whether an object store is configured.
func (s *StorageService) Enabled() bool { return s.client != nil }

// EnsureBucket creates the configured bucket if it does not exist. Called
// once at startup.
func (s *StorageService) EnsureBucket(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage service: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage service: create bucket: %w", err)
	}
	return nil
}

// UploadTarget is a presigned PUT destination for one object.
type UploadTarget struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignUpload returns a presigned PUT URL for a class material. The object
// key namespaces uploads by class so roster checks can gate downloads.
func (s *StorageService) PresignUpload(ctx context.Context, classID, filename string) (*UploadTarget, error) {
	ctx = ensureContext(ctx)

	if !s.Enabled() {
		return nil, ErrStorageDisabled
	}

	base := sanitizeFilename(filename)
	if base == "" {
		return nil, apperrors.NewBadRequest("filename is required")
	}

	key := fmt.Sprintf("classes/%s/%s-%s", classID, uuid.NewString(), base)
	signed, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("storage service: presign upload: %w", err)
	}

	return &UploadTarget{
		URL:       signed.String(),
		ObjectKey: key,
		ExpiresAt: time.Now().Add(s.expiry),
	}, nil
}

// PresignDownload returns a presigned GET URL for an existing object.
func (s *StorageService) PresignDownload(ctx context.Context, objectKey string) (string, error) {
	ctx = ensureContext(ctx)

	if !s.Enabled() {
		return "", ErrStorageDisabled
	}

	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return "", apperrors.NewBadRequest("object key is required")
	}

	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectKey)))

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.expiry, params)
	if err != nil {
		return "", fmt.Errorf("storage service: presign download: %w", err)
	}
	return signed.String(), nil
}

// Remove deletes an object. Used when a teacher withdraws material.
func (s *StorageService) Remove(ctx context.Context, objectKey string) error {
	ctx = ensureContext(ctx)

	if !s.Enabled() {
		return ErrStorageDisabled
	}
	err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("storage service: remove object: %w", err)
	}
	return nil
}

// sanitizeFilename strips path components and characters that complicate
// object keys.
func sanitizeFilename(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
