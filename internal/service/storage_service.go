package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/ammar0101/campus-security-system/internal/platform/storage"
	"github.com/google/uuid"
)

const (
	uploadURLExpiry   = 15 * time.Minute
	downloadURLExpiry = time.Hour
	mediaPrefix       = "incidents/"
)

type UploadURL struct {
	UploadURL string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	MediaURI  string    `json:"media_uri"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DownloadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StorageService délivre les URL signées des pièces jointes d'incident.
type StorageService interface {
	GenerateUploadURL(ctx context.Context, fileName string) (*UploadURL, error)
	// GenerateDownloadURL signe une URI s3://bucket/incidents/... produite par GenerateUploadURL.
	GenerateDownloadURL(ctx context.Context, mediaURI string) (*DownloadURL, error)
	Initialize(ctx context.Context) error
}

type storageService struct {
	storage    storage.Storage
	bucketName string
}

func NewStorageService(s storage.Storage, bucketName string) StorageService {
	return &storageService{
		storage:    s,
		bucketName: bucketName,
	}
}

func (s *storageService) Initialize(ctx context.Context) error {
	return s.storage.EnsureBucket(ctx, s.bucketName)
}

func (s *storageService) GenerateUploadURL(ctx context.Context, fileName string) (*UploadURL, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, apperr.Validation("file_name", "file name is required")
	}
	key := fmt.Sprintf("%s%s-%s", mediaPrefix, uuid.NewString(), name)

	// URL valable 15 minutes
	url, err := s.storage.PresignedUploadURL(ctx, s.bucketName, key, uploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}
	return &UploadURL{
		UploadURL: url,
		ObjectKey: key,
		MediaURI:  fmt.Sprintf("s3://%s/%s", s.bucketName, key),
		ExpiresAt: time.Now().UTC().Add(uploadURLExpiry),
	}, nil
}

func (s *storageService) GenerateDownloadURL(ctx context.Context, mediaURI string) (*DownloadURL, error) {
	prefix := "s3://" + s.bucketName + "/"
	key := strings.TrimPrefix(mediaURI, prefix)
	if key == mediaURI || !strings.HasPrefix(key, mediaPrefix) || path.Clean(key) != key {
		return nil, apperr.Validation("uri", "not an incident media URI")
	}

	url, err := s.storage.PresignedDownloadURL(ctx, s.bucketName, key, downloadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate download URL: %w", err)
	}
	return &DownloadURL{URL: url, ExpiresAt: time.Now().UTC().Add(downloadURLExpiry)}, nil
}
