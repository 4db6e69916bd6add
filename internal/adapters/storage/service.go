// Package storage archives the documents a Phase 2 run was given, in an
// S3-compatible bucket, so an extraction can be audited against its inputs.
package storage

import (
	"context"
	"time"
)

// PresignedURL contains the URL and metadata for a presigned download.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Object is one file to archive.
type Object struct {
	Name    string
	Content []byte
}

// Artifact describes an archived file.
type Artifact struct {
	FileKey   string    `json:"fileKey"`
	SizeBytes int64     `json:"sizeBytes"`
	Modified  time.Time `json:"modified"`
}

// StorageService defines the object storage operations the analysis
// pipeline and HTTP API use.
type StorageService interface {
	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// ArchiveObjects stores each object under folder and returns the keys.
	ArchiveObjects(ctx context.Context, bucket, folder string, objects []Object) ([]string, error)

	// ListArtifacts returns the archived files under folder.
	ListArtifacts(ctx context.Context, bucket, folder string) ([]Artifact, error)

	// GenerateDownloadURL creates a presigned URL for downloading a file.
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*PresignedURL, error)
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	IsMinIOEnabled() bool
}
