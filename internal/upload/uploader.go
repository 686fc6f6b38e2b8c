// Package upload pushes captured screenshots to S3-compatible object
// storage. When no bucket is configured the NoopUploader keeps the agent
// in local-only mode; upload failures are never fatal because the local
// file remains authoritative.
package upload

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pibridge/pibridge/internal/config"
)

// Uploader uploads screenshot files to an archive.
type Uploader interface {
	// Upload stores the file at filePath under the given object name.
	Upload(ctx context.Context, objectName, filePath string) error
}

// S3Uploader uploads screenshots to S3-compatible storage.
type S3Uploader struct {
	client *minio.Client
	bucket string
}

// Upload stores the file under screenshots/{objectName}.
func (u *S3Uploader) Upload(ctx context.Context, objectName, filePath string) error {
	opts := minio.PutObjectOptions{ContentType: "image/png"}
	if _, err := u.client.FPutObject(ctx, u.bucket, objectKey(objectName), filePath, opts); err != nil {
		return fmt.Errorf("upload screenshot: %w", err)
	}
	return nil
}

// NoopUploader is used when archive storage is not configured.
type NoopUploader struct{}

// Upload is a no-op when no archive is configured.
func (u *NoopUploader) Upload(ctx context.Context, objectName, filePath string) error {
	return nil
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func objectKey(objectName string) string {
	return "screenshots/" + objectName
}
