package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/spec-kit/civic-issue-service/internal/config"
)

var allowedExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// AllowedExtensions returns the photo extension allow-list.
func AllowedExtensions() []string {
	return []string{"jpg", "jpeg", "png", "gif", "webp"}
}

// ValidateFilename checks the upload filename against the extension
// allow-list and returns the normalized extension and content type.
func ValidateFilename(filename string) (ext, contentType string, ok bool) {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return "", "", false
	}
	ext = strings.ToLower(filename[idx+1:])
	contentType, ok = allowedExtensions[ext]
	return ext, contentType, ok
}

// ObjectKey derives the stored object name from the uploading user and time.
func ObjectKey(userID string, uploadedAt time.Time, ext string) string {
	return fmt.Sprintf("%s_%d.%s", userID, uploadedAt.Unix(), ext)
}

// PhotoStore keeps issue photos in an S3-compatible bucket.
type PhotoStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

// NewPhotoStore builds a MinIO-backed store.
func NewPhotoStore(cfg config.StorageConfig) (*PhotoStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &PhotoStore{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the photo bucket when absent.
func (s *PhotoStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

// Save stores the photo bytes under the given object key and returns the
// public path the asset is served from.
func (s *PhotoStore) Save(ctx context.Context, key, contentType string, reader io.Reader, size int64) (string, error) {
	options := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, key, reader, size, options); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.publicPath(key), nil
}

// Remove deletes the object behind a previously returned photo path.
func (s *PhotoStore) Remove(ctx context.Context, photoPath string) error {
	key := path.Base(photoPath)
	if key == "" || key == "." || key == "/" {
		return fmt.Errorf("invalid photo path %q", photoPath)
	}
	return s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{})
}

func (s *PhotoStore) publicPath(key string) string {
	base := strings.TrimSuffix(s.cfg.Endpoint, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		scheme := "http"
		if s.cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + base
	}
	return fmt.Sprintf("%s/%s/%s", base, s.cfg.Bucket, key)
}
