// Package storage uploads export archives to an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/buzzbuddies/backend/internal/config"
)

// ErrEmptyKey is returned when an object name resolves to an empty key.
var ErrEmptyKey = errors.New("storage: empty object key")

// S3Storage writes objects to a single bucket. Objects are private; Location reports either a
// URL under the configured public base or an s3:// URI.
type S3Storage struct {
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

// NewS3Storage configures an uploader targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &S3Storage{
		uploader: uploader,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Save uploads r under name and returns the object's location.
func (s *S3Storage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := ObjectKey(name)
	if key == "" {
		return "", ErrEmptyKey
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType(key)),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return Location(s.bucket, s.baseURL, key), nil
}

// ObjectKey strips leading slashes and surrounding whitespace from name.
func ObjectKey(name string) string {
	return strings.TrimLeft(strings.TrimSpace(name), "/")
}

// Location renders where key lives for callers that want to report it.
func Location(bucket, baseURL, key string) string {
	if baseURL == "" {
		return fmt.Sprintf("s3://%s/%s", bucket, key)
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), key)
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
