package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3Store stores objects in Amazon S3 or any S3-compatible endpoint.
type S3Store struct {
	client  *s3.Client
	baseURL string
	logger  zerolog.Logger
}

// S3Config carries the settings needed to build an S3Store.
type S3Config struct {
	Region string
	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// providers (MinIO, Supabase storage gateway). Empty means AWS.
	Endpoint string
	// PublicBaseURL is the externally reachable URL prefix for stored
	// objects, e.g. https://cdn.example.com/documents.
	PublicBaseURL string
}

// NewS3Store builds an S3-backed Store using the default AWS credential
// chain (env vars, shared config, instance role).
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:  logger.With().Str("component", "blobstore.s3").Logger(),
	}, nil
}

// Upload writes the object and returns its key.
func (s *S3Store) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	if int64(len(data)) > MaxObjectSize {
		return "", ErrObjectTooLarge
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", bucket, key, err)
	}

	s.logger.Debug().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("object uploaded")
	return key, nil
}

// Download fetches the object content and metadata.
func (s *S3Store) Download(ctx context.Context, bucket, key string) ([]byte, *ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading s3://%s/%s body: %w", bucket, key, err)
	}

	info := &ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		info.CreatedAt = *out.LastModified
	}
	return data, info, nil
}

// Delete removes the object. S3 treats deleting a missing key as success, so
// unlike the in-memory store this never returns ErrObjectNotFound.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("deleting s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// PublicURL returns the externally reachable URL for a stored object.
func (s *S3Store) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, bucket, key)
}
