// Package objectstore uploads columnar artifacts to S3-compatible object
// storage.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/archivelake/lakemigrate/internal/config"
)

// Uploader stores one object. Implementations own their retry policy.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
}

// S3Uploader uploads via the AWS SDK. A custom endpoint with path-style
// addressing covers the on-prem S3-compatible deployments the archive
// sources typically live next to.
type S3Uploader struct {
	client *s3.Client
}

// NewS3Uploader builds an uploader from the storage configuration.
func NewS3Uploader(cfg *config.StorageConfig) (*S3Uploader, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("storage credentials are required")
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3Uploader{client: s3.New(opts)}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Noop discards uploads. Used by dry runs.
type Noop struct{}

func (Noop) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

var _ Uploader = (*S3Uploader)(nil)
var _ Uploader = Noop{}
