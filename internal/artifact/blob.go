// Package artifact stores build artifact blobs and enforces retention.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore is the interface for artifact blob storage.
type BlobStore interface {
	// Put uploads data under the given key and returns the number of bytes written.
	Put(ctx context.Context, key string, data []byte) (int64, error)
	// Get retrieves the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the blob stored under key.
	Delete(ctx context.Context, key string) error
}

// S3Store writes artifact blobs to an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3 blob store. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Store(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3opts...)
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads data to S3 under the given key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (int64, error) {
	contentType := "application/octet-stream"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("s3 put object: %w", err)
	}
	return int64(len(data)), nil
}

// Get downloads the blob stored under key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read object body: %w", err)
	}
	return data, nil
}

// Delete removes the blob stored under key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}
