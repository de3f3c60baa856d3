package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the S3 compatible backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
	MaxBytes  int64
}

// Validate checks that the required connection settings are present.
func (c S3Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("s3: endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3: bucket is required")
	}
	return nil
}

// S3 stores content as objects named by CID.
type S3 struct {
	client   *minio.Client
	bucket   string
	prefix   string
	maxBytes int64
}

// NewS3 builds a minio-go client for cfg.
func NewS3(cfg S3Config) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &S3{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.TrimLeft(cfg.Prefix, "/"),
		maxBytes: cfg.MaxBytes,
	}, nil
}

// Put uploads data under <prefix><cid>. Re-uploading identical content
// overwrites an identical object.
func (s *S3) Put(ctx context.Context, data []byte) (Reference, error) {
	if err := checkSize(data, s.maxBytes); err != nil {
		return "", err
	}
	id, err := ContentID(data)
	if err != nil {
		return "", err
	}
	key := s.prefix + id.String()
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
	})
	if err != nil {
		return "", classifyS3Error(err)
	}
	return Reference("s3://" + s.bucket + "/" + key), nil
}

// Check confirms the bucket exists and is reachable.
func (s *S3) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classifyS3Error(err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %q does not exist", ErrRejected, s.bucket)
	}
	return nil
}

func classifyS3Error(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "EntityTooLarge", "QuotaExceeded", "AccessDenied", "InvalidBucketName", "NoSuchBucket", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: s3: %s: %w", ErrRejected, resp.Code, err)
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: s3: http %d: %w", ErrRejected, resp.StatusCode, err)
	}
	return fmt.Errorf("%w: s3: %w", ErrUnavailable, err)
}
