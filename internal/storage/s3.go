package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"poimap/internal/keys"
)

// ErrNotFound is returned when an icon is not cached yet.
var ErrNotFound = errors.New("object not found")

// S3Config holds the MinIO/S3 connection settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// IconStore caches downloaded icon bytes in an S3-compatible bucket, keyed by
// the icon URL.
type IconStore struct {
	client *minio.Client
	bucket string
}

// NewIconStore validates cfg and creates a MinIO client.
func NewIconStore(cfg S3Config) (*IconStore, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("missing one or more required settings: endpoint, access key, secret key, bucket")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	log.Println("Successfully connected to MinIO endpoint:", cfg.Endpoint)
	return &IconStore{client: minioClient, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the icon bucket if it does not exist yet.
func (s *IconStore) EnsureBucket(ctx context.Context, location string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	log.Printf("Created icon bucket '%s'", s.bucket)
	return nil
}

// Get returns the cached bytes for iconURL, or ErrNotFound.
func (s *IconStore) Get(ctx context.Context, iconURL string) ([]byte, error) {
	objectKey, err := keys.Icon(iconURL)
	if err != nil {
		return nil, err
	}

	object, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cached icon %s: %w", objectKey, err)
	}
	return data, nil
}

// Put stores data for iconURL, replacing any existing object.
func (s *IconStore) Put(ctx context.Context, iconURL string, data []byte, contentType string) error {
	objectKey, err := keys.Icon(iconURL)
	if err != nil {
		return err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(
		ctx,
		s.bucket,
		objectKey,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("failed to store object in S3: %w", err)
	}

	log.Printf("Cached icon %s in bucket '%s' with key '%s'", iconURL, s.bucket, objectKey)
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
