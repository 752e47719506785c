package s3

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Signer issues short-lived GET links for celebration media. The bot only
// reads from the bucket; uploads happen out of band.
type Signer struct {
	client *minio.Client
	bucket string
}

func NewSigner(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Signer, error) {
	endpoint = strings.TrimSpace(endpoint)
	bucket = strings.TrimSpace(bucket)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("celebration media bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &Signer{client: client, bucket: bucket}, nil
}

// PresignGet signs a GET for one media object. Every asset row carries a
// non-empty object key, so a blank key is a data error, not a miss.
func (s *Signer) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("media object key is empty")
	}
	if s == nil || s.client == nil {
		return "", fmt.Errorf("media signer is not initialized")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return presigned.String(), nil
}
