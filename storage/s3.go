package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"schoolhub_go/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveStore uploads audit archives to S3.
type ArchiveStore struct {
	client *s3.Client
	bucket string
}

// NewArchiveStore creates a store bound to the configured archive bucket.
func NewArchiveStore() (*ArchiveStore, error) {
	cfg, err := awscfg.LoadDefaultConfig(context.Background(),
		awscfg.WithRegion(config.AppConfig.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %v", err)
	}

	return &ArchiveStore{
		client: s3.NewFromConfig(cfg),
		bucket: config.AppConfig.S3BucketName,
	}, nil
}

// Put uploads one archive object.
func (s *ArchiveStore) Put(ctx context.Context, key string, body *bytes.Buffer) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %v", key, err)
	}
	return nil
}
