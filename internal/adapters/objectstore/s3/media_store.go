package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/vncsmyrnk/awardpoll/internal/config"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type MediaStore struct {
	client s3iface.S3API
	bucket string
}

// NewMediaStore connects to the bucket holding nominee media. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewMediaStore(cfg config.S3) (ports.MediaStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is not configured")
	}
	awsCfg := aws.Config{
		Region:     aws.String(cfg.Region),
		MaxRetries: aws.Int(2),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            awsCfg,
		SharedConfigState: session.SharedConfigDisable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return &MediaStore{client: awss3.New(sess), bucket: cfg.Bucket}, nil
}

// PresignGet returns a time-limited download URL for key after checking the
// object exists.
func (s *MediaStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == http.StatusNotFound {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("failed to stat media object: %w", err)
	}

	req, _ := s.client.GetObjectRequest(&awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign media URL: %w", err)
	}
	return url, nil
}
