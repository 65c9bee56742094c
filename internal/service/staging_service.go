package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"

	cfg "postpilot/configs"
)

// StagingService holds media payloads between scheduling time and publish
// time. Each staged object is owned by exactly one scheduled post and is
// deleted by whichever path resolves that post.
type StagingService interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
	PublicURL(ref string) string
}

type r2Staging struct {
	client *s3.Client
	bucket string
	public string
}

func NewStagingService(c cfg.Config) (StagingService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.R2.AccessKey, c.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure R2 client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2.AccountID))
	})

	return &r2Staging{client: client, bucket: c.R2.BucketName, public: c.R2.PublicBaseURL}, nil
}

func (s *r2Staging) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Error(err.Error())
		return "", err
	}

	return key, nil
}

func (s *r2Staging) Get(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Delete removes a staged object. Deleting a missing key succeeds, so a
// second delete of the same ref is a no-op.
func (s *r2Staging) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}

func (s *r2Staging) PublicURL(ref string) string {
	return fmt.Sprintf("%s/%s", s.public, ref)
}
