package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements Store using AWS S3.
type S3Store struct {
	client     *s3.Client
	bucketName string
}

var _ Store = (*S3Store)(nil)

func NewS3Store(client *s3.Client, bucketName string) *S3Store {
	return &S3Store{client: client, bucketName: bucketName}
}

func (s *S3Store) Write(ctx context.Context, name string, r io.Reader, size int64) error {
	if !validName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(name),
		Body:        r,
		ContentType: aws.String(ContentType(name)),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	slog.Debug("uploaded object to s3", "bucket", s.bucketName, "key", name)
	return nil
}

func (s *S3Store) Open(ctx context.Context, name string) (*Object, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(name),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	obj := &Object{Body: result.Body, Size: aws.ToInt64(result.ContentLength)}
	if result.LastModified != nil {
		obj.ModTime = *result.LastModified
	}
	return obj, nil
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	slog.Debug("deleted object from s3", "bucket", s.bucketName, "key", name)
	return nil
}

// GetS3BucketFromEnv gets the S3 bucket name from the environment.
func GetS3BucketFromEnv() string {
	bucket := os.Getenv("S3_BUCKET_NAME")
	if bucket == "" {
		bucket = "vidshare-videos"
	}
	return bucket
}
