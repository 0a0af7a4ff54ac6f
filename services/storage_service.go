package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
)

// SourceStore interface for handler source text storage
type SourceStore interface {
	SaveSource(ctx context.Context, key string, source string) error
	GetSource(ctx context.Context, key string) (string, error)
	DeleteSource(ctx context.Context, key string) error
}

// LocalSourceStore implements SourceStore using local filesystem
type LocalSourceStore struct {
	basePath string
}

func NewLocalSourceStore(basePath string) (*LocalSourceStore, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &LocalSourceStore{basePath: basePath}, nil
}

func (s *LocalSourceStore) SaveSource(ctx context.Context, key string, source string) error {
	fullPath := filepath.Join(s.basePath, key)

	// Create directory if needed
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(fullPath, []byte(source), 0644)
}

func (s *LocalSourceStore) GetSource(ctx context.Context, key string) (string, error) {
	fullPath := filepath.Join(s.basePath, key)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *LocalSourceStore) DeleteSource(ctx context.Context, key string) error {
	fullPath := filepath.Join(s.basePath, key)
	return os.Remove(fullPath)
}

// S3SourceStore implements SourceStore using AWS S3
type S3SourceStore struct {
	client *s3.Client
	bucket string
}

func NewS3SourceStore(bucket string) (*S3SourceStore, error) {
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, err
	}

	// Instrument AWS SDK v2 with X-Ray for automatic S3 operation tracing
	awsv2.AWSV2Instrumentor(&cfg.APIOptions)

	client := s3.NewFromConfig(cfg)
	return &S3SourceStore{client: client, bucket: bucket}, nil
}

func (s *S3SourceStore) SaveSource(ctx context.Context, key string, source string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(source),
		ContentType: aws.String("text/plain"),
	})
	return err
}

func (s *S3SourceStore) GetSource(ctx context.Context, key string) (string, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *S3SourceStore) DeleteSource(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// NewSourceStore creates appropriate source store based on environment
func NewSourceStore(storageType, pathOrBucket string) (SourceStore, error) {
	switch storageType {
	case "s3":
		return NewS3SourceStore(pathOrBucket)
	case "local":
		return NewLocalSourceStore(pathOrBucket)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

// GenerateSourceKey generates a storage key for a handler's source text.
// URIs are human-chosen, so anything outside a safe character set is
// flattened before the key is used as a path or object name.
func GenerateSourceKey(uri string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, uri)
	return fmt.Sprintf("handlers/%s.js", safe)
}
