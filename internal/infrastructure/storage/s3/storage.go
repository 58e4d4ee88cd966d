// Package s3 stores case documents and renditions in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

// API is the subset of the S3 client the storage uses.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Prefix             string
	ServerSideEncrypt  bool
	ResilienceExecutor *resilience.Executor
}

type Storage struct {
	client   API
	bucket   string
	prefix   string
	sse      bool
	executor *resilience.Executor
}

// NewClient builds an S3 client. Path-style addressing is needed for
// custom endpoints such as localstack or minio.
func NewClient(cfg aws.Config, usePathStyle bool) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
}

func New(client API, bucket string, opts Options) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	prefix := strings.Trim(strings.TrimSpace(opts.Prefix), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Storage{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		sse:      opts.ServerSideEncrypt,
		executor: opts.ResilienceExecutor,
	}, nil
}

// Save buffers the body so every retry sends a fresh seekable reader.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}
	objectKey := s.prefix + strings.TrimPrefix(key, "/")

	err = s.execute(ctx, "s3.put_object", func(ctx context.Context) error {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectKey),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
		}
		if s.sse {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		}
		if _, err := s.client.PutObject(ctx, input); err != nil {
			return fmt.Errorf("s3 put %s: %w", objectKey, err)
		}
		return nil
	})
	return resilience.WrapTemporary("s3 put object", err, classifyS3Error)
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := s.prefix + strings.TrimPrefix(key, "/")

	var out *s3.GetObjectOutput
	err := s.execute(ctx, "s3.get_object", func(ctx context.Context) error {
		res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return fmt.Errorf("s3 get %s: %w", objectKey, err)
		}
		out = res
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "open object", err)
		}
		return nil, resilience.WrapTemporary("s3 get object", err, classifyS3Error)
	}
	return out.Body, nil
}

func (s *Storage) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.executor == nil {
		return fn(ctx)
	}
	return s.executor.Execute(ctx, operation, fn, classifyS3Error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var status httpStatusCoder
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

func classifyS3Error(err error) resilience.ErrorClassification {
	if isNotFound(err) {
		return resilience.CallerError
	}
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var status httpStatusCoder
	if errors.As(err, &status) {
		return resilience.ClassifyHTTPStatus(status.HTTPStatusCode())
	}
	return resilience.Permanent
}
