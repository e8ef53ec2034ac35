package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// S3 stores one object per key. Update uses conditional writes keyed on the
// object ETag.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Cache = (*S3)(nil)

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}, nil
}

func (s *S3) key(key string) *string {
	return aws.String(s.prefix + key)
}

func (s *S3) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	data, _, exists, err := s.read(ctx, key)
	return data, exists && len(data) > 0, err
}

func (s *S3) read(ctx context.Context, key string) ([]byte, string, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(key),
	})
	if isNotFound(err) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("s3 get failed for %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", false, fmt.Errorf("s3 read failed for %s: %w", key, err)
	}
	return data, aws.ToString(out.ETag), true, nil
}

func (s *S3) Save(ctx context.Context, key string, value []byte) error {
	return s.put(ctx, key, value, nil, nil)
}

func (s *S3) put(ctx context.Context, key string, value []byte, ifMatch, ifNoneMatch *string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.key(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
		IfMatch:     ifMatch,
		IfNoneMatch: ifNoneMatch,
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

func (s *S3) Contains(ctx context.Context, key string) (bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("s3 head failed for %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength) > 0, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", key, err)
	}
	return nil
}

func (s *S3) Update(ctx context.Context, key string, fn UpdateFunc) error {
	for range maxUpdateAttempts {
		current, etag, exists, err := s.read(ctx, key)
		if err != nil {
			return err
		}

		next, write, err := apply(fn, current, exists && len(current) > 0)
		if err != nil || !write {
			return err
		}

		// S3 has no conditional delete on general purpose buckets; an empty
		// value marks the entry as gone and keeps the swap atomic.
		if next == nil {
			next = []byte{}
		}

		if exists {
			err = s.put(ctx, key, next, aws.String(etag), nil)
		} else {
			err = s.put(ctx, key, next, nil, aws.String("*"))
		}
		if isConditionFailure(err) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *S3) Close() error {
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

func isConditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	default:
		return false
	}
}
