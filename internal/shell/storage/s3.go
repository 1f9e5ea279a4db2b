package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
)

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

var (
	_ S3API         = (*s3.Client)(nil)
	_ ObjectStorage = (*S3Storage)(nil)
)

// S3Storage implements ObjectStorage on Amazon S3.
type S3Storage struct {
	client S3API
	logger *slog.Logger
}

// NewS3Storage creates an S3-backed ObjectStorage.
func NewS3Storage(client S3API, logger *slog.Logger) *S3Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Storage{client: client, logger: logger.With("component", "s3")}
}

// NewS3StorageFromConfig creates an S3-backed ObjectStorage from an AWS config.
func NewS3StorageFromConfig(cfg aws.Config, logger *slog.Logger) *S3Storage {
	return NewS3Storage(s3.NewFromConfig(cfg), logger)
}

// HeadBucket checks that a bucket exists and reports its region.
func (s *S3Storage) HeadBucket(ctx context.Context, bucket string) (BucketInfo, error) {
	out, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return BucketInfo{}, &Error{Op: "HeadBucket", Bucket: bucket, Err: classify(err)}
	}
	return BucketInfo{Region: aws.ToString(out.BucketRegion)}, nil
}

// CreateBucket creates a bucket. A bucket already owned by the caller is
// not an error.
func (s *S3Storage) CreateBucket(ctx context.Context, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return &Error{Op: "CreateBucket", Bucket: bucket, Err: classify(err)}
	}
	s.logger.Info("bucket created", "bucket", bucket, "region", region)
	return nil
}

// PutObject uploads a single object.
func (s *S3Storage) PutObject(ctx context.Context, bucket, key string, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(obj.Body),
		ContentLength: aws.Int64(int64(len(obj.Body))),
		Metadata:      obj.Metadata,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return &Error{Op: "PutObject", Bucket: bucket, Key: key, Err: classify(err)}
	}
	return nil
}

// ListObjects lists every object under prefix, following continuation
// tokens.
func (s *S3Storage) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &Error{Op: "ListObjectsV2", Bucket: bucket, Key: prefix, Err: classify(err)}
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// DeleteObjects deletes keys in batches of 1000.
func (s *S3Storage) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteFailure, error) {
	var failures []DeleteFailure
	for start := 0; start < len(keys); start += maxDeleteBatch {
		batch := keys[start:min(start+maxDeleteBatch, len(keys))]

		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return failures, &Error{Op: "DeleteObjects", Bucket: bucket, Err: classify(err)}
		}
		for _, e := range out.Errors {
			failures = append(failures, DeleteFailure{
				Key:     aws.ToString(e.Key),
				Code:    aws.ToString(e.Code),
				Message: aws.ToString(e.Message),
			})
		}
	}
	return failures, nil
}

// classify maps S3 API error codes onto package sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return errors.Join(ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return errors.Join(ErrBucketNotFound, err)
		case "Forbidden", "AccessDenied":
			return errors.Join(ErrAccessDenied, err)
		case "BucketAlreadyExists":
			return errors.Join(ErrBucketTaken, err)
		}
	}
	return err
}
