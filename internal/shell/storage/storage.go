package storage

import "context"

// =============================================================================
// Object Storage Interface
// =============================================================================

// BucketInfo describes an existing bucket.
type BucketInfo struct {
	// Region is empty when the service did not report it.
	Region string
}

// Object is a blob ready to be written.
type Object struct {
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is a listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// DeleteFailure is a key the service refused to delete.
type DeleteFailure struct {
	Key     string
	Code    string
	Message string
}

// ObjectStorage is the object storage service the gateway drives.
type ObjectStorage interface {
	// HeadBucket returns ErrBucketNotFound if the bucket does not exist.
	HeadBucket(ctx context.Context, bucket string) (BucketInfo, error)

	// CreateBucket creates a bucket in region.
	CreateBucket(ctx context.Context, bucket, region string) error

	// PutObject writes an object.
	PutObject(ctx context.Context, bucket, key string, obj Object) error

	// ListObjects returns every object whose key starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// DeleteObjects deletes keys and reports the ones that could not be
	// deleted. The error is reserved for request-level failures.
	DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteFailure, error)
}
