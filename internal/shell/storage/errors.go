// Package storage owns the deployment bucket: it provisions it, uploads
// artifacts under a run's artifact directory and removes stale directories.
// This is part of the Imperative Shell - handles I/O with object storage.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrBucketNotFound is returned by HeadBucket when the bucket is absent.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the caller may not use the bucket.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketTaken is returned when the bucket name is owned by another
	// account.
	ErrBucketTaken = errors.New("bucket name already taken")

	// ErrBucketIncompatible is returned when an existing bucket cannot
	// serve the deployment region.
	ErrBucketIncompatible = errors.New("bucket configuration is incompatible")

	// ErrStorageProvision is matched by every StorageProvisionError.
	ErrStorageProvision = errors.New("storage provisioning failed")

	// ErrUpload is matched by every UploadError.
	ErrUpload = errors.New("artifact upload failed")
)

// Error wraps an object storage API failure with the operation and the
// bucket and key involved.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("s3.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StorageProvisionError reports that the deployment bucket could not be
// made ready.
type StorageProvisionError struct {
	Bucket string
	Reason string
	Err    error
}

func (e *StorageProvisionError) Error() string {
	msg := fmt.Sprintf("provision bucket %s: %s", e.Bucket, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageProvisionError) Unwrap() error {
	return e.Err
}

func (e *StorageProvisionError) Is(target error) bool {
	return target == ErrStorageProvision
}

// UploadFailure is one artifact that failed to upload.
type UploadFailure struct {
	Name string
	Key  string
	Err  error
}

// UploadError reports a partial upload. Succeeded and Failed are in input
// order; re-invoking Upload with only the failed blobs is safe.
type UploadError struct {
	Bucket    string
	Prefix    string
	Succeeded []string
	Failed    []UploadFailure
}

func (e *UploadError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s (%v)", f.Name, f.Err))
	}
	return fmt.Sprintf("upload to s3://%s/%s: %d succeeded, %d failed: %s",
		e.Bucket, e.Prefix, len(e.Succeeded), len(e.Failed), strings.Join(parts, "; "))
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}

// FailedNames returns the names of the blobs that failed.
func (e *UploadError) FailedNames() []string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	return names
}
