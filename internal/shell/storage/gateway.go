package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/stackdeploy/internal/core/artifact"
)

// DefaultConcurrency bounds parallel uploads when none is configured.
const DefaultConcurrency = 4

// MetadataDigest is the object metadata key holding the content digest.
const MetadataDigest = "digest"

// =============================================================================
// Gateway Types
// =============================================================================

// BucketRef is a bucket known to be usable for this run.
type BucketRef struct {
	Name    string
	Region  string
	Created bool
}

// Blob is one artifact to upload. Data takes precedence over Path.
type Blob struct {
	Name string
	Path string
	Data []byte
}

// UploadResult describes a fully successful upload.
type UploadResult struct {
	Keys  []string
	Bytes int64
}

// CleanupResult describes a cleanup pass.
type CleanupResult struct {
	// Removed is the number of artifact directories removed.
	Removed int
	// ObjectsDeleted is the number of objects deleted.
	ObjectsDeleted int
	// Kept lists the retained directories, current first.
	Kept []string
	// Failures lists objects that could not be deleted.
	Failures []DeleteFailure
}

// Options configures a Gateway.
type Options struct {
	// Region is the deployment region new buckets are created in and
	// existing buckets must be located in.
	Region string
	// Concurrency bounds parallel uploads.
	Concurrency int
	// DeleteBatchSize is the number of keys per DeleteObjects call.
	// Defaults to the S3 limit of 1000.
	DeleteBatchSize int
	Logger          *slog.Logger
}

// Gateway is the Object Storage Gateway.
type Gateway struct {
	store       ObjectStorage
	region      string
	concurrency int
	deleteBatch int
	logger      *slog.Logger
}

// NewGateway creates a gateway over an ObjectStorage.
func NewGateway(store ObjectStorage, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	deleteBatch := opts.DeleteBatchSize
	if deleteBatch <= 0 || deleteBatch > maxDeleteBatch {
		deleteBatch = maxDeleteBatch
	}
	return &Gateway{
		store:       store,
		region:      opts.Region,
		concurrency: concurrency,
		deleteBatch: deleteBatch,
		logger:      logger.With("component", "storage"),
	}
}

// =============================================================================
// EnsureBucket
// =============================================================================

// EnsureBucket makes sure the named bucket exists in the deployment region.
// An existing compatible bucket is a no-op; a bucket in another region is
// rejected; a missing bucket is created.
func (g *Gateway) EnsureBucket(ctx context.Context, name string) (BucketRef, error) {
	info, err := g.store.HeadBucket(ctx, name)
	switch {
	case err == nil:
		if info.Region != "" && g.region != "" && info.Region != g.region {
			return BucketRef{}, &StorageProvisionError{
				Bucket: name,
				Reason: fmt.Sprintf("bucket is in %s, deployment region is %s", info.Region, g.region),
				Err:    ErrBucketIncompatible,
			}
		}
		g.logger.Debug("bucket exists", "bucket", name, "region", info.Region)
		return BucketRef{Name: name, Region: g.region}, nil

	case errors.Is(err, ErrBucketNotFound):
		// fall through to create

	default:
		return BucketRef{}, &StorageProvisionError{Bucket: name, Reason: "cannot inspect bucket", Err: err}
	}

	if err := g.store.CreateBucket(ctx, name, g.region); err != nil {
		return BucketRef{}, &StorageProvisionError{Bucket: name, Reason: "cannot create bucket", Err: err}
	}
	g.logger.Info("deployment bucket created", "bucket", name, "region", g.region)
	return BucketRef{Name: name, Region: g.region, Created: true}, nil
}

// =============================================================================
// Upload
// =============================================================================

// Upload writes every blob under prefix. Each blob is attempted
// independently, at most Concurrency at a time. If any fail, the returned
// *UploadError lists which blobs succeeded and which failed.
func (g *Gateway) Upload(ctx context.Context, bucket BucketRef, prefix string, blobs []Blob) (UploadResult, error) {
	type outcome struct {
		key   string
		bytes int64
		err   error
	}
	outcomes := make([]outcome, len(blobs))

	// Workers always return nil; failures are collected per slot.
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, blob := range blobs {
		key := artifact.ObjectKey(prefix, blob.Name)
		eg.Go(func() error {
			n, err := g.uploadOne(ctx, bucket.Name, key, blob)
			outcomes[i] = outcome{key: key, bytes: n, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	result := UploadResult{}
	uploadErr := &UploadError{Bucket: bucket.Name, Prefix: prefix}
	for i, o := range outcomes {
		if o.err != nil {
			g.logger.Warn("artifact upload failed", "bucket", bucket.Name, "key", o.key, "error", o.err)
			uploadErr.Failed = append(uploadErr.Failed, UploadFailure{Name: blobs[i].Name, Key: o.key, Err: o.err})
			continue
		}
		uploadErr.Succeeded = append(uploadErr.Succeeded, blobs[i].Name)
		result.Keys = append(result.Keys, o.key)
		result.Bytes += o.bytes
	}
	if len(uploadErr.Failed) > 0 {
		return result, uploadErr
	}

	g.logger.Info("artifacts uploaded", "bucket", bucket.Name, "prefix", prefix, "count", len(blobs), "bytes", result.Bytes)
	return result, nil
}

func (g *Gateway) uploadOne(ctx context.Context, bucket, key string, blob Blob) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data := blob.Data
	if data == nil {
		var err error
		data, err = os.ReadFile(blob.Path)
		if err != nil {
			return 0, fmt.Errorf("read artifact: %w", err)
		}
	}

	obj := Object{
		Body:        data,
		ContentType: mimetype.Detect(data).String(),
		Metadata:    map[string]string{MetadataDigest: digest.FromBytes(data).String()},
	}
	if err := g.store.PutObject(ctx, bucket, key, obj); err != nil {
		return 0, err
	}
	g.logger.Debug("artifact uploaded", "key", key, "bytes", len(data), "content_type", obj.ContentType)
	return int64(len(data)), nil
}

// =============================================================================
// Cleanup
// =============================================================================

// Cleanup removes artifact directories that are neither currentPrefix nor
// among the newest policy.KeepPrevious directories before it. Siblings of
// currentPrefix are the candidates. Object deletion failures are reported
// in the result, not as an error; the error is for listing failures only.
func (g *Gateway) Cleanup(ctx context.Context, bucket BucketRef, currentPrefix string, policy artifact.RetentionPolicy) (CleanupResult, error) {
	currentPrefix = strings.TrimSuffix(currentPrefix, "/")
	deploymentID := path.Dir(currentPrefix)

	objects, err := g.store.ListObjects(ctx, bucket.Name, deploymentID+"/")
	if err != nil {
		return CleanupResult{}, err
	}

	byDir := map[string][]string{}
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, deploymentID+"/")
		name, _, nested := strings.Cut(rest, "/")
		if !nested {
			continue
		}
		dir := deploymentID + "/" + name
		byDir[dir] = append(byDir[dir], obj.Key)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)

	plan := artifact.PlanCleanup(deploymentID, currentPrefix, dirs, policy)
	result := CleanupResult{Kept: plan.Keep}
	if len(plan.Remove) == 0 {
		g.logger.Debug("no stale artifact directories", "bucket", bucket.Name, "kept", len(plan.Keep))
		return result, nil
	}

	var keys []string
	keyDir := map[string]string{}
	for _, dir := range plan.Remove {
		for _, key := range byDir[dir] {
			keys = append(keys, key)
			keyDir[key] = dir
		}
	}
	failures := g.deleteKeys(ctx, bucket.Name, keys)

	failedDirs := map[string]bool{}
	for _, f := range failures {
		failedDirs[keyDir[f.Key]] = true
	}
	for _, dir := range plan.Remove {
		if !failedDirs[dir] {
			result.Removed++
		}
	}
	result.ObjectsDeleted = len(keys) - len(failures)
	result.Failures = failures

	if len(failures) > 0 {
		g.logger.Warn("some stale artifacts were not deleted", "bucket", bucket.Name, "failed", len(failures))
	}
	g.logger.Info("stale artifacts removed", "bucket", bucket.Name, "directories", result.Removed, "objects", result.ObjectsDeleted)
	return result, nil
}

// deleteKeys deletes keys batch by batch. A failed request stops the pass:
// the keys of that batch not already reported, and of every later batch,
// are returned as failures.
func (g *Gateway) deleteKeys(ctx context.Context, bucket string, keys []string) []DeleteFailure {
	var failures []DeleteFailure
	for start := 0; start < len(keys); start += g.deleteBatch {
		batch := keys[start:min(start+g.deleteBatch, len(keys))]
		batchFailures, err := g.store.DeleteObjects(ctx, bucket, batch)
		failures = append(failures, batchFailures...)
		if err == nil {
			continue
		}

		g.logger.Warn("stale artifact deletion failed", "bucket", bucket, "remaining", len(keys)-start, "error", err)
		reported := make(map[string]bool, len(batchFailures))
		for _, f := range batchFailures {
			reported[f.Key] = true
		}
		for _, key := range keys[start:] {
			if !reported[key] {
				failures = append(failures, DeleteFailure{Key: key, Message: err.Error()})
			}
		}
		break
	}
	return failures
}
