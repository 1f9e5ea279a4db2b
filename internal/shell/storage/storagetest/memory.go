// Package storagetest provides an in-memory ObjectStorage for tests.
package storagetest

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/artpar/stackdeploy/internal/shell/storage"
)

// Call records one mutating call.
type Call struct {
	Op     string
	Bucket string
	Key    string
}

// Memory is an in-memory ObjectStorage. Fail hooks inject errors per call.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]string // name -> region
	objects map[string]map[string]storage.Object
	calls   []Call

	// HeadBucketErr, when set, is returned by HeadBucket.
	HeadBucketErr error
	// CreateBucketErr, when set, is returned by CreateBucket.
	CreateBucketErr error
	// FailPut returns an error for a key to fail its PutObject.
	FailPut func(key string) error
	// ListErr, when set, is returned by ListObjects.
	ListErr error
	// FailDelete reports keys DeleteObjects refuses to delete.
	FailDelete func(key string) bool
	// DeleteErr, when it returns an error, fails the whole DeleteObjects
	// request and nothing in it is deleted.
	DeleteErr func(keys []string) error
}

var _ storage.ObjectStorage = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		buckets: map[string]string{},
		objects: map[string]map[string]storage.Object{},
	}
}

// AddBucket creates a bucket directly.
func (m *Memory) AddBucket(name, region string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[name] = region
	if m.objects[name] == nil {
		m.objects[name] = map[string]storage.Object{}
	}
}

// Seed stores an object directly, creating the bucket if needed.
func (m *Memory) Seed(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = map[string]storage.Object{}
	}
	m.objects[bucket][key] = storage.Object{Body: body}
}

// Keys returns the sorted keys of a bucket.
func (m *Memory) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.objects[bucket]))
}

// Object returns a stored object.
func (m *Memory) Object(bucket, key string) (storage.Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket][key]
	return obj, ok
}

// HasBucket reports whether a bucket exists.
func (m *Memory) HasBucket(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buckets[name]
	return ok
}

// Calls returns the mutating calls made so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount counts calls for an operation.
func (m *Memory) CallCount(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *Memory) HeadBucket(_ context.Context, bucket string) (storage.BucketInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "HeadBucket", Bucket: bucket})
	if m.HeadBucketErr != nil {
		return storage.BucketInfo{}, m.HeadBucketErr
	}
	region, ok := m.buckets[bucket]
	if !ok {
		return storage.BucketInfo{}, &storage.Error{Op: "HeadBucket", Bucket: bucket, Err: storage.ErrBucketNotFound}
	}
	return storage.BucketInfo{Region: region}, nil
}

func (m *Memory) CreateBucket(_ context.Context, bucket, region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "CreateBucket", Bucket: bucket})
	if m.CreateBucketErr != nil {
		return m.CreateBucketErr
	}
	m.buckets[bucket] = region
	if m.objects[bucket] == nil {
		m.objects[bucket] = map[string]storage.Object{}
	}
	return nil
}

func (m *Memory) PutObject(_ context.Context, bucket, key string, obj storage.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "PutObject", Bucket: bucket, Key: key})
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return err
		}
	}
	if _, ok := m.buckets[bucket]; !ok {
		return &storage.Error{Op: "PutObject", Bucket: bucket, Key: key, Err: storage.ErrBucketNotFound}
	}
	m.objects[bucket][key] = obj
	return nil
}

func (m *Memory) ListObjects(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []storage.ObjectInfo
	for _, key := range slices.Sorted(maps.Keys(m.objects[bucket])) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(m.objects[bucket][key].Body))})
		}
	}
	return out, nil
}

func (m *Memory) DeleteObjects(_ context.Context, bucket string, keys []string) ([]storage.DeleteFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		if err := m.DeleteErr(keys); err != nil {
			return nil, err
		}
	}
	var failures []storage.DeleteFailure
	for _, key := range keys {
		m.calls = append(m.calls, Call{Op: "DeleteObject", Bucket: bucket, Key: key})
		if m.FailDelete != nil && m.FailDelete(key) {
			failures = append(failures, storage.DeleteFailure{Key: key, Code: "AccessDenied", Message: "Access Denied"})
			continue
		}
		delete(m.objects[bucket], key)
	}
	return failures, nil
}
