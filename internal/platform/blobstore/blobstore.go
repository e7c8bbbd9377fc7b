// Package blobstore provides object storage for generated clinical documents.
// It defines the Store interface, an in-memory implementation for testing and
// development, and an S3-backed implementation for production.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrEmptyContent   = errors.New("object content is empty")
	ErrMissingKey     = errors.New("object key is required")
)

// MaxObjectSize is the maximum allowed object size in bytes (6 MB, matching
// the hosted platform's upload ceiling for generated certificates).
const MaxObjectSize = 6 * 1024 * 1024

var ErrObjectTooLarge = errors.New("object exceeds maximum allowed size")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the contract for object storage backends. Upload returns the
// stored object's path (bucket-relative key). Delete of a missing object
// returns ErrObjectNotFound; workflow callers treat deletion as best-effort.
type Store interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, bucket, key string) ([]byte, *ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedObject struct {
	info ObjectInfo
	data []byte
}

// MemoryStore is a thread-safe, in-memory Store for testing and development.
type MemoryStore struct {
	baseURL string
	mu      sync.RWMutex
	objects map[string]*storedObject
}

// NewMemoryStore returns a ready-to-use MemoryStore. baseURL seeds PublicURL;
// it may be empty, in which case a mem:// placeholder scheme is used.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "mem://objects"
	}
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]*storedObject),
	}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Upload validates inputs and stores the object in memory.
func (s *MemoryStore) Upload(_ context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	if int64(len(data)) > MaxObjectSize {
		return "", ErrObjectTooLarge
	}

	obj := &storedObject{
		info: ObjectInfo{
			Bucket:      bucket,
			Key:         key,
			ContentType: contentType,
			Size:        int64(len(data)),
			CreatedAt:   time.Now().UTC(),
		},
		data: append([]byte(nil), data...),
	}

	s.mu.Lock()
	s.objects[objectID(bucket, key)] = obj
	s.mu.Unlock()

	return key, nil
}

// Download returns the object content and its metadata.
func (s *MemoryStore) Download(_ context.Context, bucket, key string) ([]byte, *ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[objectID(bucket, key)]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	info := obj.info // copy
	return append([]byte(nil), obj.data...), &info, nil
}

// Delete removes an object.
func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := objectID(bucket, key)
	if _, ok := s.objects[id]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, id)
	return nil
}

// PublicURL returns the deterministic public URL for a stored object.
func (s *MemoryStore) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, bucket, key)
}

// Len reports the number of stored objects; used by tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
