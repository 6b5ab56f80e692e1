// Package blobstore stores generated documents (conciliation minutes and
// attachments). Objects are content addressed: the key is derived from the
// SHA-256 of the body, so storing the same document twice is harmless.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrTooLarge    = errors.New("blob exceeds maximum allowed size")
	ErrMissingName = errors.New("file name is required")
	ErrContentType = errors.New("content type is not allowed")
)

// MaxSize is the maximum accepted blob size (25 MB).
const MaxSize = 25 * 1024 * 1024

// AllowedContentTypes lists the document types the engine stores.
var AllowedContentTypes = map[string]bool{
	"application/pdf":  true,
	"application/json": true,
	"text/plain":       true,
	"text/markdown":    true,
	"image/png":        true,
	"image/jpeg":       true,
}

// Object is a document to store.
type Object struct {
	Prefix      string // e.g. "minutes/<case id>"
	FileName    string
	ContentType string
	Body        []byte
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key         string            `json:"key"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	SHA256      string            `json:"sha256"`
	StoredAt    time.Time         `json:"stored_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Store interface {
	Put(ctx context.Context, obj Object) (*Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Info, error)
}

// prepare validates obj and derives its key and digest.
func prepare(obj Object) (*Info, error) {
	if obj.FileName == "" {
		return nil, ErrMissingName
	}
	if !AllowedContentTypes[obj.ContentType] {
		return nil, fmt.Errorf("%w: %s", ErrContentType, obj.ContentType)
	}
	if len(obj.Body) > MaxSize {
		return nil, ErrTooLarge
	}
	sum := fmt.Sprintf("%x", sha256.Sum256(obj.Body))
	return &Info{
		Key:         path.Join(obj.Prefix, sum[:16]+"-"+obj.FileName),
		FileName:    obj.FileName,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Body)),
		SHA256:      sum,
		StoredAt:    time.Now().UTC(),
		Metadata:    obj.Metadata,
	}, nil
}

type storedBlob struct {
	info Info
	body []byte
}

// MemoryStore is a thread-safe in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *MemoryStore) Put(_ context.Context, obj Object) (*Info, error) {
	info, err := prepare(obj)
	if err != nil {
		return nil, err
	}
	body := make([]byte, len(obj.Body))
	copy(body, obj.Body)

	s.mu.Lock()
	s.blobs[info.Key] = &storedBlob{info: *info, body: body}
	s.mu.Unlock()

	out := *info
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Info, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	info := blob.info
	return io.NopCloser(bytes.NewReader(blob.body)), &info, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
