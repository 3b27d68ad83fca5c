package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"labelhub/internal/apperr"
)

// MemoryStore is an in-process Store used by tests and by deployments that
// do not need durability. It honors the same content addressing, refcount
// and context semantics as the Postgres store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*memoryBlob

	// Unavailable, when set, makes every operation fail. Tests use it to
	// exercise the StorageUnavailable propagation paths.
	Unavailable bool
}

type memoryBlob struct {
	info BlobInfo
	data []byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*memoryBlob)}
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.StorageTimeout.Wrap(err)
	}
	if s.Unavailable {
		return apperr.StorageUnavailable.New("backend down")
	}
	return nil
}

// Put stores the bytes under their sha256 address.
func (s *MemoryStore) Put(ctx context.Context, r io.Reader, contentType string) (*BlobInfo, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.StorageUnavailable.Wrap(err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation.New("empty blob")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := HashBytes(data)
	if existing, ok := s.blobs[id]; ok {
		existing.info.RefCount++
		info := existing.info
		return &info, nil
	}

	blob := &memoryBlob{
		info: BlobInfo{
			ID:          id,
			ContentType: contentType,
			Size:        int64(len(data)),
			RefCount:    1,
			CreatedAt:   time.Now().UTC(),
		},
		data: append([]byte(nil), data...),
	}
	s.blobs[id] = blob
	info := blob.info
	return &info, nil
}

// Open streams the blob's bytes.
func (s *MemoryStore) Open(ctx context.Context, id string) (io.ReadCloser, *BlobInfo, error) {
	if err := s.check(ctx); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return nil, nil, apperr.NotFound.New("blob %s", id)
	}
	info := blob.info
	return io.NopCloser(bytes.NewReader(blob.data)), &info, nil
}

// Stat returns the blob info.
func (s *MemoryStore) Stat(ctx context.Context, id string) (*BlobInfo, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return nil, apperr.NotFound.New("blob %s", id)
	}
	info := blob.info
	return &info, nil
}

// Retain increments the refcount of an existing blob.
func (s *MemoryStore) Retain(ctx context.Context, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[id]
	if !ok {
		return apperr.NotFound.New("blob %s", id)
	}
	blob.info.RefCount++
	return nil
}

// Release decrements the refcount, dropping the blob at zero.
func (s *MemoryStore) Release(ctx context.Context, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[id]
	if !ok {
		return nil
	}
	blob.info.RefCount--
	if blob.info.RefCount <= 0 {
		delete(s.blobs, id)
	}
	return nil
}

// Len reports how many distinct blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ Store = (*MemoryStore)(nil)
