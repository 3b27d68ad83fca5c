// Package blobstore stores image bytes decoupled from dataset metadata.
// Blobs are content addressed: the id is the hex sha256 of the bytes, so
// identical uploads share one stored object. Lifecycle is reference counted;
// a blob disappears when its last referencing image record is deleted.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"labelhub/internal/apperr"
)

// BlobInfo describes a stored blob. Bytes never change after creation.
type BlobInfo struct {
	ID          string    `db:"id" json:"id"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	RefCount    int       `db:"ref_count" json:"ref_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Store is the blob storage contract.
//
// Put is all-or-nothing: either the whole object is durable when the call
// returns or nothing was stored. Release is idempotent so callers can retry
// cleanup after partial failures.
type Store interface {
	// Put stores the bytes read from r and returns the blob info. Storing
	// bytes that already exist increments the existing blob's refcount.
	Put(ctx context.Context, r io.Reader, contentType string) (*BlobInfo, error)

	// Open returns a stream over the blob's bytes. Fails with a NotFound
	// class error for an unknown id.
	Open(ctx context.Context, id string) (io.ReadCloser, *BlobInfo, error)

	// Stat returns the blob info without opening the bytes.
	Stat(ctx context.Context, id string) (*BlobInfo, error)

	// Retain increments the refcount of an existing blob.
	Retain(ctx context.Context, id string) error

	// Release decrements the refcount and removes the blob when it reaches
	// zero. Releasing an unknown id is not an error.
	Release(ctx context.Context, id string) error
}

// HashBytes returns the content address for a byte slice.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// timeoutErr maps a context cancellation seen during a storage operation to
// the right error class.
func timeoutErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperr.StorageTimeout.Wrap(ctxErr)
	}
	return apperr.StorageUnavailable.Wrap(err)
}
