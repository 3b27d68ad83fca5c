package blobstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
)

// PostgresStore keeps blob bytes in a bytea column in the same database as
// the metadata. This mirrors the GridFS split the metadata layer assumes:
// image bytes are never loaded during metadata listing, only through Open.
type PostgresStore struct {
	db      *sqlx.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewPostgresStore creates a blob store backed by the given database.
// timeout bounds every storage operation; zero means no bound beyond the
// caller's context.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, timeout: timeout}
}

func (s *PostgresStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put stores the bytes under their sha256 address. A duplicate put
// increments the refcount of the existing row instead of writing twice.
func (s *PostgresStore) Put(ctx context.Context, r io.Reader, contentType string) (*BlobInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.StorageUnavailable.Wrap(err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation.New("empty blob")
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	id := HashBytes(data)
	info := &BlobInfo{}
	query := `
		INSERT INTO blobs (id, content_type, size, data, ref_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (id) DO UPDATE SET ref_count = blobs.ref_count + 1
		RETURNING id, content_type, size, ref_count, created_at
	`
	err = s.db.QueryRowxContext(ctx, query, id, contentType, int64(len(data)), data).StructScan(info)
	if err != nil {
		s.logger.Error("Failed to store blob", zap.String("blob_id", id), zap.Error(err))
		return nil, timeoutErr(ctx, err)
	}
	return info, nil
}

// Open streams the blob's bytes. The row is read in one query; the returned
// reader streams from the fetched buffer so callers can pipe it to a
// response without further database access.
func (s *PostgresStore) Open(ctx context.Context, id string) (io.ReadCloser, *BlobInfo, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var row struct {
		BlobInfo
		Data []byte `db:"data"`
	}
	query := `SELECT id, content_type, size, ref_count, created_at, data FROM blobs WHERE id = $1`
	err := s.db.QueryRowxContext(ctx, query, id).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperr.NotFound.New("blob %s", id)
		}
		return nil, nil, timeoutErr(ctx, err)
	}
	info := row.BlobInfo
	return io.NopCloser(bytes.NewReader(row.Data)), &info, nil
}

// Stat returns blob metadata without touching the bytes column.
func (s *PostgresStore) Stat(ctx context.Context, id string) (*BlobInfo, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	info := &BlobInfo{}
	query := `SELECT id, content_type, size, ref_count, created_at FROM blobs WHERE id = $1`
	err := s.db.QueryRowxContext(ctx, query, id).StructScan(info)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound.New("blob %s", id)
		}
		return nil, timeoutErr(ctx, err)
	}
	return info, nil
}

// Retain increments the refcount of an existing blob.
func (s *PostgresStore) Retain(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE blobs SET ref_count = ref_count + 1 WHERE id = $1`, id)
	if err != nil {
		return timeoutErr(ctx, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StorageUnavailable.Wrap(err)
	}
	if n == 0 {
		return apperr.NotFound.New("blob %s", id)
	}
	return nil
}

// Release decrements the refcount and deletes the row once nothing
// references it. Unknown ids are ignored so cleanup can be retried.
func (s *PostgresStore) Release(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var remaining int
	err := s.db.QueryRowxContext(ctx,
		`UPDATE blobs SET ref_count = ref_count - 1 WHERE id = $1 RETURNING ref_count`, id,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return timeoutErr(ctx, err)
	}

	if remaining <= 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = $1 AND ref_count <= 0`, id); err != nil {
			s.logger.Error("Failed to delete unreferenced blob", zap.String("blob_id", id), zap.Error(err))
			return timeoutErr(ctx, err)
		}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
