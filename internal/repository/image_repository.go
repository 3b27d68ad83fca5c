package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/labeling"
	"labelhub/internal/models"
)

const imageColumns = `
	id, dataset_id, blob_id, filename, original_name, content_type, uploaded_at,
	bounding_box, is_cropped, label, current_label, current_labeled_by,
	current_labeled_at, consistency
`

// labeledPredicate is the single SQL rendering of models.ImageRecord.IsLabeled.
// Listing, stats and export all go through it so they cannot disagree.
const labeledPredicate = `(consistency <> 'unlabeled' OR is_cropped OR label <> '')`

type imageRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewImageRepository creates a Postgres-backed image repository.
func NewImageRepository(db *sqlx.DB, logger *zap.Logger) ImageRepository {
	return &imageRepository{db: db, logger: logger}
}

// Create stores a new image record.
func (r *imageRepository) Create(ctx context.Context, img *models.ImageRecord) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}
	if img.Consistency == "" {
		labeling.Apply(img, labeling.Resolve(nil, img.Label))
	}

	query := `
		INSERT INTO images (id, dataset_id, blob_id, filename, original_name, content_type,
			uploaded_at, bounding_box, is_cropped, label, current_label, current_labeled_by,
			current_labeled_at, consistency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		img.ID, img.DatasetID, img.BlobID, img.Filename, img.OriginalName, img.ContentType,
		img.UploadedAt, img.BoundingBox, img.IsCropped, img.Label, img.CurrentLabel,
		img.CurrentLabeledBy, img.CurrentLabeledAt, img.Consistency)
	if err != nil {
		r.logger.Error("Failed to create image record", zap.String("image_id", img.ID.String()), zap.Error(err))
	}
	return err
}

// GetByID retrieves an image with its full ledger.
func (r *imageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	img := &models.ImageRecord{}
	err := r.db.GetContext(ctx, img, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound.New("image %s", id)
		}
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &img.Ledger,
		`SELECT id, image_id, label, author_id, labeled_at FROM label_events WHERE image_id = $1 ORDER BY id`, id); err != nil {
		return nil, err
	}
	return img, nil
}

// List retrieves one page of a dataset's images and the total matching count.
func (r *imageRepository) List(ctx context.Context, datasetID uuid.UUID, filter models.ImageFilter, offset, limit int) ([]*models.ImageRecord, int, error) {
	where := `dataset_id = $1`
	switch filter {
	case models.FilterLabeled:
		where += ` AND ` + labeledPredicate
	case models.FilterUnlabeled:
		where += ` AND NOT ` + labeledPredicate
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM images WHERE `+where, datasetID); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + imageColumns + ` FROM images WHERE ` + where + ` ORDER BY uploaded_at DESC, id DESC`
	args := []interface{}{datasetID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET $2`
		args = append(args, offset)
	}

	images := []*models.ImageRecord{}
	if err := r.db.SelectContext(ctx, &images, query, args...); err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// Stats partitions a dataset's images by the labeled predicate.
func (r *imageRepository) Stats(ctx context.Context, datasetID uuid.UUID) (*models.DatasetStats, error) {
	stats := &models.DatasetStats{}
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE ` + labeledPredicate + `) AS labeled,
		       COUNT(*) FILTER (WHERE NOT ` + labeledPredicate + `) AS unlabeled
		FROM images WHERE dataset_id = $1
	`
	err := r.db.QueryRowxContext(ctx, query, datasetID).Scan(&stats.Total, &stats.Labeled, &stats.Unlabeled)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// AppendLabelEvent appends one assertion and recomputes the resolved cache,
// all in one transaction. The ledger never accepts an empty label.
func (r *imageRepository) AppendLabelEvent(ctx context.Context, imageID uuid.UUID, label, authorID string, at time.Time, box *models.BoundingBox) (*models.ImageRecord, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, apperr.Validation.New("label must not be empty")
	}
	return r.mutateLedger(ctx, imageID, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO label_events (image_id, label, author_id, labeled_at) VALUES ($1, $2, $3, $4)`,
			imageID, label, authorID, at)
		if err != nil {
			return err
		}
		if box != nil {
			_, err = tx.ExecContext(ctx, `UPDATE images SET bounding_box = $1 WHERE id = $2`, box, imageID)
		}
		return err
	})
}

// RemoveAuthorEvents removes one author's events and recomputes the cache.
func (r *imageRepository) RemoveAuthorEvents(ctx context.Context, imageID uuid.UUID, authorID string) (int, *models.ImageRecord, error) {
	removed := 0
	img, err := r.mutateLedger(ctx, imageID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM label_events WHERE image_id = $1 AND author_id = $2`, imageID, authorID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return removed, img, nil
}

// mutateLedger runs fn against an image's ledger under a row lock, then
// recomputes and stores the resolver output before committing. Concurrent
// saves to the same image serialize here; saves to different images do not
// contend.
func (r *imageRepository) mutateLedger(ctx context.Context, imageID uuid.UUID, fn func(tx *sqlx.Tx) error) (_ *models.ImageRecord, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	img := &models.ImageRecord{}
	err = tx.GetContext(ctx, img, `SELECT `+imageColumns+` FROM images WHERE id = $1 FOR UPDATE`, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound.New("image %s", imageID)
		}
		return nil, err
	}

	if err = fn(tx); err != nil {
		return nil, err
	}

	// Re-read in case fn touched the row (bounding box updates).
	if err = tx.GetContext(ctx, img, `SELECT `+imageColumns+` FROM images WHERE id = $1`, imageID); err != nil {
		return nil, err
	}

	if err = tx.SelectContext(ctx, &img.Ledger,
		`SELECT id, image_id, label, author_id, labeled_at FROM label_events WHERE image_id = $1 ORDER BY id`, imageID); err != nil {
		return nil, err
	}

	labeling.Apply(img, labeling.Resolve(img.Ledger, img.Label))

	_, err = tx.ExecContext(ctx, `
		UPDATE images SET current_label = $1, current_labeled_by = $2,
			current_labeled_at = $3, consistency = $4
		WHERE id = $5`,
		img.CurrentLabel, img.CurrentLabeledBy, img.CurrentLabeledAt, img.Consistency, imageID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return img, nil
}

// Delete removes an image record.
func (r *imageRepository) Delete(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	img := &models.ImageRecord{}
	err := r.db.QueryRowxContext(ctx, `DELETE FROM images WHERE id = $1 RETURNING `+imageColumns, id).StructScan(img)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound.New("image %s", id)
		}
		return nil, err
	}
	return img, nil
}

var _ ImageRepository = (*imageRepository)(nil)
