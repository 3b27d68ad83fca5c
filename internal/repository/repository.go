package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"labelhub/internal/models"
)

// DatasetRepository handles storage operations for datasets.
type DatasetRepository interface {
	// Create stores a new dataset. Fails with a Conflict class error when
	// the name is already taken (names are globally unique).
	Create(ctx context.Context, ds *models.Dataset) error

	// GetByID retrieves a dataset with its image count.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error)

	// List retrieves all datasets, newest first.
	List(ctx context.Context) ([]*models.Dataset, error)

	// Rename changes a dataset's name, subject to the same uniqueness rule.
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Dataset, error)

	// Delete removes a dataset and its image rows, returning the removed
	// images so the caller can release their blobs.
	Delete(ctx context.Context, id uuid.UUID) ([]*models.ImageRecord, error)

	// Reset wipes every dataset, returning all removed images.
	Reset(ctx context.Context) ([]*models.ImageRecord, error)
}

// ImageRepository handles storage operations for image records and their
// label ledgers. Every ledger mutation recomputes the image's resolved label
// cache in the same transaction, so the cache can never drift from the
// ledger.
type ImageRepository interface {
	// Create stores a new image record.
	Create(ctx context.Context, img *models.ImageRecord) error

	// GetByID retrieves an image with its full ledger.
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error)

	// List retrieves one page of a dataset's images, newest upload first,
	// and the total matching count. limit <= 0 means no limit.
	List(ctx context.Context, datasetID uuid.UUID, filter models.ImageFilter, offset, limit int) ([]*models.ImageRecord, int, error)

	// Stats partitions a dataset's images with the same predicate List uses.
	Stats(ctx context.Context, datasetID uuid.UUID) (*models.DatasetStats, error)

	// AppendLabelEvent appends one assertion to the ledger, optionally
	// updating the image's bounding box, and returns the re-resolved record.
	AppendLabelEvent(ctx context.Context, imageID uuid.UUID, label, authorID string, at time.Time, box *models.BoundingBox) (*models.ImageRecord, error)

	// RemoveAuthorEvents removes all of one author's events from an image's
	// ledger and returns the removal count and the re-resolved record.
	RemoveAuthorEvents(ctx context.Context, imageID uuid.UUID, authorID string) (int, *models.ImageRecord, error)

	// Delete removes an image record, returning it so the caller can release
	// its blob. A second delete of the same id fails with NotFound.
	Delete(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error)
}
