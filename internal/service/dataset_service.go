package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/blobstore"
	"labelhub/internal/models"
	"labelhub/internal/repository"
)

// EventPublisher receives dataset change notifications for fan-out to
// connected clients. Implementations must not block.
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

// Event types published on dataset mutations.
const (
	EventImageUploaded = "image.uploaded"
	EventImageDeleted  = "image.deleted"
	EventLabelSaved    = "label.saved"
	EventLabelDeleted  = "label.deleted"
)

// DatasetService owns the dataset aggregate: creation, listing, pagination,
// statistics and cascading deletion.
type DatasetService interface {
	Create(ctx context.Context, name, ownerID string, isPrivate bool) (*models.Dataset, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	List(ctx context.Context) ([]*models.Dataset, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Dataset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reset(ctx context.Context) error

	ListImages(ctx context.Context, datasetID uuid.UUID, filter models.ImageFilter, page, pageSize int) ([]*models.ImageRecord, int, error)
	Stats(ctx context.Context, datasetID uuid.UUID) (*models.DatasetStats, error)
	DeleteImage(ctx context.Context, datasetID, imageID uuid.UUID) error
}

type datasetService struct {
	datasets repository.DatasetRepository
	images   repository.ImageRepository
	blobs    blobstore.Store
	events   EventPublisher
	logger   *zap.Logger
}

// NewDatasetService creates a dataset service. events may be nil.
func NewDatasetService(datasets repository.DatasetRepository, images repository.ImageRepository, blobs blobstore.Store, events EventPublisher, logger *zap.Logger) DatasetService {
	return &datasetService{
		datasets: datasets,
		images:   images,
		blobs:    blobs,
		events:   events,
		logger:   logger,
	}
}

func (s *datasetService) publish(eventType string, payload interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

// Create stores a new dataset after validating the name.
func (s *datasetService) Create(ctx context.Context, name, ownerID string, isPrivate bool) (*models.Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation.New("dataset name must not be empty")
	}

	ds := &models.Dataset{
		Name:      name,
		OwnerID:   ownerID,
		IsPrivate: isPrivate,
	}
	if err := s.datasets.Create(ctx, ds); err != nil {
		return nil, err
	}
	s.logger.Info("Dataset created", zap.String("dataset_id", ds.ID.String()), zap.String("name", name))
	return ds, nil
}

func (s *datasetService) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.datasets.GetByID(ctx, id)
}

func (s *datasetService) List(ctx context.Context) ([]*models.Dataset, error) {
	return s.datasets.List(ctx)
}

// Rename changes a dataset's name.
func (s *datasetService) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation.New("dataset name must not be empty")
	}
	return s.datasets.Rename(ctx, id, name)
}

// releaseBlobs decrements the refcount of every removed image's blob.
// Release is idempotent, so a failure here leaves at worst an orphaned blob
// that a retried delete cleans up.
func (s *datasetService) releaseBlobs(ctx context.Context, images []*models.ImageRecord) {
	for _, img := range images {
		if err := s.blobs.Release(ctx, img.BlobID); err != nil {
			s.logger.Error("Failed to release blob for deleted image",
				zap.String("image_id", img.ID.String()),
				zap.String("blob_id", img.BlobID),
				zap.Error(err))
		}
	}
}

// Delete removes a dataset, its images and their blobs.
func (s *datasetService) Delete(ctx context.Context, id uuid.UUID) error {
	removed, err := s.datasets.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.releaseBlobs(ctx, removed)
	s.logger.Info("Dataset deleted", zap.String("dataset_id", id.String()), zap.Int("images", len(removed)))
	return nil
}

// Reset wipes every dataset and all stored blobs they referenced.
func (s *datasetService) Reset(ctx context.Context) error {
	removed, err := s.datasets.Reset(ctx)
	if err != nil {
		return err
	}
	s.releaseBlobs(ctx, removed)
	s.logger.Info("All datasets reset", zap.Int("images", len(removed)))
	return nil
}

// ListImages returns one 0-indexed page of a dataset's images and the total
// matching count. Out-of-range pages return empty items with the true total.
func (s *datasetService) ListImages(ctx context.Context, datasetID uuid.UUID, filter models.ImageFilter, page, pageSize int) ([]*models.ImageRecord, int, error) {
	if page < 0 {
		return nil, 0, apperr.Validation.New("page must not be negative")
	}
	if pageSize <= 0 {
		return nil, 0, apperr.Validation.New("page size must be positive")
	}
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		return nil, 0, err
	}
	return s.images.List(ctx, datasetID, filter, page*pageSize, pageSize)
}

// Stats partitions a dataset's images by the labeled predicate.
func (s *datasetService) Stats(ctx context.Context, datasetID uuid.UUID) (*models.DatasetStats, error) {
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.images.Stats(ctx, datasetID)
}

// DeleteImage removes one image and releases its blob. Deleting twice fails
// with NotFound on the second call.
func (s *datasetService) DeleteImage(ctx context.Context, datasetID, imageID uuid.UUID) error {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if img.DatasetID != datasetID {
		return apperr.NotFound.New("image %s in dataset %s", imageID, datasetID)
	}

	removed, err := s.images.Delete(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.blobs.Release(ctx, removed.BlobID); err != nil {
		s.logger.Error("Failed to release blob for deleted image",
			zap.String("image_id", imageID.String()),
			zap.String("blob_id", removed.BlobID),
			zap.Error(err))
	}
	s.publish(EventImageDeleted, map[string]string{
		"dataset_id": datasetID.String(),
		"image_id":   imageID.String(),
	})
	return nil
}
