package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/labeling"
	"labelhub/internal/models"
	"labelhub/internal/repository"
)

// LabelService implements the label-save and label-delete collaborator
// contracts on top of the append-only ledger.
type LabelService interface {
	// SaveLabel appends one assertion by authorID and returns the
	// re-resolved effective state.
	SaveLabel(ctx context.Context, datasetID, imageID uuid.UUID, label, authorID string, box *models.BoundingBox) (*models.LabelSnapshot, error)

	// DeleteLabel removes authorID's assertions, subject to the actor's
	// permission, and returns the re-resolved state.
	DeleteLabel(ctx context.Context, datasetID, imageID uuid.UUID, actorID, authorID string) (*models.LabelSnapshot, error)

	// LabelStats returns the per-label histogram of current assertions.
	LabelStats(ctx context.Context, datasetID, imageID uuid.UUID) ([]labeling.LabelCount, error)
}

type labelService struct {
	datasets repository.DatasetRepository
	images   repository.ImageRepository
	events   EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewLabelService creates a label service. events may be nil.
func NewLabelService(datasets repository.DatasetRepository, images repository.ImageRepository, events EventPublisher, logger *zap.Logger) LabelService {
	return &labelService{
		datasets: datasets,
		images:   images,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *labelService) publish(eventType string, payload interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

// getImage loads an image after confirming it belongs to the dataset the
// caller addressed.
func (s *labelService) getImage(ctx context.Context, datasetID, imageID uuid.UUID) (*models.ImageRecord, error) {
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		return nil, err
	}
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if img.DatasetID != datasetID {
		return nil, apperr.NotFound.New("image %s in dataset %s", imageID, datasetID)
	}
	return img, nil
}

func snapshotOf(img *models.ImageRecord) *models.LabelSnapshot {
	res := labeling.Resolve(img.Ledger, img.Label)
	snap := labeling.Snapshot(img, res)
	return &snap
}

// SaveLabel appends one label assertion.
func (s *labelService) SaveLabel(ctx context.Context, datasetID, imageID uuid.UUID, label, authorID string, box *models.BoundingBox) (*models.LabelSnapshot, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, apperr.Validation.New("label must not be empty")
	}
	if authorID == "" {
		return nil, apperr.Validation.New("author must not be empty")
	}

	if _, err := s.getImage(ctx, datasetID, imageID); err != nil {
		return nil, err
	}

	img, err := s.images.AppendLabelEvent(ctx, imageID, label, authorID, s.now(), box)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Label saved",
		zap.String("image_id", imageID.String()),
		zap.String("label", label),
		zap.String("author", authorID),
		zap.String("consistency", string(img.Consistency)))
	s.publish(EventLabelSaved, map[string]string{
		"dataset_id": datasetID.String(),
		"image_id":   imageID.String(),
		"label":      label,
		"author":     authorID,
	})
	return snapshotOf(img), nil
}

// canModify is the single capability check for label mutations touching
// another author's assertions: authors own their events, dataset owners own
// everything in their dataset.
func canModify(ds *models.Dataset, actorID, authorID string) bool {
	return actorID == authorID || actorID == ds.OwnerID
}

// DeleteLabel removes all of one author's assertions from an image.
func (s *labelService) DeleteLabel(ctx context.Context, datasetID, imageID uuid.UUID, actorID, authorID string) (*models.LabelSnapshot, error) {
	if authorID == "" {
		return nil, apperr.Validation.New("author must not be empty")
	}

	ds, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if img.DatasetID != datasetID {
		return nil, apperr.NotFound.New("image %s in dataset %s", imageID, datasetID)
	}

	if !canModify(ds, actorID, authorID) {
		return nil, apperr.PermissionDenied.New("user %s cannot delete labels by %s", actorID, authorID)
	}

	removed, img, err := s.images.RemoveAuthorEvents(ctx, imageID, authorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Labels deleted",
		zap.String("image_id", imageID.String()),
		zap.String("author", authorID),
		zap.Int("removed", removed),
		zap.String("consistency", string(img.Consistency)))
	s.publish(EventLabelDeleted, map[string]string{
		"dataset_id": datasetID.String(),
		"image_id":   imageID.String(),
		"author":     authorID,
	})
	return snapshotOf(img), nil
}

// LabelStats counts current assertions per label.
func (s *labelService) LabelStats(ctx context.Context, datasetID, imageID uuid.UUID) ([]labeling.LabelCount, error) {
	img, err := s.getImage(ctx, datasetID, imageID)
	if err != nil {
		return nil, err
	}
	return labeling.LabelCounts(img.Ledger), nil
}
