package service

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labelhub/internal/models"
	"labelhub/internal/repository"
)

// ExportService flattens a dataset's current label state into a CSV
// projection: one row per image with a non-empty effective label.
type ExportService interface {
	// ExportCSV writes the projection to w. Output is byte-for-byte stable
	// for a given ledger state.
	ExportCSV(ctx context.Context, datasetID uuid.UUID, w io.Writer) error
}

type exportService struct {
	datasets repository.DatasetRepository
	images   repository.ImageRepository
	logger   *zap.Logger
}

// NewExportService creates an export service.
func NewExportService(datasets repository.DatasetRepository, images repository.ImageRepository, logger *zap.Logger) ExportService {
	return &exportService{datasets: datasets, images: images, logger: logger}
}

var csvHeader = []string{"filename", "label", "labeledBy", "labeledAt", "boundingBox"}

// ExportCSV writes the dataset's labeled images as CSV.
func (s *exportService) ExportCSV(ctx context.Context, datasetID uuid.UUID, w io.Writer) error {
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		return err
	}

	images, _, err := s.images.List(ctx, datasetID, models.FilterLabeled, 0, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	rows := 0
	for _, img := range images {
		// Inconsistent images have no single effective label and are
		// excluded; callers wanting the conflict use the label-stats view.
		if img.CurrentLabel == "" {
			continue
		}

		labeledAt := ""
		if img.CurrentLabeledAt != nil {
			labeledAt = img.CurrentLabeledAt.UTC().Format(time.RFC3339)
		}
		box := ""
		if img.BoundingBox != nil {
			box = img.BoundingBox.String()
		}

		if err := cw.Write([]string{img.Filename, img.CurrentLabel, img.CurrentLabeledBy, labeledAt, box}); err != nil {
			return err
		}
		rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	s.logger.Info("Dataset exported", zap.String("dataset_id", datasetID.String()), zap.Int("rows", rows))
	return nil
}
