package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"strings"
	"time"

	_ "image/gif" // registered for decoding uploaded GIFs

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/blobstore"
	"labelhub/internal/models"
	"labelhub/internal/repository"
)

// UploadItem is one file in a batch upload. Label metadata is optional: an
// item with a label and an author gets a real ledger event; a label without
// an author is recorded on the legacy direct-set field (bulk import path).
type UploadItem struct {
	Filename    string
	ContentType string
	Data        []byte
	Label       string
	LabeledBy   string
	LabeledAt   time.Time
	BoundingBox *models.BoundingBox
	IsCropped   bool
}

// UploadResult is the per-item outcome of a batch upload. One item failing
// never aborts its siblings.
type UploadResult struct {
	Filename string    `json:"filename"`
	ImageID  uuid.UUID `json:"image_id,omitempty"`
	URL      string    `json:"url,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// CropRequest commits a sub-region of a source image as a new, pre-labeled
// crop-derived image record.
type CropRequest struct {
	Box      models.BoundingBox
	Label    string
	AuthorID string
}

// UploadService stores image bytes and creates image records.
type UploadService interface {
	// Upload stores a batch of files into a dataset, reporting per-item
	// success or failure.
	Upload(ctx context.Context, datasetID uuid.UUID, items []UploadItem) ([]UploadResult, error)

	// Crop extracts req.Box from the source image and commits it as a new
	// labeled record in the same dataset.
	Crop(ctx context.Context, datasetID, imageID uuid.UUID, req CropRequest) (*models.ImageRecord, error)
}

type uploadService struct {
	datasets repository.DatasetRepository
	images   repository.ImageRepository
	blobs    blobstore.Store
	events   EventPublisher
	logger   *zap.Logger
}

// NewUploadService creates an upload service. events may be nil.
func NewUploadService(datasets repository.DatasetRepository, images repository.ImageRepository, blobs blobstore.Store, events EventPublisher, logger *zap.Logger) UploadService {
	return &uploadService{
		datasets: datasets,
		images:   images,
		blobs:    blobs,
		events:   events,
		logger:   logger,
	}
}

func (s *uploadService) publish(eventType string, payload interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

// storeOne uploads a single item: blob first, then the metadata record. A
// blob failure leaves nothing behind; a record failure releases the blob so
// the refcount stays balanced.
func (s *uploadService) storeOne(ctx context.Context, datasetID uuid.UUID, item UploadItem) (*models.ImageRecord, error) {
	label := strings.TrimSpace(item.Label)

	info, err := s.blobs.Put(ctx, bytes.NewReader(item.Data), item.ContentType)
	if err != nil {
		return nil, err
	}

	img := &models.ImageRecord{
		ID:           uuid.New(),
		DatasetID:    datasetID,
		BlobID:       info.ID,
		OriginalName: item.Filename,
		ContentType:  info.ContentType,
		BoundingBox:  item.BoundingBox,
		IsCropped:    item.IsCropped,
	}
	img.Filename = storedFilename(info.ID, item.Filename)

	if label != "" && item.LabeledBy == "" {
		// Bulk-import path: direct-set label with no author.
		img.Label = label
	}

	if err := s.images.Create(ctx, img); err != nil {
		if relErr := s.blobs.Release(ctx, info.ID); relErr != nil {
			s.logger.Error("Failed to release blob after record failure",
				zap.String("blob_id", info.ID), zap.Error(relErr))
		}
		return nil, err
	}

	if label != "" && item.LabeledBy != "" {
		at := item.LabeledAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		img, err = s.images.AppendLabelEvent(ctx, img.ID, label, item.LabeledBy, at, nil)
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

// Upload stores a batch of files.
func (s *uploadService) Upload(ctx context.Context, datasetID uuid.UUID, items []UploadItem) ([]UploadResult, error) {
	if len(items) == 0 {
		return nil, apperr.Validation.New("no files to upload")
	}
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		return nil, err
	}

	results := make([]UploadResult, 0, len(items))
	for _, item := range items {
		result := UploadResult{Filename: item.Filename}
		img, err := s.storeOne(ctx, datasetID, item)
		if err != nil {
			s.logger.Warn("Upload item failed",
				zap.String("dataset_id", datasetID.String()),
				zap.String("filename", item.Filename),
				zap.Error(err))
			result.Error = err.Error()
		} else {
			result.ImageID = img.ID
			result.URL = img.URL()
			s.publish(EventImageUploaded, map[string]string{
				"dataset_id": datasetID.String(),
				"image_id":   img.ID.String(),
				"filename":   item.Filename,
			})
		}
		results = append(results, result)
	}
	return results, nil
}

// Crop commits a sub-region of a source image as a new record. The crop
// label is required: crop-derived records are labeled by construction.
func (s *uploadService) Crop(ctx context.Context, datasetID, imageID uuid.UUID, req CropRequest) (*models.ImageRecord, error) {
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		return nil, apperr.Validation.New("crop label must not be empty")
	}
	if req.Box.Width <= 0 || req.Box.Height <= 0 {
		return nil, apperr.Validation.New("crop region must have positive size")
	}
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		return nil, err
	}

	src, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if src.DatasetID != datasetID {
		return nil, apperr.NotFound.New("image %s in dataset %s", imageID, datasetID)
	}

	rc, info, err := s.blobs.Open(ctx, src.BlobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	decoded, format, err := image.Decode(rc)
	if err != nil {
		return nil, apperr.Validation.New("source image cannot be decoded: %v", err)
	}

	bounds := decoded.Bounds()
	region := image.Rect(req.Box.X, req.Box.Y, req.Box.X+req.Box.Width, req.Box.Y+req.Box.Height)
	region = region.Intersect(bounds)
	if region.Empty() {
		return nil, apperr.Validation.New("crop region lies outside the image")
	}

	sub, ok := decoded.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, apperr.Validation.New("source image format does not support cropping")
	}

	var buf bytes.Buffer
	contentType := info.ContentType
	if format == "png" {
		err = png.Encode(&buf, sub.SubImage(region))
		contentType = "image/png"
	} else {
		err = jpeg.Encode(&buf, sub.SubImage(region), &jpeg.Options{Quality: 90})
		contentType = "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}

	cropped, err := s.storeOne(ctx, datasetID, UploadItem{
		Filename:    cropFilename(src.OriginalName, format),
		ContentType: contentType,
		Data:        buf.Bytes(),
		Label:       req.Label,
		LabeledBy:   req.AuthorID,
		BoundingBox: &req.Box,
		IsCropped:   true,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Crop committed",
		zap.String("source_image_id", imageID.String()),
		zap.String("image_id", cropped.ID.String()),
		zap.String("label", req.Label))
	s.publish(EventImageUploaded, map[string]string{
		"dataset_id": datasetID.String(),
		"image_id":   cropped.ID.String(),
		"filename":   cropped.Filename,
	})
	return cropped, nil
}

// storedFilename derives the stored name from the content address, keeping
// the original extension the way the original uploader names GridFS files.
func storedFilename(blobID, original string) string {
	ext := path.Ext(original)
	if len(blobID) > 16 {
		return blobID[:16] + ext
	}
	return blobID + ext
}

func cropFilename(original, format string) string {
	base := strings.TrimSuffix(original, path.Ext(original))
	if base == "" {
		base = "crop"
	}
	ext := ".jpg"
	if format == "png" {
		ext = ".png"
	}
	return base + "_crop" + ext
}
