package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/models"
	"labelhub/internal/service"
)

// maxUploadBytes bounds one file in a batch upload, matching the limit the
// web client enforces.
const maxUploadBytes = 10 << 20

// UploadHandler handles image uploads and crop commits.
type UploadHandler struct {
	uploads service.UploadService
	logger  *zap.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(uploads service.UploadService, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, logger: logger}
}

// formValueAt reads a per-file form value: clients may send one value per
// file or a single value applying to all of them.
func formValueAt(values []string, i int) string {
	if len(values) == 0 {
		return ""
	}
	if i < len(values) {
		return values[i]
	}
	return values[0]
}

// Upload stores a batch of files into a dataset. Each file succeeds or fails
// independently; the response carries one result per file.
// POST /api/datasets/:id/images  (multipart, field "images")
func (h *UploadHandler) Upload(c *gin.Context) {
	datasetID, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, h.logger, apperr.Validation.New("invalid multipart form: %v", err))
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		respondError(c, h.logger, apperr.Validation.New("no files to upload"))
		return
	}

	labels := form.Value["label"]
	labeledBys := form.Value["labeledBy"]
	labeledAts := form.Value["labeledAt"]

	// A file that cannot be read still gets its slot in the response; it
	// never aborts its siblings.
	rejected := []service.UploadResult{}
	items := make([]service.UploadItem, 0, len(files))
	for i, fh := range files {
		if fh.Size > maxUploadBytes {
			rejected = append(rejected, service.UploadResult{
				Filename: fh.Filename,
				Error:    apperr.Validation.New("file exceeds the %d byte limit", maxUploadBytes).Error(),
			})
			continue
		}

		f, err := fh.Open()
		if err != nil {
			rejected = append(rejected, service.UploadResult{
				Filename: fh.Filename,
				Error:    apperr.Validation.New("cannot open uploaded file: %v", err).Error(),
			})
			continue
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		_ = f.Close()
		if err != nil {
			rejected = append(rejected, service.UploadResult{
				Filename: fh.Filename,
				Error:    apperr.Validation.New("cannot read uploaded file: %v", err).Error(),
			})
			continue
		}

		item := service.UploadItem{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
			Label:       formValueAt(labels, i),
			LabeledBy:   formValueAt(labeledBys, i),
		}
		if raw := formValueAt(labeledAts, i); raw != "" {
			if at, err := time.Parse(time.RFC3339, raw); err == nil {
				item.LabeledAt = at
			}
		}
		items = append(items, item)
	}

	results := []service.UploadResult{}
	if len(items) > 0 {
		results, err = h.uploads.Upload(c.Request.Context(), datasetID, items)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	results = append(results, rejected...)

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
		"failed":  failed,
	})
}

type cropRequest struct {
	BoundingBox models.BoundingBox `json:"bounding_box" binding:"required"`
	Label       string             `json:"label" binding:"required"`
}

// Crop commits a sub-region of a source image as a new labeled record.
// POST /api/datasets/:id/images/:imageId/crop
func (h *UploadHandler) Crop(c *gin.Context) {
	datasetID, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	imageID, err := parseID(c, "imageId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req cropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img, err := h.uploads.Crop(c.Request.Context(), datasetID, imageID, service.CropRequest{
		Box:      req.BoundingBox,
		Label:    req.Label,
		AuthorID: actorID(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, img)
}
