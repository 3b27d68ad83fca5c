package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/blobstore"
	"labelhub/internal/predictor"
	"labelhub/internal/repository"
)

// PredictHandler asks the external classification service for a label
// suggestion. Predictions are advisory; they never touch the ledger.
type PredictHandler struct {
	images    repository.ImageRepository
	blobs     blobstore.Store
	predictor *predictor.Client
	logger    *zap.Logger
}

// NewPredictHandler creates a new predict handler. predictor may be nil when
// the service is not configured.
func NewPredictHandler(images repository.ImageRepository, blobs blobstore.Store, client *predictor.Client, logger *zap.Logger) *PredictHandler {
	return &PredictHandler{images: images, blobs: blobs, predictor: client, logger: logger}
}

// Suggest returns the classifier's label suggestion for an image.
// GET /api/datasets/:id/images/:imageId/predict
func (h *PredictHandler) Suggest(c *gin.Context) {
	if h.predictor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction service not configured"})
		return
	}

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

	img, err := h.images.GetByID(c.Request.Context(), imageID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if img.DatasetID != datasetID {
		respondError(c, h.logger, apperr.NotFound.New("image %s in dataset %s", imageID, datasetID))
		return
	}

	rc, info, err := h.blobs.Open(c.Request.Context(), img.BlobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	prediction, err := h.predictor.Classify(c.Request.Context(), data, info.ContentType)
	if err != nil {
		h.logger.Error("Prediction request failed", zap.String("image_id", imageID.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "prediction service failed"})
		return
	}
	c.JSON(http.StatusOK, prediction)
}
