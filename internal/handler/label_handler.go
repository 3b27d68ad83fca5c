package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labelhub/internal/models"
	"labelhub/internal/service"
)

// LabelHandler handles label mutations and label statistics.
type LabelHandler struct {
	labels service.LabelService
	logger *zap.Logger
}

// NewLabelHandler creates a new label handler.
func NewLabelHandler(labels service.LabelService, logger *zap.Logger) *LabelHandler {
	return &LabelHandler{labels: labels, logger: logger}
}

type saveLabelRequest struct {
	Label       string              `json:"label" binding:"required"`
	BoundingBox *models.BoundingBox `json:"bounding_box,omitempty"`
}

// Save appends a label assertion by the authenticated user.
// PUT /api/datasets/:id/images/:imageId
func (h *LabelHandler) Save(c *gin.Context) {
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

	var req saveLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.labels.SaveLabel(c.Request.Context(), datasetID, imageID, req.Label, actorID(c), req.BoundingBox)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Delete removes an author's label assertions. Without an author query
// parameter the actor deletes their own.
// DELETE /api/datasets/:id/images/:imageId/label?author=bob
func (h *LabelHandler) Delete(c *gin.Context) {
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

	actor := actorID(c)
	author := c.Query("author")
	if author == "" {
		author = actor
	}

	snap, err := h.labels.DeleteLabel(c.Request.Context(), datasetID, imageID, actor, author)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Stats returns the per-label histogram of current assertions for an image.
// GET /api/datasets/:id/images/:imageId/label-stats
func (h *LabelHandler) Stats(c *gin.Context) {
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

	stats, err := h.labels.LabelStats(c.Request.Context(), datasetID, imageID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
