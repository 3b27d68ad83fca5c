package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/models"
	"labelhub/internal/service"
)

// DatasetHandler handles dataset-related requests.
type DatasetHandler struct {
	datasets        service.DatasetService
	logger          *zap.Logger
	defaultPageSize int
	maxPageSize     int
}

// NewDatasetHandler creates a new dataset handler.
func NewDatasetHandler(datasets service.DatasetService, defaultPageSize, maxPageSize int, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		datasets:        datasets,
		logger:          logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

type createDatasetRequest struct {
	Name      string `json:"name" binding:"required"`
	IsPrivate bool   `json:"is_private"`
}

// Create creates a new dataset.
// POST /api/datasets
func (h *DatasetHandler) Create(c *gin.Context) {
	var req createDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, err := h.datasets.Create(c.Request.Context(), req.Name, actorID(c), req.IsPrivate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ds)
}

// List returns all datasets.
// GET /api/datasets
func (h *DatasetHandler) List(c *gin.Context) {
	datasets, err := h.datasets.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": datasets, "count": len(datasets)})
}

// Get returns one dataset with its image count.
// GET /api/datasets/:id
func (h *DatasetHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.datasets.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// Rename changes a dataset's name.
// PUT /api/datasets/:id
func (h *DatasetHandler) Rename(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req createDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, err := h.datasets.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// Delete removes a dataset, its images and their blobs.
// DELETE /api/datasets/:id
func (h *DatasetHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.datasets.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dataset deleted"})
}

// Reset wipes all datasets.
// DELETE /api/datasets
func (h *DatasetHandler) Reset(c *gin.Context) {
	if err := h.datasets.Reset(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all datasets deleted"})
}

// ListImages returns one page of a dataset's images.
// GET /api/datasets/:id/images?filter=labeled&page=0&pageSize=6
func (h *DatasetHandler) ListImages(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	filter, ok := models.ParseImageFilter(c.Query("filter"))
	if !ok {
		respondError(c, h.logger, apperr.Validation.New("invalid filter: %q", c.Query("filter")))
		return
	}

	page := 0
	if raw := c.Query("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, apperr.Validation.New("invalid page: %q", raw))
			return
		}
	}

	pageSize := h.defaultPageSize
	if raw := c.Query("pageSize"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, apperr.Validation.New("invalid pageSize: %q", raw))
			return
		}
	}
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}

	items, total, err := h.datasets.ListImages(c.Request.Context(), id, filter, page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	c.JSON(http.StatusOK, gin.H{
		"items":      items,
		"total":      total,
		"page":       page,
		"totalPages": totalPages,
	})
}

// Stats returns the labeled/unlabeled partition of a dataset.
// GET /api/datasets/:id/stats
func (h *DatasetHandler) Stats(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	stats, err := h.datasets.Stats(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeleteImage removes one image from a dataset.
// DELETE /api/datasets/:id/images/:imageId
func (h *DatasetHandler) DeleteImage(c *gin.Context) {
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

	if err := h.datasets.DeleteImage(c.Request.Context(), datasetID, imageID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "image deleted"})
}
