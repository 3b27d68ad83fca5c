package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labelhub/internal/service"
)

// ExportHandler serves the CSV projection of a dataset.
type ExportHandler struct {
	exports  service.ExportService
	datasets service.DatasetService
	logger   *zap.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exports service.ExportService, datasets service.DatasetService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, datasets: datasets, logger: logger}
}

// Export streams the dataset's labeled images as a CSV attachment.
// GET /api/datasets/:id/export
func (h *ExportHandler) Export(c *gin.Context) {
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

	// Buffered so an export failure mid-projection yields a clean error
	// response instead of a truncated file.
	var buf bytes.Buffer
	if err := h.exports.ExportCSV(c.Request.Context(), id, &buf); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_labeled_images.csv", ds.Name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
