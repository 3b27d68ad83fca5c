package handler

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"

	_ "image/gif" // registered for thumbnail decoding
	_ "image/png"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/blobstore"
)

// BlobHandler streams stored image bytes.
type BlobHandler struct {
	blobs  blobstore.Store
	logger *zap.Logger
}

// NewBlobHandler creates a new blob handler.
func NewBlobHandler(blobs blobstore.Store, logger *zap.Logger) *BlobHandler {
	return &BlobHandler{blobs: blobs, logger: logger}
}

// Get streams a blob's bytes with its stored content type.
// GET /blob/:blobId
func (h *BlobHandler) Get(c *gin.Context) {
	id := c.Param("blobId")
	if id == "" {
		respondError(c, h.logger, apperr.Validation.New("blob id required"))
		return
	}

	rc, info, err := h.blobs.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer func() { _ = rc.Close() }()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, nil)
}

// Thumb streams a downscaled JPEG preview of a blob.
// GET /blob/:blobId/thumb?size=300
func (h *BlobHandler) Thumb(c *gin.Context) {
	id := c.Param("blobId")
	if id == "" {
		respondError(c, h.logger, apperr.Validation.New("blob id required"))
		return
	}

	size := 300
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 2048 {
			respondError(c, h.logger, apperr.Validation.New("invalid size: %q", raw))
			return
		}
		size = parsed
	}

	rc, _, err := h.blobs.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer func() { _ = rc.Close() }()

	img, _, err := image.Decode(rc)
	if err != nil {
		respondError(c, h.logger, apperr.Validation.New("blob is not a decodable image: %v", err))
		return
	}

	thumbnail := resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnail, &jpeg.Options{Quality: 85}); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}
