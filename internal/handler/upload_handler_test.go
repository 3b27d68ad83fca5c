package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labelhub/internal/blobstore"
	"labelhub/internal/models"
	"labelhub/internal/repository"
	"labelhub/internal/service"
)

func uploadTestRouter(t *testing.T) (*gin.Engine, *models.Dataset, *repository.MemoryImageRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	datasets, images := repository.NewMemoryRepositories()
	blobs := blobstore.NewMemoryStore()
	uploads := service.NewUploadService(datasets, images, blobs, nil, logger)

	ds := &models.Dataset{Name: "uploads", OwnerID: "alice"}
	require.NoError(t, datasets.Create(context.Background(), ds))

	r := gin.New()
	r.POST("/api/datasets/:id/images", NewUploadHandler(uploads, logger).Upload)
	return r, ds, images
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func addFilePart(t *testing.T, w *multipart.Writer, filename string, data []byte) {
	t.Helper()
	part, err := w.CreateFormFile("images", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
}

type uploadResponse struct {
	Results []service.UploadResult `json:"results"`
	Total   int                    `json:"total"`
	Failed  int                    `json:"failed"`
}

// An unreadable or oversized file must fail alone; its siblings still land.
func TestUploadHandlerOversizedFileFailsAlone(t *testing.T) {
	router, ds, images := uploadTestRouter(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	addFilePart(t, w, "good.png", smallPNG(t))
	addFilePart(t, w, "huge.bin", make([]byte, maxUploadBytes+1))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/"+ds.ID.String()+"/images", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Failed)

	byName := map[string]service.UploadResult{}
	for _, r := range resp.Results {
		byName[r.Filename] = r
	}
	assert.Empty(t, byName["good.png"].Error)
	assert.Contains(t, byName["huge.bin"].Error, "byte limit")

	stored, err := images.GetByID(context.Background(), byName["good.png"].ImageID)
	require.NoError(t, err)
	assert.Equal(t, ds.ID, stored.DatasetID)
}
