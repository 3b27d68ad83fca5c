package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"go.uber.org/zap"

	"labelhub/internal/blobstore"
	"labelhub/internal/models"
	"labelhub/internal/repository"
)

// testEnv wires the full service layer against in-memory backends.
type testEnv struct {
	datasets *repository.MemoryDatasetRepository
	images   *repository.MemoryImageRepository
	blobs    *blobstore.MemoryStore

	datasetSvc DatasetService
	labelSvc   LabelService
	uploadSvc  UploadService
	exportSvc  ExportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	datasets, images := repository.NewMemoryRepositories()
	blobs := blobstore.NewMemoryStore()

	return &testEnv{
		datasets:   datasets,
		images:     images,
		blobs:      blobs,
		datasetSvc: NewDatasetService(datasets, images, blobs, nil, logger),
		labelSvc:   NewLabelService(datasets, images, nil, logger),
		uploadSvc:  NewUploadService(datasets, images, blobs, nil, logger),
		exportSvc:  NewExportService(datasets, images, logger),
	}
}

// freezeClock makes the label service stamp events with a ticking fake clock
// so resolution order in tests does not depend on wall time.
func (e *testEnv) freezeClock(start time.Time, step time.Duration) *time.Time {
	current := start
	e.labelSvc.(*labelService).now = func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
	return &current
}

func (e *testEnv) mustDataset(t *testing.T, name, ownerID string) *models.Dataset {
	t.Helper()
	ds, err := e.datasetSvc.Create(context.Background(), name, ownerID, false)
	if err != nil {
		t.Fatalf("create dataset %q: %v", name, err)
	}
	return ds
}

func (e *testEnv) mustUpload(t *testing.T, ds *models.Dataset, item UploadItem) *models.ImageRecord {
	t.Helper()
	results, err := e.uploadSvc.Upload(context.Background(), ds.ID, []UploadItem{item})
	if err != nil {
		t.Fatalf("upload %q: %v", item.Filename, err)
	}
	if results[0].Error != "" {
		t.Fatalf("upload %q: %s", item.Filename, results[0].Error)
	}
	img, err := e.images.GetByID(context.Background(), results[0].ImageID)
	if err != nil {
		t.Fatalf("load uploaded image: %v", err)
	}
	return img
}

// pngBytes renders a small solid PNG for upload and crop tests.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
