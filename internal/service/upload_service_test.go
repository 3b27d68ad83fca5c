package service

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelhub/internal/apperr"
	"labelhub/internal/models"
)

func TestUploadDeduplicatesByContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "dedup", "alice")

	data := pngBytes(t, 5, 5)
	first := env.mustUpload(t, ds, UploadItem{Filename: "one.png", ContentType: "image/png", Data: data})
	second := env.mustUpload(t, ds, UploadItem{Filename: "two.png", ContentType: "image/png", Data: data})

	assert.Equal(t, first.BlobID, second.BlobID)
	assert.Equal(t, 1, env.blobs.Len())

	info, err := env.blobs.Stat(ctx, first.BlobID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.RefCount)

	// Deleting one record keeps the shared bytes alive.
	require.NoError(t, env.datasetSvc.DeleteImage(ctx, ds.ID, first.ID))
	assert.Equal(t, 1, env.blobs.Len())

	require.NoError(t, env.datasetSvc.DeleteImage(ctx, ds.ID, second.ID))
	assert.Equal(t, 0, env.blobs.Len())
}

func TestUploadBatchReportsPerItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "batch", "alice")

	results, err := env.uploadSvc.Upload(ctx, ds.ID, []UploadItem{
		{Filename: "good.png", ContentType: "image/png", Data: pngBytes(t, 4, 4)},
		{Filename: "empty.png", ContentType: "image/png", Data: nil},
		{Filename: "also-good.png", ContentType: "image/png", Data: pngBytes(t, 6, 6)},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Empty(t, results[0].Error)
	assert.NotEqual(t, uuid.Nil, results[0].ImageID)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, uuid.Nil, results[1].ImageID)
	assert.Empty(t, results[2].Error)

	stats, err := env.datasetSvc.Stats(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}

func TestUploadStorageFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "outage", "alice")

	env.blobs.Unavailable = true
	results, err := env.uploadSvc.Upload(ctx, ds.ID, []UploadItem{
		{Filename: "a.png", ContentType: "image/png", Data: pngBytes(t, 3, 3)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, results[0].Error)

	stats, statErr := env.datasetSvc.Stats(ctx, ds.ID)
	require.NoError(t, statErr)
	assert.Equal(t, 0, stats.Total)

	_, err = env.uploadSvc.Upload(ctx, ds.ID, nil)
	assert.True(t, apperr.Validation.Has(err))

	_, err = env.uploadSvc.Upload(ctx, uuid.New(), []UploadItem{{Filename: "a.png"}})
	assert.True(t, apperr.NotFound.Has(err))
}

func TestUploadLabelPaths(t *testing.T) {
	env := newTestEnv(t)
	ds := env.mustDataset(t, "labels-on-upload", "alice")

	t.Run("label with author becomes a ledger event", func(t *testing.T) {
		img := env.mustUpload(t, ds, UploadItem{
			Filename: "tagged.png", ContentType: "image/png",
			Data: pngBytes(t, 4, 4), Label: "sedan", LabeledBy: "bob",
		})
		require.Len(t, img.Ledger, 1)
		assert.Equal(t, "bob", img.Ledger[0].AuthorID)
		assert.Equal(t, models.ConsistencyConsistent, img.Consistency)
		assert.Equal(t, "sedan", img.CurrentLabel)
		assert.Empty(t, img.Label)
	})

	t.Run("whitespace label never reaches the ledger", func(t *testing.T) {
		img := env.mustUpload(t, ds, UploadItem{
			Filename: "blank.png", ContentType: "image/png",
			Data: pngBytes(t, 7, 7), Label: "   ", LabeledBy: "bob",
		})
		require.Empty(t, img.Ledger)
		assert.Empty(t, img.Label)
		assert.Equal(t, models.ConsistencyUnlabeled, img.Consistency)
		assert.False(t, img.IsLabeled())

		// The ledger enforces the same rule when addressed directly.
		_, err := env.images.AppendLabelEvent(context.Background(), img.ID, "  ", "bob", time.Now(), nil)
		assert.True(t, apperr.Validation.Has(err))
	})

	t.Run("label without author stays on the legacy field", func(t *testing.T) {
		img := env.mustUpload(t, ds, UploadItem{
			Filename: "legacy.png", ContentType: "image/png",
			Data: pngBytes(t, 5, 5), Label: "truck",
		})
		assert.Empty(t, img.Ledger)
		assert.Equal(t, "truck", img.Label)
		assert.True(t, img.IsLabeled())
	})
}

func TestCropCommitsLabeledRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "crops", "alice")

	src := env.mustUpload(t, ds, UploadItem{Filename: "street.png", ContentType: "image/png", Data: pngBytes(t, 10, 10)})

	cropped, err := env.uploadSvc.Crop(ctx, ds.ID, src.ID, CropRequest{
		Box:      models.BoundingBox{X: 2, Y: 2, Width: 4, Height: 4},
		Label:    "wheel",
		AuthorID: "bob",
	})
	require.NoError(t, err)

	assert.True(t, cropped.IsCropped)
	assert.True(t, cropped.IsLabeled())
	assert.Equal(t, "wheel", cropped.CurrentLabel)
	assert.Equal(t, "bob", cropped.CurrentLabeledBy)
	assert.Equal(t, "street_crop.png", cropped.OriginalName)
	require.NotNil(t, cropped.BoundingBox)
	assert.Equal(t, models.BoundingBox{X: 2, Y: 2, Width: 4, Height: 4}, *cropped.BoundingBox)

	rc, info, err := env.blobs.Open(ctx, cropped.BlobID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", info.ContentType)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())
	assert.Equal(t, 4, decoded.Bounds().Dy())
}

func TestCropValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "bad-crops", "alice")
	other := env.mustDataset(t, "other-crops", "alice")
	src := env.mustUpload(t, ds, UploadItem{Filename: "s.png", ContentType: "image/png", Data: pngBytes(t, 10, 10)})

	cases := []struct {
		name string
		ds   uuid.UUID
		img  uuid.UUID
		req  CropRequest
		has  func(error) bool
	}{
		{"empty label", ds.ID, src.ID, CropRequest{Box: models.BoundingBox{Width: 2, Height: 2}}, apperr.Validation.Has},
		{"zero size region", ds.ID, src.ID, CropRequest{Box: models.BoundingBox{X: 1, Y: 1}, Label: "x", AuthorID: "bob"}, apperr.Validation.Has},
		{"region outside the image", ds.ID, src.ID, CropRequest{Box: models.BoundingBox{X: 50, Y: 50, Width: 4, Height: 4}, Label: "x", AuthorID: "bob"}, apperr.Validation.Has},
		{"wrong dataset", other.ID, src.ID, CropRequest{Box: models.BoundingBox{Width: 2, Height: 2}, Label: "x", AuthorID: "bob"}, apperr.NotFound.Has},
		{"unknown image", ds.ID, uuid.New(), CropRequest{Box: models.BoundingBox{Width: 2, Height: 2}, Label: "x", AuthorID: "bob"}, apperr.NotFound.Has},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.uploadSvc.Crop(ctx, tc.ds, tc.img, tc.req)
			assert.True(t, tc.has(err), "got %v", err)
		})
	}
}
