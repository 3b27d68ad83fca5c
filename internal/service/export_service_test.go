package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelhub/internal/apperr"
	"labelhub/internal/models"
)

// seedImage inserts a record with a fixed upload time so export ordering is
// deterministic in assertions.
func seedImage(t *testing.T, env *testEnv, ds *models.Dataset, filename string, uploadedAt time.Time, box *models.BoundingBox) *models.ImageRecord {
	t.Helper()
	img := &models.ImageRecord{
		ID:           uuid.New(),
		DatasetID:    ds.ID,
		BlobID:       "blob-" + filename,
		Filename:     filename,
		OriginalName: filename,
		ContentType:  "image/png",
		UploadedAt:   uploadedAt,
		BoundingBox:  box,
	}
	require.NoError(t, env.images.Create(context.Background(), img))
	return img
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	env.freezeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), time.Minute)
	ctx := context.Background()
	ds := env.mustDataset(t, "export", "alice")

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	oldest := seedImage(t, env, ds, "oldest.png", base, &models.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4})
	middle := seedImage(t, env, ds, "middle.png", base.Add(time.Hour), nil)
	newest := seedImage(t, env, ds, "newest.png", base.Add(2*time.Hour), nil)
	seedImage(t, env, ds, "unlabeled.png", base.Add(3*time.Hour), nil)

	_, err := env.labelSvc.SaveLabel(ctx, ds.ID, oldest.ID, "sedan", "bob", nil)
	require.NoError(t, err)
	_, err = env.labelSvc.SaveLabel(ctx, ds.ID, middle.ID, "truck", "carol", nil)
	require.NoError(t, err)
	// Conflicting assertions: no effective label, excluded from the export.
	_, err = env.labelSvc.SaveLabel(ctx, ds.ID, newest.ID, "van", "bob", nil)
	require.NoError(t, err)
	_, err = env.labelSvc.SaveLabel(ctx, ds.ID, newest.ID, "bus", "carol", nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, env.exportSvc.ExportCSV(ctx, ds.ID, &out))

	expected := "filename,label,labeledBy,labeledAt,boundingBox\n" +
		"middle.png,truck,carol,2024-03-01T12:01:00Z,\n" +
		"oldest.png,sedan,bob,2024-03-01T12:00:00Z,\"1,2,3,4\"\n"
	assert.Equal(t, expected, out.String())

	t.Run("re-export is byte identical", func(t *testing.T) {
		var again bytes.Buffer
		require.NoError(t, env.exportSvc.ExportCSV(ctx, ds.ID, &again))
		assert.Equal(t, out.Bytes(), again.Bytes())
	})

	t.Run("unknown dataset", func(t *testing.T) {
		err := env.exportSvc.ExportCSV(ctx, uuid.New(), &bytes.Buffer{})
		assert.True(t, apperr.NotFound.Has(err))
	})
}

func TestExportCSVEmptyDataset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "empty-export", "alice")

	var out bytes.Buffer
	require.NoError(t, env.exportSvc.ExportCSV(ctx, ds.ID, &out))
	assert.Equal(t, "filename,label,labeledBy,labeledAt,boundingBox\n", out.String())
}

func TestExportCSVIncludesLegacyLabels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ds := env.mustDataset(t, "legacy-export", "alice")

	seedImage(t, env, ds, "old.png", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)

	legacy := &models.ImageRecord{
		ID:           uuid.New(),
		DatasetID:    ds.ID,
		BlobID:       "blob-legacy",
		Filename:     "legacy.png",
		OriginalName: "legacy.png",
		ContentType:  "image/png",
		UploadedAt:   time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
		Label:        "truck",
	}
	require.NoError(t, env.images.Create(ctx, legacy))

	var out bytes.Buffer
	require.NoError(t, env.exportSvc.ExportCSV(ctx, ds.ID, &out))
	assert.Equal(t, "filename,label,labeledBy,labeledAt,boundingBox\n"+
		"legacy.png,truck,,,\n", out.String())
}
