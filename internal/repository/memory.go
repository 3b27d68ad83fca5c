package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"labelhub/internal/apperr"
	"labelhub/internal/labeling"
	"labelhub/internal/models"
)

// MemoryDatasetRepository is an in-process DatasetRepository used by tests.
// It shares a MemoryImageRepository so cascading deletes behave like the
// database foreign keys do.
type MemoryDatasetRepository struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]*models.Dataset
	images   *MemoryImageRepository
}

// MemoryImageRepository is an in-process ImageRepository used by tests.
type MemoryImageRepository struct {
	mu     sync.Mutex
	images map[uuid.UUID]*models.ImageRecord
	nextID int64
}

// NewMemoryRepositories creates a linked pair of in-memory repositories.
func NewMemoryRepositories() (*MemoryDatasetRepository, *MemoryImageRepository) {
	images := &MemoryImageRepository{images: make(map[uuid.UUID]*models.ImageRecord)}
	datasets := &MemoryDatasetRepository{
		datasets: make(map[uuid.UUID]*models.Dataset),
		images:   images,
	}
	return datasets, images
}

func copyImage(img *models.ImageRecord) *models.ImageRecord {
	out := *img
	if img.BoundingBox != nil {
		box := *img.BoundingBox
		out.BoundingBox = &box
	}
	out.Ledger = append([]models.LabelEvent(nil), img.Ledger...)
	return &out
}

// Create stores a new dataset, enforcing global name uniqueness.
func (r *MemoryDatasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.datasets {
		if existing.Name == ds.Name {
			return apperr.Conflict.New("dataset name %q already exists", ds.Name)
		}
	}
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	stored := *ds
	r.datasets[ds.ID] = &stored
	return nil
}

// GetByID retrieves a dataset with its image count.
func (r *MemoryDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.datasets[id]
	if !ok {
		return nil, apperr.NotFound.New("dataset %s", id)
	}
	out := *ds
	out.ImageCount = r.images.countForDataset(id)
	return &out, nil
}

// List retrieves all datasets, newest first.
func (r *MemoryDatasetRepository) List(ctx context.Context) ([]*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		cp := *ds
		cp.ImageCount = r.images.countForDataset(ds.ID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Rename changes a dataset's name.
func (r *MemoryDatasetRepository) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.datasets[id]
	if !ok {
		return nil, apperr.NotFound.New("dataset %s", id)
	}
	for otherID, other := range r.datasets {
		if otherID != id && other.Name == name {
			return nil, apperr.Conflict.New("dataset name %q already exists", name)
		}
	}
	ds.Name = name
	ds.UpdatedAt = time.Now().UTC()
	out := *ds
	out.ImageCount = r.images.countForDataset(id)
	return &out, nil
}

// Delete removes a dataset and its images.
func (r *MemoryDatasetRepository) Delete(ctx context.Context, id uuid.UUID) ([]*models.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[id]; !ok {
		return nil, apperr.NotFound.New("dataset %s", id)
	}
	delete(r.datasets, id)
	return r.images.removeForDataset(id), nil
}

// Reset wipes every dataset.
func (r *MemoryDatasetRepository) Reset(ctx context.Context) ([]*models.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := []*models.ImageRecord{}
	for id := range r.datasets {
		removed = append(removed, r.images.removeForDataset(id)...)
		delete(r.datasets, id)
	}
	return removed, nil
}

func (r *MemoryImageRepository) countForDataset(datasetID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, img := range r.images {
		if img.DatasetID == datasetID {
			n++
		}
	}
	return n
}

func (r *MemoryImageRepository) removeForDataset(datasetID uuid.UUID) []*models.ImageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := []*models.ImageRecord{}
	for id, img := range r.images {
		if img.DatasetID == datasetID {
			removed = append(removed, copyImage(img))
			delete(r.images, id)
		}
	}
	return removed
}

// Create stores a new image record.
func (r *MemoryImageRepository) Create(ctx context.Context, img *models.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}
	if img.Consistency == "" {
		labeling.Apply(img, labeling.Resolve(nil, img.Label))
	}
	r.images[img.ID] = copyImage(img)
	return nil
}

// GetByID retrieves an image with its full ledger.
func (r *MemoryImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[id]
	if !ok {
		return nil, apperr.NotFound.New("image %s", id)
	}
	return copyImage(img), nil
}

// List retrieves one page of a dataset's images, newest upload first.
func (r *MemoryImageRepository) List(ctx context.Context, datasetID uuid.UUID, filter models.ImageFilter, offset, limit int) ([]*models.ImageRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := []*models.ImageRecord{}
	for _, img := range r.images {
		if img.DatasetID != datasetID {
			continue
		}
		switch filter {
		case models.FilterLabeled:
			if !img.IsLabeled() {
				continue
			}
		case models.FilterUnlabeled:
			if img.IsLabeled() {
				continue
			}
		}
		matched = append(matched, copyImage(img))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UploadedAt.Equal(matched[j].UploadedAt) {
			return matched[i].UploadedAt.After(matched[j].UploadedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	total := len(matched)
	if offset >= total {
		return []*models.ImageRecord{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// Stats partitions a dataset's images with the labeled predicate.
func (r *MemoryImageRepository) Stats(ctx context.Context, datasetID uuid.UUID) (*models.DatasetStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &models.DatasetStats{}
	for _, img := range r.images {
		if img.DatasetID != datasetID {
			continue
		}
		stats.Total++
		if img.IsLabeled() {
			stats.Labeled++
		} else {
			stats.Unlabeled++
		}
	}
	return stats, nil
}

// AppendLabelEvent appends one assertion and recomputes the resolved cache.
// The ledger never accepts an empty label.
func (r *MemoryImageRepository) AppendLabelEvent(ctx context.Context, imageID uuid.UUID, label, authorID string, at time.Time, box *models.BoundingBox) (*models.ImageRecord, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, apperr.Validation.New("label must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[imageID]
	if !ok {
		return nil, apperr.NotFound.New("image %s", imageID)
	}

	r.nextID++
	img.Ledger = append(img.Ledger, models.LabelEvent{
		ID:        r.nextID,
		ImageID:   imageID,
		Label:     label,
		AuthorID:  authorID,
		LabeledAt: at,
	})
	if box != nil {
		cp := *box
		img.BoundingBox = &cp
	}
	labeling.Apply(img, labeling.Resolve(img.Ledger, img.Label))
	return copyImage(img), nil
}

// RemoveAuthorEvents removes one author's events and recomputes the cache.
func (r *MemoryImageRepository) RemoveAuthorEvents(ctx context.Context, imageID uuid.UUID, authorID string) (int, *models.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[imageID]
	if !ok {
		return 0, nil, apperr.NotFound.New("image %s", imageID)
	}

	kept := img.Ledger[:0]
	removed := 0
	for _, ev := range img.Ledger {
		if ev.AuthorID == authorID {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	img.Ledger = kept
	labeling.Apply(img, labeling.Resolve(img.Ledger, img.Label))
	return removed, copyImage(img), nil
}

// Delete removes an image record.
func (r *MemoryImageRepository) Delete(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[id]
	if !ok {
		return nil, apperr.NotFound.New("image %s", id)
	}
	delete(r.images, id)
	return copyImage(img), nil
}

var (
	_ DatasetRepository = (*MemoryDatasetRepository)(nil)
	_ ImageRepository   = (*MemoryImageRepository)(nil)
)
