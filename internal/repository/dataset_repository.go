package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"labelhub/internal/apperr"
	"labelhub/internal/models"
)

const pqUniqueViolation = "23505"

type datasetRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewDatasetRepository creates a Postgres-backed dataset repository.
func NewDatasetRepository(db *sqlx.DB, logger *zap.Logger) DatasetRepository {
	return &datasetRepository{db: db, logger: logger}
}

// Create stores a new dataset.
func (r *datasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	query := `
		INSERT INTO datasets (id, name, owner_id, is_private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, ds.ID, ds.Name, ds.OwnerID, ds.IsPrivate, ds.CreatedAt, ds.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return apperr.Conflict.New("dataset name %q already exists", ds.Name)
		}
		r.logger.Error("Failed to create dataset", zap.String("name", ds.Name), zap.Error(err))
		return err
	}
	return nil
}

const datasetColumns = `
	d.id, d.name, d.owner_id, d.is_private, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM images i WHERE i.dataset_id = d.id) AS image_count
`

// GetByID retrieves a dataset with its image count.
func (r *datasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	ds := &models.Dataset{}
	err := r.db.GetContext(ctx, ds, `SELECT `+datasetColumns+` FROM datasets d WHERE d.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound.New("dataset %s", id)
		}
		return nil, err
	}
	return ds, nil
}

// List retrieves all datasets, newest first.
func (r *datasetRepository) List(ctx context.Context) ([]*models.Dataset, error) {
	datasets := []*models.Dataset{}
	err := r.db.SelectContext(ctx, &datasets, `SELECT `+datasetColumns+` FROM datasets d ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return datasets, nil
}

// Rename changes a dataset's name.
func (r *datasetRepository) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Dataset, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE datasets SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now().UTC(), id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, apperr.Conflict.New("dataset name %q already exists", name)
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound.New("dataset %s", id)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a dataset and its images.
func (r *datasetRepository) Delete(ctx context.Context, id uuid.UUID) (_ []*models.ImageRecord, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	images := []*models.ImageRecord{}
	err = tx.SelectContext(ctx, &images, `SELECT `+imageColumns+` FROM images WHERE dataset_id = $1`, id)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		_ = tx.Rollback()
		return nil, apperr.NotFound.New("dataset %s", id)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return images, nil
}

// Reset wipes every dataset.
func (r *datasetRepository) Reset(ctx context.Context) (_ []*models.ImageRecord, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	images := []*models.ImageRecord{}
	err = tx.SelectContext(ctx, &images, `SELECT `+imageColumns+` FROM images`)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM datasets`); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return images, nil
}

var _ DatasetRepository = (*datasetRepository)(nil)
