package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Consistency classifies the agreement between annotators' latest label
// assertions for one image.
type Consistency string

const (
	ConsistencyConsistent   Consistency = "consistent"
	ConsistencyInconsistent Consistency = "inconsistent"
	ConsistencyUnlabeled    Consistency = "unlabeled"
)

// BoundingBox is the crop geometry of a crop-derived image, in pixels of the
// source image.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Value implements driver.Valuer so the box can be stored in a jsonb column.
func (b BoundingBox) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner.
func (b *BoundingBox) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	case nil:
		return nil
	}
	return fmt.Errorf("cannot scan %T into BoundingBox", src)
}

// String renders the box the way the CSV export expects it: "x,y,width,height".
func (b BoundingBox) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.X, b.Y, b.Width, b.Height)
}

// LabelEvent is one annotator's assertion about one image at one point in
// time. Events are append-only; an annotator changes their mind by appending
// a newer event, not by editing an old one.
type LabelEvent struct {
	ID        int64     `db:"id" json:"id"`
	ImageID   uuid.UUID `db:"image_id" json:"image_id"`
	Label     string    `db:"label" json:"label"`
	AuthorID  string    `db:"author_id" json:"labeled_by"`
	LabeledAt time.Time `db:"labeled_at" json:"labeled_at"`
}

// ImageRecord is one uploaded or crop-derived image in a dataset.
//
// CurrentLabel/CurrentLabeledBy/CurrentLabeledAt/Consistency are a cache of
// the resolver output over Ledger. They are recomputed in the same
// transaction as every ledger mutation and must never be written directly.
type ImageRecord struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	DatasetID    uuid.UUID    `db:"dataset_id" json:"dataset_id"`
	BlobID       string       `db:"blob_id" json:"blob_id"`
	Filename     string       `db:"filename" json:"filename"`
	OriginalName string       `db:"original_name" json:"original_name"`
	ContentType  string       `db:"content_type" json:"content_type"`
	UploadedAt   time.Time    `db:"uploaded_at" json:"uploaded_at"`
	BoundingBox  *BoundingBox `db:"bounding_box" json:"bounding_box,omitempty"`
	IsCropped    bool         `db:"is_cropped" json:"is_cropped"`

	// Label is the legacy direct-set label field, populated by uploads that
	// carry an initial label (bulk import, crop commits). Images labeled this
	// way have no ledger entries yet.
	Label string `db:"label" json:"label"`

	CurrentLabel     string      `db:"current_label" json:"current_label"`
	CurrentLabeledBy string      `db:"current_labeled_by" json:"current_labeled_by"`
	CurrentLabeledAt *time.Time  `db:"current_labeled_at" json:"current_labeled_at,omitempty"`
	Consistency      Consistency `db:"consistency" json:"consistency"`

	Ledger []LabelEvent `db:"-" json:"labels,omitempty"`
}

// IsLabeled reports whether the image counts as labeled for listing, stats
// and export purposes: it has at least one current assertion, or it is
// crop-derived, or it carries a legacy label.
func (r *ImageRecord) IsLabeled() bool {
	return r.Consistency != ConsistencyUnlabeled || r.IsCropped || r.Label != ""
}

// URL is the retrieval path for the image bytes.
func (r *ImageRecord) URL() string {
	return "/blob/" + r.BlobID
}
