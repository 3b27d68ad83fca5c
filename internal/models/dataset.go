package models

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is a named collection of images owned by one user. Names are
// unique across all owners, not per owner.
type Dataset struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	IsPrivate  bool      `db:"is_private" json:"is_private"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	ImageCount int       `db:"image_count" json:"image_count"`
}

// DatasetStats partitions a dataset's images by the labeled predicate.
type DatasetStats struct {
	Total     int `json:"total"`
	Labeled   int `json:"labeled"`
	Unlabeled int `json:"unlabeled"`
}

// ImageFilter selects which partition of a dataset's images to list.
type ImageFilter string

const (
	FilterAll       ImageFilter = "all"
	FilterLabeled   ImageFilter = "labeled"
	FilterUnlabeled ImageFilter = "unlabeled"
)

// ParseImageFilter validates a filter string from a query parameter. The
// empty string means all.
func ParseImageFilter(s string) (ImageFilter, bool) {
	switch ImageFilter(s) {
	case "", FilterAll:
		return FilterAll, true
	case FilterLabeled:
		return FilterLabeled, true
	case FilterUnlabeled:
		return FilterUnlabeled, true
	}
	return "", false
}

// LabelSnapshot is the effective label state returned after a label mutation
// or a label-stats read.
type LabelSnapshot struct {
	ImageID          uuid.UUID         `json:"image_id"`
	Consistency      Consistency       `json:"consistency"`
	CurrentLabel     string            `json:"current_label,omitempty"`
	CurrentLabeledBy string            `json:"current_labeled_by,omitempty"`
	CurrentLabeledAt *time.Time        `json:"current_labeled_at,omitempty"`
	PerAuthor        map[string]string `json:"per_author,omitempty"`
}
