// Package labeling derives the effective label state of an image from its
// append-only ledger of label events. Resolution is a pure function: the
// same ledger contents always produce the same result, regardless of the
// order the ledger was built in.
package labeling

import (
	"sort"
	"time"

	"labelhub/internal/models"
)

// Resolution is the derived label state for one image.
type Resolution struct {
	Consistency models.Consistency

	// EffectiveLabel is set only when Consistency is consistent.
	EffectiveLabel string

	// LabeledBy/LabeledAt identify the assertion backing EffectiveLabel:
	// the most recent current assertion carrying that label. Empty author
	// means the label came from the legacy direct-set field.
	LabeledBy string
	LabeledAt *time.Time

	// PerAuthor maps each author to their current assertion's label. Callers
	// presenting an inconsistent image show this breakdown instead of a
	// resolved value.
	PerAuthor map[string]string
}

// currentAssertions picks, per author, the event with the latest timestamp;
// ties are broken by ledger insertion order (highest id appended last).
func currentAssertions(events []models.LabelEvent) map[string]models.LabelEvent {
	current := make(map[string]models.LabelEvent, len(events))
	for _, ev := range events {
		prev, ok := current[ev.AuthorID]
		if !ok || ev.LabeledAt.After(prev.LabeledAt) ||
			(ev.LabeledAt.Equal(prev.LabeledAt) && ev.ID > prev.ID) {
			current[ev.AuthorID] = ev
		}
	}
	return current
}

// Resolve computes the effective label state from a ledger. legacyLabel is
// the image's direct-set label field: an image with no ledger entries but a
// non-empty legacy label counts as consistent with that value, attributed to
// no author.
func Resolve(events []models.LabelEvent, legacyLabel string) Resolution {
	if len(events) == 0 {
		if legacyLabel != "" {
			return Resolution{
				Consistency:    models.ConsistencyConsistent,
				EffectiveLabel: legacyLabel,
			}
		}
		return Resolution{Consistency: models.ConsistencyUnlabeled}
	}

	current := currentAssertions(events)

	perAuthor := make(map[string]string, len(current))
	distinct := make(map[string]struct{}, len(current))
	for author, ev := range current {
		perAuthor[author] = ev.Label
		distinct[ev.Label] = struct{}{}
	}

	if len(distinct) > 1 {
		return Resolution{
			Consistency: models.ConsistencyInconsistent,
			PerAuthor:   perAuthor,
		}
	}

	// All authors agree; attribute the label to the freshest assertion.
	var latest models.LabelEvent
	for _, ev := range current {
		if latest.ID == 0 || ev.LabeledAt.After(latest.LabeledAt) ||
			(ev.LabeledAt.Equal(latest.LabeledAt) && ev.ID > latest.ID) {
			latest = ev
		}
	}
	at := latest.LabeledAt
	return Resolution{
		Consistency:    models.ConsistencyConsistent,
		EffectiveLabel: latest.Label,
		LabeledBy:      latest.AuthorID,
		LabeledAt:      &at,
		PerAuthor:      perAuthor,
	}
}

// LabelCount is one bucket of the per-image label histogram.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LabelCounts counts how many authors currently assert each label, sorted by
// count descending then label for a stable presentation order.
func LabelCounts(events []models.LabelEvent) []LabelCount {
	current := currentAssertions(events)

	counts := make(map[string]int, len(current))
	for _, ev := range current {
		counts[ev.Label]++
	}

	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Apply writes a resolution into an image record's cache fields. It is the
// only code that should touch those fields.
func Apply(img *models.ImageRecord, res Resolution) {
	img.Consistency = res.Consistency
	img.CurrentLabel = res.EffectiveLabel
	img.CurrentLabeledBy = res.LabeledBy
	img.CurrentLabeledAt = res.LabeledAt
}

// Snapshot builds the caller-facing view of a resolution.
func Snapshot(img *models.ImageRecord, res Resolution) models.LabelSnapshot {
	return models.LabelSnapshot{
		ImageID:          img.ID,
		Consistency:      res.Consistency,
		CurrentLabel:     res.EffectiveLabel,
		CurrentLabeledBy: res.LabeledBy,
		CurrentLabeledAt: res.LabeledAt,
		PerAuthor:        res.PerAuthor,
	}
}
