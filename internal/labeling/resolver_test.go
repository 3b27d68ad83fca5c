package labeling

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelhub/internal/models"
)

func ev(id int64, label, author string, at time.Time) models.LabelEvent {
	return models.LabelEvent{ID: id, Label: label, AuthorID: author, LabeledAt: at}
}

func TestResolve(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)

	t.Run("empty ledger is unlabeled", func(t *testing.T) {
		res := Resolve(nil, "")
		assert.Equal(t, models.ConsistencyUnlabeled, res.Consistency)
		assert.Empty(t, res.EffectiveLabel)
	})

	t.Run("legacy label counts as consistent", func(t *testing.T) {
		res := Resolve(nil, "truck")
		assert.Equal(t, models.ConsistencyConsistent, res.Consistency)
		assert.Equal(t, "truck", res.EffectiveLabel)
		assert.Empty(t, res.LabeledBy)
	})

	t.Run("ledger wins over legacy label", func(t *testing.T) {
		res := Resolve([]models.LabelEvent{ev(1, "red", "alice", t1)}, "blue")
		assert.Equal(t, models.ConsistencyConsistent, res.Consistency)
		assert.Equal(t, "red", res.EffectiveLabel)
		assert.Equal(t, "alice", res.LabeledBy)
	})

	t.Run("two authors agreeing are consistent", func(t *testing.T) {
		res := Resolve([]models.LabelEvent{
			ev(1, "red", "alice", t1),
			ev(2, "red", "bob", t2),
		}, "")
		assert.Equal(t, models.ConsistencyConsistent, res.Consistency)
		assert.Equal(t, "red", res.EffectiveLabel)
		assert.Equal(t, "bob", res.LabeledBy) // freshest assertion
		require.NotNil(t, res.LabeledAt)
		assert.True(t, res.LabeledAt.Equal(t2))
	})

	t.Run("two authors disagreeing are inconsistent", func(t *testing.T) {
		res := Resolve([]models.LabelEvent{
			ev(1, "red", "alice", t1),
			ev(2, "blue", "bob", t2),
		}, "")
		assert.Equal(t, models.ConsistencyInconsistent, res.Consistency)
		assert.Empty(t, res.EffectiveLabel)
		assert.Equal(t, map[string]string{"alice": "red", "bob": "blue"}, res.PerAuthor)
	})

	t.Run("author supersedes their own earlier label", func(t *testing.T) {
		res := Resolve([]models.LabelEvent{
			ev(1, "red", "alice", t1),
			ev(2, "blue", "alice", t2),
		}, "")
		assert.Equal(t, models.ConsistencyConsistent, res.Consistency)
		assert.Equal(t, "blue", res.EffectiveLabel)
	})

	t.Run("timestamp tie broken by insertion order", func(t *testing.T) {
		res := Resolve([]models.LabelEvent{
			ev(1, "red", "alice", t1),
			ev(2, "blue", "alice", t1),
		}, "")
		assert.Equal(t, models.ConsistencyConsistent, res.Consistency)
		assert.Equal(t, "blue", res.EffectiveLabel)
	})

	t.Run("supersession can restore consistency", func(t *testing.T) {
		ledger := []models.LabelEvent{
			ev(1, "red", "alice", t0),
			ev(2, "blue", "bob", t1),
		}
		res := Resolve(ledger, "")
		require.Equal(t, models.ConsistencyInconsistent, res.Consistency)

		ledger = append(ledger, ev(3, "red", "bob", t2))
		res = Resolve(ledger, "")
		assert.Equal(t, models.ConsistencyConsistent, res.Consistency)
		assert.Equal(t, "red", res.EffectiveLabel)
	})
}

func TestResolveDeterministic(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger := []models.LabelEvent{
		ev(1, "red", "alice", t0),
		ev(2, "blue", "bob", t0.Add(time.Second)),
		ev(3, "red", "bob", t0.Add(2*time.Second)),
		ev(4, "green", "carol", t0.Add(3*time.Second)),
		ev(5, "red", "carol", t0.Add(4*time.Second)),
	}

	want := Resolve(ledger, "")
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]models.LabelEvent, len(ledger))
		copy(shuffled, ledger)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Resolve(shuffled, "")
		assert.Equal(t, want.Consistency, got.Consistency)
		assert.Equal(t, want.EffectiveLabel, got.EffectiveLabel)
		assert.Equal(t, want.PerAuthor, got.PerAuthor)
	}
}

func TestLabelCounts(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	counts := LabelCounts([]models.LabelEvent{
		ev(1, "red", "alice", t0),
		ev(2, "blue", "alice", t0.Add(time.Second)), // superseded, only blue counts
		ev(3, "blue", "bob", t0.Add(time.Second)),
		ev(4, "green", "carol", t0.Add(time.Second)),
	})

	assert.Equal(t, []LabelCount{
		{Label: "blue", Count: 2},
		{Label: "green", Count: 1},
	}, counts)
}

func TestApply(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	img := &models.ImageRecord{}

	Apply(img, Resolve([]models.LabelEvent{ev(1, "red", "alice", t0)}, ""))
	assert.Equal(t, models.ConsistencyConsistent, img.Consistency)
	assert.Equal(t, "red", img.CurrentLabel)
	assert.Equal(t, "alice", img.CurrentLabeledBy)
	require.NotNil(t, img.CurrentLabeledAt)

	Apply(img, Resolve(nil, ""))
	assert.Equal(t, models.ConsistencyUnlabeled, img.Consistency)
	assert.Empty(t, img.CurrentLabel)
	assert.Empty(t, img.CurrentLabeledBy)
	assert.Nil(t, img.CurrentLabeledAt)
}
