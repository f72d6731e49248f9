package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogdch/harvester/internal"
	"github.com/ogdch/harvester/internal/hub"
	"github.com/ogdch/harvester/internal/payload"
	"github.com/ogdch/harvester/internal/state"
)

func sourceDataset(identifier, title string) hub.Dataset {
	return hub.Dataset{
		Identifier:   identifier,
		Title:        internal.Text{"de": title},
		Description:  internal.Text{"de": "Beschreibung"},
		AccessRights: "http://publications.europa.eu/resource/authority/access-right/PUBLIC",
		Publisher:    "BFS",
		Distributions: []hub.Distribution{
			{AccessURL: "https://example.org/" + identifier + ".csv", MediaType: "text/csv"},
		},
	}
}

func newEngine() *Engine {
	return New(payload.NewBuilder("CH1"))
}

func snapshotFor(t *testing.T, e *Engine, datasets ...hub.Dataset) *state.Snapshot {
	t.Helper()
	snap := state.NewSnapshot()
	for _, ds := range datasets {
		p, err := e.builder.Build(ds)
		require.NoError(t, err)
		snap.Put(state.Entry{
			Identifier: ds.Identifier,
			DatasetID:  "id-" + ds.Identifier,
			Signature:  payload.Signature(p),
		})
	}
	return snap
}

func identifiers(candidates []Candidate) []string {
	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.Dataset.Identifier)
	}
	return ids
}

func TestClassifyScenario(t *testing.T) {
	// previous={A,B}, current={A(modified),C}
	// → CREATED={C}, UPDATED={A}, DELETED={B}, UNCHANGED={}
	e := newEngine()
	prev := snapshotFor(t, e, sourceDataset("A", "Titel A"), sourceDataset("B", "Titel B"))

	current := []hub.Dataset{
		sourceDataset("A", "Titel A geändert"),
		sourceDataset("C", "Titel C"),
	}

	result := e.Classify(prev, current)

	assert.Equal(t, []string{"C"}, identifiers(result.Created))
	assert.Equal(t, []string{"A"}, identifiers(result.Updated))
	assert.Equal(t, []string{"B"}, result.Deleted)
	assert.Empty(t, result.Unchanged)
	assert.Empty(t, result.Rejected)
}

func TestClassifyPartitionsDisjointAndCovering(t *testing.T) {
	e := newEngine()
	prev := snapshotFor(t, e,
		sourceDataset("A", "a"), sourceDataset("B", "b"), sourceDataset("D", "d"))

	current := []hub.Dataset{
		sourceDataset("A", "a"),         // unchanged
		sourceDataset("B", "b changed"), // updated
		sourceDataset("C", "c"),         // created
	}

	result := e.Classify(prev, current)

	all := map[string]int{}
	for _, id := range identifiers(result.Created) {
		all[id]++
	}
	for _, id := range identifiers(result.Updated) {
		all[id]++
	}
	for _, id := range result.Unchanged {
		all[id]++
	}
	for _, id := range result.Deleted {
		all[id]++
	}

	// Disjoint: each identifier appears in exactly one partition.
	for id, n := range all {
		assert.Equal(t, 1, n, "identifier %s classified %d times", id, n)
	}
	// Covering: union equals previous ∪ current.
	assert.Len(t, all, 4)
	for _, id := range []string{"A", "B", "C", "D"} {
		assert.Contains(t, all, id)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	e := newEngine()
	current := []hub.Dataset{
		sourceDataset("A", "a"),
		sourceDataset("B", "b"),
	}

	first := e.Classify(state.NewSnapshot(), current)
	require.Len(t, first.Created, 2)

	// Snapshot produced by applying the first run's result.
	snap := state.NewSnapshot()
	for _, c := range first.Created {
		snap.Put(state.Entry{
			Identifier: c.Dataset.Identifier,
			DatasetID:  "id-" + c.Dataset.Identifier,
			Signature:  c.Signature,
		})
	}

	second := e.Classify(snap, current)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Updated)
	assert.Empty(t, second.Deleted)
	assert.Equal(t, []string{"A", "B"}, second.Unchanged)
}

func TestClassifyDeterministic(t *testing.T) {
	e := newEngine()
	prev := snapshotFor(t, e, sourceDataset("A", "a"), sourceDataset("B", "b"))
	current := []hub.Dataset{sourceDataset("A", "a"), sourceDataset("C", "c")}

	r1 := e.Classify(prev, current)
	r2 := e.Classify(prev, current)

	assert.Equal(t, identifiers(r1.Created), identifiers(r2.Created))
	assert.Equal(t, r1.Unchanged, r2.Unchanged)
	assert.Equal(t, r1.Deleted, r2.Deleted)
}

func TestClassifyRejectedExcludedFromAllPartitions(t *testing.T) {
	e := newEngine()
	prev := snapshotFor(t, e, sourceDataset("A", "a"))

	invalid := sourceDataset("A", "a")
	invalid.Description = nil

	result := e.Classify(prev, []hub.Dataset{invalid})

	assert.Empty(t, result.Created)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Unchanged)
	// Present in the feed, so not deleted either.
	assert.Empty(t, result.Deleted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "A", result.Rejected[0].Identifier)
	assert.Equal(t, "missing description", result.Rejected[0].Reason)
}

func TestClassifyDuplicateIdentifierKeepsFirst(t *testing.T) {
	e := newEngine()
	current := []hub.Dataset{
		sourceDataset("A", "first"),
		sourceDataset("A", "second"),
	}

	result := e.Classify(state.NewSnapshot(), current)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "first", result.Created[0].Dataset.Title["de"])
}
