package graphsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/artifact"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/storage/sqlite"
	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func newTestSearcher(t *testing.T) (*Searcher, *sqlite.Store, *artifact.Store) {
	t.Helper()

	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	artifacts, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	return NewSearcher(store.ManifestStore(), artifacts), store, artifacts
}

func seedRelations(t *testing.T, store *sqlite.Store, artifacts *artifact.Store, sourceID string, relations []domain.GraphRelation) {
	t.Helper()
	ctx := context.Background()

	const rel = "graph/relations.jsonl"
	rows := make([]any, len(relations))
	for i := range relations {
		relations[i].ID = domain.RelationID(relations[i].Subject, relations[i].Predicate, relations[i].Object)
		rows[i] = relations[i]
	}
	require.NoError(t, artifacts.WriteJSONL(sourceID, "v1", rel, rows))

	m := domain.NewManifest(sourceID, "v1", "url", sourceID)
	m.AddArtifact(domain.ArtifactGraphRelations, rel)
	require.NoError(t, store.ManifestStore().Upsert(ctx, m))
}

func TestSearchGraph_RanksByOverlap(t *testing.T) {
	searcher, store, artifacts := newTestSearcher(t)
	seedRelations(t, store, artifacts, "url:https://acme.test", []domain.GraphRelation{
		{Subject: "Alice", Predicate: "works_at", Object: "Acme"},
		{Subject: "Acme", Predicate: "produces", Object: "widgets"},
		{Subject: "Bob", Predicate: "located_in", Object: "Berlin"},
	})

	hits, err := searcher.SearchGraph(context.Background(), "where does alice work at acme", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "Alice works at Acme", hits[0].Text)
	assert.Equal(t, "graph", hits[0].Origin)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.LessOrEqual(t, hits[0].Score, scoreWeight)
	assert.Equal(t, "url:https://acme.test", hits[0].SourceRefs["source_id"])
}

func TestSearchGraph_NoMatches(t *testing.T) {
	searcher, store, artifacts := newTestSearcher(t)
	seedRelations(t, store, artifacts, "url:https://acme.test", []domain.GraphRelation{
		{Subject: "Alice", Predicate: "works_at", Object: "Acme"},
	})

	hits, err := searcher.SearchGraph(context.Background(), "quantum chromodynamics", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchGraph_RespectsLimit(t *testing.T) {
	searcher, store, artifacts := newTestSearcher(t)
	seedRelations(t, store, artifacts, "url:https://acme.test", []domain.GraphRelation{
		{Subject: "Acme", Predicate: "produces", Object: "widgets"},
		{Subject: "Acme", Predicate: "produces", Object: "gadgets"},
		{Subject: "Acme", Predicate: "produces", Object: "sprockets"},
	})

	hits, err := searcher.SearchGraph(context.Background(), "acme", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchGraph_EmptyQuery(t *testing.T) {
	searcher, _, _ := newTestSearcher(t)
	hits, err := searcher.SearchGraph(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
