package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func TestManifestStore_UpsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	manifests := store.ManifestStore()
	ctx := context.Background()

	m := domain.NewManifest("url:https://example.com/post", "abc123", "url", "https://example.com/post")
	m.AddArtifact(domain.ArtifactCanonicalText, "url_https_example.com_post/abc123/canonical.md")
	m.SetStepDone(domain.JobIngestURL, map[string]any{"title": "Example Post"})

	require.NoError(t, manifests.Upsert(ctx, m))

	got, err := manifests.Get(ctx, m.SourceID, m.SourceVersion)
	require.NoError(t, err)
	assert.Equal(t, m.SourceID, got.SourceID)
	assert.Equal(t, "url", got.SourceType)
	assert.Equal(t, "url_https_example.com_post/abc123/canonical.md",
		got.Artifacts[domain.ArtifactCanonicalText])
	assert.True(t, got.StepDone(domain.JobIngestURL))
}

func TestManifestStore_UpsertOverwrites(t *testing.T) {
	store := setupTestStore(t)
	manifests := store.ManifestStore()
	ctx := context.Background()

	m := domain.NewManifest("file:/notes/a.md", "v1", "file", "/notes/a.md")
	require.NoError(t, manifests.Upsert(ctx, m))

	m.SetStepDone(domain.JobChunkText, map[string]any{"chunks": 12})
	require.NoError(t, manifests.Upsert(ctx, m))

	got, err := manifests.Get(ctx, "file:/notes/a.md", "v1")
	require.NoError(t, err)
	assert.True(t, got.StepDone(domain.JobChunkText))
}

func TestManifestStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ManifestStore().Get(context.Background(), "url:x", "v0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManifestStore_ValidatesInput(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.ManifestStore().Upsert(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.ManifestStore().Upsert(ctx, &domain.Manifest{}), domain.ErrInvalidInput)
}

func TestManifestStore_ListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	manifests := store.ManifestStore()
	ctx := context.Background()

	older := domain.NewManifest("url:a", "v1", "url", "a")
	require.NoError(t, manifests.Upsert(ctx, older))

	time.Sleep(5 * time.Millisecond)

	newer := domain.NewManifest("url:b", "v1", "url", "b")
	require.NoError(t, manifests.Upsert(ctx, newer))

	list, err := manifests.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "url:b", list[0].SourceID)
	assert.Equal(t, "url:a", list[1].SourceID)

	list, err = manifests.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
