package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

type ingestFixture struct {
	svc       *IngestService
	jobs      *stubJobStore
	manifests *stubManifestStore
	artifacts *stubArtifactStore
}

func newIngestFixture(cfg IngestConfig, scraper driven.Scraper) *ingestFixture {
	jobs := newStubJobStore()
	manifests := newStubManifestStore()
	artifacts := newStubArtifactStore()
	return &ingestFixture{
		svc:       NewIngestService(cfg, jobs, manifests, artifacts, scraper),
		jobs:      jobs,
		manifests: manifests,
		artifacts: artifacts,
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestDoc_TextFile(t *testing.T) {
	f := newIngestFixture(IngestConfig{}, &stubScraper{})
	path := writeTempFile(t, "notes.md", "# Notes\n\nthe pipeline works")

	sourceID, sourceVersion, err := f.svc.IngestDoc(context.Background(), path, map[string]any{"tags": []string{"infra"}})
	require.NoError(t, err)

	abs, _ := filepath.Abs(path)
	assert.Equal(t, "file:"+abs, sourceID)
	assert.Equal(t, domain.SourceVersion([]byte("# Notes\n\nthe pipeline works")), sourceVersion)

	assert.True(t, f.artifacts.Exists(sourceID, sourceVersion, "raw/source.md"))

	manifest, err := f.manifests.Get(context.Background(), sourceID, sourceVersion)
	require.NoError(t, err)
	assert.Equal(t, "raw/source.md", manifest.ArtifactPath(domain.ArtifactRawSource))
	assert.Equal(t, map[string]any{"tags": []string{"infra"}}, manifest.Metadata["annotations"])

	enqueued := f.jobs.byKind(domain.JobIngestDoc)
	require.Len(t, enqueued, 1)
	assert.Equal(t, domain.LaneIO, enqueued[0].Lane)
	assert.Equal(t, sourceID, enqueued[0].SourceID)
}

func TestIngestDoc_SameBytesSameVersion(t *testing.T) {
	f := newIngestFixture(IngestConfig{}, &stubScraper{})
	path := writeTempFile(t, "notes.txt", "stable content")

	_, v1, err := f.svc.IngestDoc(context.Background(), path, nil)
	require.NoError(t, err)
	_, v2, err := f.svc.IngestDoc(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestIngestDoc_UnsupportedExtension(t *testing.T) {
	f := newIngestFixture(IngestConfig{}, &stubScraper{})
	path := writeTempFile(t, "binary.exe", "MZ")

	_, _, err := f.svc.IngestDoc(context.Background(), path, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Empty(t, f.jobs.byKind(domain.JobIngestDoc))
}

func TestIngestDoc_ImageRoutesToImageStage(t *testing.T) {
	f := newIngestFixture(IngestConfig{}, &stubScraper{})
	path := writeTempFile(t, "diagram.png", "fake image bytes")

	sourceID, _, err := f.svc.IngestDoc(context.Background(), path, nil)
	require.NoError(t, err)
	assert.True(t, len(f.jobs.byKind(domain.JobIngestImage)) == 1)
	assert.Contains(t, sourceID, "image:")
}

func TestIngestDoc_AllowlistEnforced(t *testing.T) {
	allowed := t.TempDir()
	f := newIngestFixture(IngestConfig{
		PathAllowlist:         []string{allowed},
		PathAllowlistEnforced: true,
	}, &stubScraper{})

	outside := writeTempFile(t, "outside.txt", "content")
	_, _, err := f.svc.IngestDoc(context.Background(), outside, nil)
	assert.ErrorIs(t, err, domain.ErrPathNotAllowed)

	inside := filepath.Join(allowed, "inside.txt")
	require.NoError(t, os.WriteFile(inside, []byte("content"), 0o644))
	_, _, err = f.svc.IngestDoc(context.Background(), inside, nil)
	assert.NoError(t, err)
}

func TestIngestURL(t *testing.T) {
	scraper := &stubScraper{page: &driven.Page{
		Title: "Hello",
		HTML:  "<html><body>Title Hello world</body></html>",
		Text:  "Title Hello world",
	}}
	f := newIngestFixture(IngestConfig{}, scraper)

	sourceID, sourceVersion, err := f.svc.IngestURL(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "url:https://example.com", sourceID)
	assert.Equal(t, domain.SourceVersionText("Title Hello world"), sourceVersion)

	raw, err := f.artifacts.ReadText(sourceID, sourceVersion, "raw/source.html")
	require.NoError(t, err)
	assert.Contains(t, raw, "Title Hello world")

	manifest, err := f.manifests.Get(context.Background(), sourceID, sourceVersion)
	require.NoError(t, err)
	assert.Equal(t, "Hello", manifest.Metadata["title"])

	enqueued := f.jobs.byKind(domain.JobIngestURL)
	require.Len(t, enqueued, 1)
	assert.Equal(t, domain.LaneIO, enqueued[0].Lane)
}

func TestIngestURL_NoOpWhenStageDone(t *testing.T) {
	scraper := &stubScraper{page: &driven.Page{HTML: "<html></html>", Text: "Title Hello world"}}
	f := newIngestFixture(IngestConfig{}, scraper)
	ctx := context.Background()

	sourceID := "url:https://example.com"
	sourceVersion := domain.SourceVersionText("Title Hello world")
	manifest := domain.NewManifest(sourceID, sourceVersion, "url", "https://example.com")
	manifest.SetStepDone(domain.JobIngestURL, nil)
	require.NoError(t, f.manifests.Upsert(ctx, manifest))

	gotID, gotVersion, err := f.svc.IngestURL(ctx, "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, sourceID, gotID)
	assert.Equal(t, sourceVersion, gotVersion)
	assert.Empty(t, f.jobs.byKind(domain.JobIngestURL))
}

func TestIngestYouTube(t *testing.T) {
	f := newIngestFixture(IngestConfig{}, &stubScraper{})

	_, _, err := f.svc.IngestYouTube(context.Background(), "not a url", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	url := "https://www.youtube.com/watch?v=abc123"
	sourceID, sourceVersion, err := f.svc.IngestYouTube(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, "youtube:"+url, sourceID)
	assert.Equal(t, domain.SourceVersion([]byte(url)), sourceVersion)

	enqueued := f.jobs.byKind(domain.JobIngestYouTube)
	require.Len(t, enqueued, 1)
	assert.Equal(t, domain.LaneIO, enqueued[0].Lane)
}
