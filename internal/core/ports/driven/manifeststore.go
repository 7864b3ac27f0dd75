package driven

import (
	"context"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// ManifestStore persists the per-(source_id, source_version) manifest.
// Upsert is last-writer-wins; handlers only append keys they own.
type ManifestStore interface {
	// Upsert writes the full manifest document.
	Upsert(ctx context.Context, m *domain.Manifest) error

	// Get returns the manifest for a source pair, or domain.ErrNotFound.
	Get(ctx context.Context, sourceID, sourceVersion string) (*domain.Manifest, error)

	// List returns all manifests, newest first, up to limit.
	List(ctx context.Context, limit int) ([]domain.Manifest, error)
}

// EmbeddingStore persists chunk embeddings keyed by (doc_id, segment_id).
type EmbeddingStore interface {
	// Upsert inserts or replaces an embedding row.
	Upsert(ctx context.Context, e *domain.Embedding) error

	// Get returns the row for a key, or domain.ErrNotFound.
	Get(ctx context.Context, docID, segmentID string) (*domain.Embedding, error)

	// Search returns rows whose text contains the query substring,
	// case-insensitive, up to limit.
	Search(ctx context.Context, query string, limit int) ([]domain.Embedding, error)
}

// RunLogStore is the bounded structured trace of stage invocations.
// Implementations apply the configured payload caps before persisting.
type RunLogStore interface {
	Append(ctx context.Context, entry *domain.RunEntry) error
	Recent(ctx context.Context, limit int) ([]domain.RunEntry, error)
}
