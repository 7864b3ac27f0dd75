package driving

import (
	"context"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// Ingestor accepts new sources: it creates the manifest and enqueues the
// first pipeline stage. Re-ingesting identical content is a no-op.
type Ingestor interface {
	IngestURL(ctx context.Context, url string, annotations map[string]any) (sourceID, sourceVersion string, err error)
	IngestDoc(ctx context.Context, path string, annotations map[string]any) (sourceID, sourceVersion string, err error)
	IngestYouTube(ctx context.Context, url string, annotations map[string]any) (sourceID, sourceVersion string, err error)
}

// Asker runs the retrieval-augmented answering loop.
type Asker interface {
	Ask(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.Answer, error)
}

// MemoryAdmin exposes memory statistics and maintenance to the CLI.
type MemoryAdmin interface {
	Stats(ctx context.Context, scope domain.Scope) (*MemoryStats, error)
	Maintain(ctx context.Context, scope domain.Scope) (*MaintenanceReport, error)
}

// MemoryStats aggregates memory rows for the stats report.
type MemoryStats struct {
	Total    int                       `json:"total"`
	ByType   map[domain.MemoryType]int `json:"by_type"`
	ByKind   map[domain.MemoryKind]int `json:"by_kind"`
	Expired  int                       `json:"expired"`
	Pinned   int                       `json:"pinned"`
	Feedback int                       `json:"feedback"`
}

// MaintenanceReport summarises one maintenance pass.
type MaintenanceReport struct {
	Scanned        int `json:"scanned"`
	DeletedExpired int `json:"deleted_expired"`
	DeletedStale   int `json:"deleted_stale_feedback"`
	DeletedExcess  int `json:"deleted_excess_feedback"`
}
