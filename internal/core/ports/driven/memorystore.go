package driven

import (
	"context"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// MemoryStore persists memory rows. Rows are append-only: conflicting rows
// are superseded (expired and linked), never edited in place. Policy
// (scoring, routing, scope filtering) lives in the memory service; the
// store provides row-level primitives.
type MemoryStore interface {
	// Insert adds a new memory row.
	Insert(ctx context.Context, item *domain.MemoryItem) error

	// Get returns a row by ID, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.MemoryItem, error)

	// Search returns candidate rows whose text, topics, or entities contain
	// the query substring (case-insensitive), newest first, up to limit.
	Search(ctx context.Context, query string, limit int) ([]domain.MemoryItem, error)

	// BySlot returns live rows holding the given (memory_kind, memory_slot).
	BySlot(ctx context.Context, kind domain.MemoryKind, slot string) ([]domain.MemoryItem, error)

	// ListRecent returns rows newest first, up to limit. A non-empty kind
	// restricts to rows whose source_refs.kind matches (used for
	// retrieval_feedback history and maintenance scans).
	ListRecent(ctx context.Context, kind string, limit int) ([]domain.MemoryItem, error)

	// Supersede marks oldID replaced by newID: sets
	// source_refs.superseded_by, appends to revision_timeline, and expires
	// the row at the given time so recall hides it.
	Supersede(ctx context.Context, oldID, newID string, at time.Time) error

	// BumpAccess atomically increments access_count and sets
	// last_accessed_at on the given rows.
	BumpAccess(ctx context.Context, ids []string, at time.Time) error

	// Delete removes rows permanently (maintenance only).
	Delete(ctx context.Context, ids []string) error
}

// LongTermMemory is the remote long-term store. Both operations are
// best-effort: callers capture errors but never fail a local write on them.
type LongTermMemory interface {
	Publish(ctx context.Context, item *domain.MemoryItem) error
	Recall(ctx context.Context, query string, limit int) ([]domain.MemoryItem, error)
}
