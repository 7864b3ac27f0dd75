package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// memoryStore implements driven.MemoryStore. Rows are append-only;
// supersede expires the old row and links it to its replacement.
type memoryStore struct {
	store *Store
}

var _ driven.MemoryStore = (*memoryStore)(nil)

const memoryColumns = `memory_id, memory_type, text, topics, entities, source_refs,
	importance, confidence, access_count, last_accessed_at, expires_at, pinned_until, created_at`

// Insert adds a new memory row.
func (s *memoryStore) Insert(ctx context.Context, item *domain.MemoryItem) error {
	if item == nil || item.ID == "" || item.Text == "" {
		return domain.ErrInvalidInput
	}

	topicsJSON, err := json.Marshal(item.Topics)
	if err != nil {
		return fmt.Errorf("marshalling topics: %w", err)
	}
	entitiesJSON, err := json.Marshal(item.Entities)
	if err != nil {
		return fmt.Errorf("marshalling entities: %w", err)
	}
	refsJSON, err := json.Marshal(item.SourceRefs)
	if err != nil {
		return fmt.Errorf("marshalling source refs: %w", err)
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO memory_items (`+memoryColumns+`)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11, $12, $13)
	`, item.ID, string(item.Type), item.Text,
		topicsJSON, entitiesJSON, refsJSON,
		item.Importance, item.Confidence, item.AccessCount,
		nullTime(item.LastAccessedAt),
		nullTimePtr(item.ExpiresAt), nullTimePtr(item.PinnedUntil),
		item.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

// Get returns a row by ID.
func (s *memoryStore) Get(ctx context.Context, id string) (*domain.MemoryItem, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_items WHERE memory_id = $1`, id)
	return scanMemory(row)
}

// Search returns candidate rows whose text, topics, or entities contain the
// query substring, newest first.
func (s *memoryStore) Search(ctx context.Context, query string, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memory_items
		WHERE text ILIKE $1 OR topics::text ILIKE $1 OR entities::text ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// BySlot returns live rows holding the given (memory_kind, memory_slot).
func (s *memoryStore) BySlot(ctx context.Context, kind domain.MemoryKind, slot string) ([]domain.MemoryItem, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memory_items
		WHERE source_refs->>'memory_kind' = $1
			AND source_refs->>'memory_slot' = $2
			AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC
	`, string(kind), slot, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("querying memories by slot: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// ListRecent returns rows newest first. A non-empty kind restricts to rows
// whose source_refs.kind matches.
func (s *memoryStore) ListRecent(ctx context.Context, kind string, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT `+memoryColumns+` FROM memory_items
			ORDER BY created_at DESC LIMIT $1
		`, limit)
	} else {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT `+memoryColumns+` FROM memory_items
			WHERE source_refs->>'kind' = $1
			ORDER BY created_at DESC LIMIT $2
		`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// Supersede marks oldID replaced by newID: links superseded_by, appends to
// the revision timeline, and expires the row so recall hides it.
func (s *memoryStore) Supersede(ctx context.Context, oldID, newID string, at time.Time) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning supersede transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var refsJSON []byte
	err = tx.QueryRowContext(ctx,
		"SELECT source_refs FROM memory_items WHERE memory_id = $1 FOR UPDATE", oldID).Scan(&refsJSON)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading memory refs: %w", err)
	}

	refs := make(map[string]any)
	if len(refsJSON) > 0 && string(refsJSON) != "null" {
		if err := json.Unmarshal(refsJSON, &refs); err != nil {
			return fmt.Errorf("unmarshaling memory refs: %w", err)
		}
	}

	refs["superseded_by"] = newID
	timeline, _ := refs["revision_timeline"].([]any)
	timeline = append(timeline, map[string]any{
		"superseded_by": newID,
		"at":            at.UTC().Format(time.RFC3339),
	})
	refs["revision_timeline"] = timeline

	updated, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshalling memory refs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memory_items SET source_refs = $1::jsonb, expires_at = $2
		WHERE memory_id = $3
	`, updated, at.UTC(), oldID)
	if err != nil {
		return fmt.Errorf("superseding memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing supersede: %w", err)
	}
	return nil
}

// BumpAccess atomically increments access_count and sets last_accessed_at.
func (s *memoryStore) BumpAccess(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE memory_items
		SET access_count = access_count + 1, last_accessed_at = $1
		WHERE memory_id IN (`+placeholders(2, len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("bumping memory access: %w", err)
	}
	return nil
}

// Delete removes rows permanently.
func (s *memoryStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM memory_items WHERE memory_id IN ("+placeholders(1, len(ids))+")", args...)
	if err != nil {
		return fmt.Errorf("deleting memories: %w", err)
	}
	return nil
}

// placeholders renders "$start, $start+1, ..." for n parameters.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

// scanMemory scans a single memory row.
func scanMemory(row rowScanner) (*domain.MemoryItem, error) {
	var item domain.MemoryItem
	var memType string
	var topicsJSON, entitiesJSON, refsJSON []byte
	var lastAccessed, expiresAt, pinnedUntil sql.NullTime

	if err := row.Scan(&item.ID, &memType, &item.Text,
		&topicsJSON, &entitiesJSON, &refsJSON,
		&item.Importance, &item.Confidence, &item.AccessCount,
		&lastAccessed, &expiresAt, &pinnedUntil, &item.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning memory: %w", err)
	}

	item.Type = domain.MemoryType(memType)
	if len(topicsJSON) > 0 && string(topicsJSON) != "null" {
		if err := json.Unmarshal(topicsJSON, &item.Topics); err != nil {
			return nil, fmt.Errorf("unmarshaling topics: %w", err)
		}
	}
	if len(entitiesJSON) > 0 && string(entitiesJSON) != "null" {
		if err := json.Unmarshal(entitiesJSON, &item.Entities); err != nil {
			return nil, fmt.Errorf("unmarshaling entities: %w", err)
		}
	}
	if len(refsJSON) > 0 && string(refsJSON) != "null" {
		if err := json.Unmarshal(refsJSON, &item.SourceRefs); err != nil {
			return nil, fmt.Errorf("unmarshaling source refs: %w", err)
		}
	}
	if lastAccessed.Valid {
		item.LastAccessedAt = lastAccessed.Time.UTC()
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		item.ExpiresAt = &t
	}
	if pinnedUntil.Valid {
		t := pinnedUntil.Time.UTC()
		item.PinnedUntil = &t
	}
	item.CreatedAt = item.CreatedAt.UTC()

	return &item, nil
}

// scanMemories scans multiple memory rows.
func scanMemories(rows *sql.Rows) ([]domain.MemoryItem, error) {
	var items []domain.MemoryItem //nolint:prealloc // size unknown from query
	for rows.Next() {
		item, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return items, nil
}
