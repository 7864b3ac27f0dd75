package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// embeddingStore implements driven.EmbeddingStore. Vectors are stored as
// little-endian float32 blobs.
type embeddingStore struct {
	store *Store
}

var _ driven.EmbeddingStore = (*embeddingStore)(nil)

// Upsert inserts or replaces an embedding row keyed by (doc_id, segment_id).
func (s *embeddingStore) Upsert(ctx context.Context, e *domain.Embedding) error {
	if e == nil || e.DocID == "" || e.SegmentID == "" {
		return domain.ErrInvalidInput
	}

	refsJSON, err := json.Marshal(e.SourceRefs)
	if err != nil {
		return fmt.Errorf("marshalling source refs: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO embeddings (doc_id, segment_id, source_id, source_version,
			text, text_hash, vector, start_ms, end_ms, speaker, source_refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, segment_id) DO UPDATE SET
			source_id = excluded.source_id,
			source_version = excluded.source_version,
			text = excluded.text,
			text_hash = excluded.text_hash,
			vector = excluded.vector,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			speaker = excluded.speaker,
			source_refs = excluded.source_refs
	`, e.DocID, e.SegmentID, e.SourceID, e.SourceVersion,
		e.Text, e.TextHash, float32SliceToBytes(e.Vector),
		nullInt64(e.StartMS), nullInt64(e.EndMS), nullString(e.Speaker),
		string(refsJSON), formatTime(e.CreatedAt))

	if err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}
	return nil
}

// Get returns the row for a (doc_id, segment_id) key.
func (s *embeddingStore) Get(ctx context.Context, docID, segmentID string) (*domain.Embedding, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT doc_id, segment_id, source_id, source_version, text, text_hash,
			vector, start_ms, end_ms, speaker, source_refs, created_at
		FROM embeddings WHERE doc_id = ? AND segment_id = ?
	`, docID, segmentID)
	return scanEmbedding(row)
}

// Search returns rows whose text contains the query substring.
func (s *embeddingStore) Search(ctx context.Context, query string, limit int) ([]domain.Embedding, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT doc_id, segment_id, source_id, source_version, text, text_hash,
			vector, start_ms, end_ms, speaker, source_refs, created_at
		FROM embeddings
		WHERE text LIKE ? COLLATE NOCASE
		ORDER BY created_at DESC
		LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var results []domain.Embedding //nolint:prealloc // size unknown from query
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return results, nil
}

// scanEmbedding scans one embedding row.
func scanEmbedding(row rowScanner) (*domain.Embedding, error) {
	var e domain.Embedding
	var vector []byte
	var startMS, endMS sql.NullInt64
	var speaker, refsJSON sql.NullString
	var createdAt string

	if err := row.Scan(&e.DocID, &e.SegmentID, &e.SourceID, &e.SourceVersion,
		&e.Text, &e.TextHash, &vector, &startMS, &endMS, &speaker,
		&refsJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning embedding: %w", err)
	}

	e.Vector = bytesToFloat32Slice(vector)
	if startMS.Valid {
		e.StartMS = &startMS.Int64
	}
	if endMS.Valid {
		e.EndMS = &endMS.Int64
	}
	if speaker.Valid {
		e.Speaker = speaker.String
	}
	if refsJSON.Valid && refsJSON.String != "" && refsJSON.String != "null" {
		if err := json.Unmarshal([]byte(refsJSON.String), &e.SourceRefs); err != nil {
			return nil, fmt.Errorf("unmarshaling source refs: %w", err)
		}
	}
	e.CreatedAt = parseTime(createdAt)

	return &e, nil
}

// nullInt64 returns nil for a nil pointer, otherwise the value.
func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
