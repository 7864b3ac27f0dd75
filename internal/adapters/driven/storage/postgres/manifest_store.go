package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// manifestStore implements driven.ManifestStore with a JSONB document column.
type manifestStore struct {
	store *Store
}

var _ driven.ManifestStore = (*manifestStore)(nil)

// Upsert writes the full manifest document.
func (s *manifestStore) Upsert(ctx context.Context, m *domain.Manifest) error {
	if m == nil || m.SourceID == "" || m.SourceVersion == "" {
		return domain.ErrInvalidInput
	}

	m.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshalling manifest: %w", err)
	}

	const query = `
		INSERT INTO manifests (source_id, source_version, document, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (source_id, source_version)
		DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.store.db.ExecContext(ctx, query,
		m.SourceID, m.SourceVersion, doc, m.UpdatedAt); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// Get returns the manifest for a source pair.
func (s *manifestStore) Get(ctx context.Context, sourceID, sourceVersion string) (*domain.Manifest, error) {
	var doc []byte
	err := s.store.db.QueryRowContext(ctx, `
		SELECT document FROM manifests WHERE source_id = $1 AND source_version = $2
	`, sourceID, sourceVersion).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning manifest: %w", err)
	}

	var m domain.Manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}
	return &m, nil
}

// List returns all manifests, newest first, up to limit.
func (s *manifestStore) List(ctx context.Context, limit int) ([]domain.Manifest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document FROM manifests ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying manifests: %w", err)
	}
	defer rows.Close()

	var manifests []domain.Manifest //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning manifest: %w", err)
		}
		var m domain.Manifest
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("unmarshaling manifest: %w", err)
		}
		manifests = append(manifests, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating manifests: %w", err)
	}
	return manifests, nil
}
