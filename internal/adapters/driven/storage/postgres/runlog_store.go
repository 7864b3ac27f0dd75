package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// runLogStore implements driven.RunLogStore. Payload caps are applied here
// so oversized model inputs never reach the database at full size.
type runLogStore struct {
	store    *Store
	maxJSON  int
	maxError int
}

var _ driven.RunLogStore = (*runLogStore)(nil)

// Append persists one trace row, capping payloads first.
func (s *runLogStore) Append(ctx context.Context, entry *domain.RunEntry) error {
	if entry == nil || entry.Component == "" {
		return domain.ErrInvalidInput
	}

	if entry.RunID == "" {
		entry.RunID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO run_log (run_id, created_at, lane, component, model,
			input_json, output_json, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.store.db.ExecContext(ctx, query,
		entry.RunID, entry.CreatedAt.UTC(), string(entry.Lane),
		entry.Component, nullString(entry.Model),
		domain.CapJSON(entry.InputJSON, s.maxJSON),
		domain.CapJSON(entry.OutputJSON, s.maxJSON),
		nullString(domain.CapError(entry.Error, s.maxError)))

	if err != nil {
		return fmt.Errorf("appending run log entry: %w", err)
	}
	return nil
}

// Recent returns the newest rows first, up to limit.
func (s *runLogStore) Recent(ctx context.Context, limit int) ([]domain.RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, created_at, lane, component, model, input_json, output_json, error
		FROM run_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run log: %w", err)
	}
	defer rows.Close()

	var entries []domain.RunEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.RunEntry
		var lane string
		var model, errText sql.NullString
		if err := rows.Scan(&e.RunID, &e.CreatedAt, &lane, &e.Component,
			&model, &e.InputJSON, &e.OutputJSON, &errText); err != nil {
			return nil, fmt.Errorf("scanning run log entry: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.Lane = domain.Lane(lane)
		if model.Valid {
			e.Model = model.String
		}
		if errText.Valid {
			e.Error = errText.String
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run log: %w", err)
	}
	return entries, nil
}
