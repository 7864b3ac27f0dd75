// Package postgres is the shared-deployment storage backend. It mirrors the
// sqlite backend's sub-store layout but relies on row locks instead of a
// single-writer pool, so multiple worker processes can claim concurrently.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver

	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// Store is the Postgres backend. All sub-store views share one pool.
type Store struct {
	db *sql.DB
}

var openDB = sql.Open

// NewStore connects, pings, and ensures the schema exists.
func NewStore(dsn string) (*Store, error) {
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// JobStore returns a JobStore interface backed by this store.
func (s *Store) JobStore() driven.JobStore {
	return &jobStore{store: s}
}

// ManifestStore returns a ManifestStore interface backed by this store.
func (s *Store) ManifestStore() driven.ManifestStore {
	return &manifestStore{store: s}
}

// EmbeddingStore returns an EmbeddingStore interface backed by this store.
func (s *Store) EmbeddingStore() driven.EmbeddingStore {
	return &embeddingStore{store: s}
}

// MemoryStore returns a MemoryStore interface backed by this store.
func (s *Store) MemoryStore() driven.MemoryStore {
	return &memoryStore{store: s}
}

// RunLogStore returns a RunLogStore interface backed by this store.
// Payload caps are applied before persisting.
func (s *Store) RunLogStore(maxJSONChars, maxErrorChars int) driven.RunLogStore {
	return &runLogStore{store: s, maxJSON: maxJSONChars, maxError: maxErrorChars}
}

// schema is applied idempotently on startup. One schema serves every
// deployment; there is no tenant split at the database level.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id         TEXT PRIMARY KEY,
	job_type       TEXT NOT NULL,
	lane           TEXT NOT NULL,
	status         TEXT NOT NULL,
	source_id      TEXT NOT NULL DEFAULT '',
	source_version TEXT NOT NULL DEFAULT '',
	attempts       INTEGER NOT NULL DEFAULT 0,
	next_run_at    TIMESTAMPTZ NOT NULL,
	locked_until   TIMESTAMPTZ,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (lane, status, next_run_at, created_at);

CREATE TABLE IF NOT EXISTS manifests (
	source_id      TEXT NOT NULL,
	source_version TEXT NOT NULL,
	document       JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_id, source_version)
);

CREATE TABLE IF NOT EXISTS embeddings (
	doc_id         TEXT NOT NULL,
	segment_id     TEXT NOT NULL,
	source_id      TEXT NOT NULL DEFAULT '',
	source_version TEXT NOT NULL DEFAULT '',
	text           TEXT NOT NULL,
	text_hash      TEXT NOT NULL,
	vector         BYTEA,
	start_ms       BIGINT,
	end_ms         BIGINT,
	speaker        TEXT,
	source_refs    JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (doc_id, segment_id)
);

CREATE TABLE IF NOT EXISTS memory_items (
	memory_id        TEXT PRIMARY KEY,
	memory_type      TEXT NOT NULL,
	text             TEXT NOT NULL,
	topics           JSONB,
	entities         JSONB,
	source_refs      JSONB,
	importance       DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ,
	expires_at       TIMESTAMPTZ,
	pinned_until     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_created ON memory_items (created_at DESC);

CREATE TABLE IF NOT EXISTS run_log (
	run_id      TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	lane        TEXT NOT NULL DEFAULT '',
	component   TEXT NOT NULL,
	model       TEXT,
	input_json  TEXT NOT NULL DEFAULT '',
	output_json TEXT NOT NULL DEFAULT '',
	error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_run_log_created ON run_log (created_at DESC);
`

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullTime returns nil for zero times, otherwise the UTC value.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// nullTimePtr returns nil for a nil pointer, otherwise the UTC value.
func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullInt64 returns nil for a nil pointer, otherwise the value.
func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
