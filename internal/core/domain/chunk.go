package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Chunk is one retrievable unit of a document, serialised one JSON object
// per line in chunks/chunks.jsonl.
type Chunk struct {
	// DocID is the owning document, normally the source ID.
	DocID string `json:"doc_id"`

	// SegmentID is unique within the document ("chunk_1", "chunk_2", ...).
	SegmentID string `json:"segment_id"`

	// StartMS and EndMS bound transcript chunks in media time.
	StartMS *int64 `json:"start_ms,omitempty"`
	EndMS   *int64 `json:"end_ms,omitempty"`

	// Speaker tags transcript chunks; "MIXED" when segments from several
	// speakers were merged.
	Speaker string `json:"speaker,omitempty"`

	Text string `json:"text"`

	// SourceRefs carries intake annotations (tags, context, speaker,
	// organization, event_date) and, for ASR chunks, segment_ids.
	SourceRefs map[string]any `json:"source_refs,omitempty"`

	Topics   []string `json:"topics,omitempty"`
	Entities []string `json:"entities,omitempty"`
}

// Embedding is one row of the embeddings table, keyed by (doc_id, segment_id).
type Embedding struct {
	DocID         string
	SegmentID     string
	SourceID      string
	SourceVersion string
	Text          string

	// TextHash is the SHA-256 of Text; matching hashes skip re-embedding.
	TextHash string

	Vector     []float32
	StartMS    *int64
	EndMS      *int64
	Speaker    string
	SourceRefs map[string]any
	CreatedAt  time.Time
}

// TextHash returns the hash used to detect unchanged chunk text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
