package domain

import "time"

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

// Job lifecycle states.
const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// JobKind identifies the stage handler a job dispatches to.
type JobKind string

// Pipeline stage kinds. Each maps to one handler in the registry.
const (
	JobIngestURL        JobKind = "ingest_url"
	JobIngestDoc        JobKind = "ingest_doc"
	JobIngestImage      JobKind = "ingest_image"
	JobIngestYouTube    JobKind = "ingest_youtube"
	JobDenoiseAudio     JobKind = "denoise_audio"
	JobTranscribe       JobKind = "transcribe_whisper"
	JobChunkText        JobKind = "chunk_text"
	JobChunkTranscript  JobKind = "chunk_transcript"
	JobDiarizeAudio     JobKind = "diarize_audio"
	JobVoiceprintEnroll JobKind = "voiceprint_enroll"
	JobVoiceprintMatch  JobKind = "voiceprint_match"
	JobVoiceprintReview JobKind = "voiceprint_review"
	JobEmbedChunks      JobKind = "embed_chunks"
	JobEnrichDoc        JobKind = "enrich_doc"
	JobEnrichChunks     JobKind = "enrich_chunks"
	JobPublishWarehouse JobKind = "publish_snowflake"
	JobGraphOntology    JobKind = "graph_ontology_seed"
	JobGraphEntities    JobKind = "graph_extract_entities"
	JobGraphRelations   JobKind = "graph_extract_relations"
	JobGraphPublish     JobKind = "graph_publish"
)

// Lane names a queue partition whose workers share a resource class.
type Lane string

// Queue lanes.
const (
	LaneIO         Lane = "io"
	LaneFastModel  Lane = "oss20b"
	LaneDeepModel  Lane = "nemotron"
	LaneTranscribe Lane = "transcribe"
)

// Job is one unit of pipeline work, persisted in the jobs table.
// Delivery is at-least-once; handlers must be idempotent.
type Job struct {
	// ID is the unique job identifier (UUID).
	ID string

	// Kind selects the stage handler.
	Kind JobKind

	// Lane partitions the queue by worker resource class.
	Lane Lane

	// Status is the current lifecycle state.
	Status JobStatus

	// SourceID and SourceVersion key the manifest this job operates on.
	SourceID      string
	SourceVersion string

	// Attempts counts delivery attempts. Monotonic.
	Attempts int

	// NextRunAt is the earliest eligible claim time.
	NextRunAt time.Time

	// LockedUntil is the lease expiry while running. Zero when not leased.
	LockedUntil time.Time

	// LastError holds the most recent handler failure.
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RetryBackoff returns the delay before the given attempt number is
// retried: 2, 4, 8, ... seconds (base 2 seconds, exponential).
func RetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		attempts = 16 // cap the shift, ~18h
	}
	return time.Duration(1<<uint(attempts)) * time.Second
}
