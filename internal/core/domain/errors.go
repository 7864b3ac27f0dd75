package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown source kind or job type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrRetryable marks a stage failure that should be retried with backoff.
	// Precondition failures (manifest or input artifact missing) wrap this.
	ErrRetryable = errors.New("retryable failure")

	// ErrManifestMissing indicates the manifest for a (source_id, source_version)
	// pair does not exist yet. Stages treat this as retryable.
	ErrManifestMissing = errors.New("manifest missing")

	// ErrArtifactMissing indicates a declared input artifact is absent on disk.
	// Stages treat this as retryable.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrPathNotAllowed indicates a file ingest path resolves outside the
	// configured allow-list roots.
	ErrPathNotAllowed = errors.New("path not allowed")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Enrichment and answer synthesis fall back to degraded output.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Semantic retrieval is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrMemoryDisabled indicates the memory subsystem is switched off.
	ErrMemoryDisabled = errors.New("memory disabled")
)

// Retryable reports whether err should be retried by the worker.
func Retryable(err error) bool {
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrManifestMissing) ||
		errors.Is(err, ErrArtifactMissing)
}
