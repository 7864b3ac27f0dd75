package driven

import (
	"context"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// GenerateOptions tune a single LLM call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	StopWords   []string
}

// LLMService produces text completions. Used by enrichment, graph
// extraction, and answer synthesis. Implementations retry transient
// failures internally with bounded exponential backoff.
type LLMService interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	ModelName() string
}

// EmbeddingService produces vector embeddings for chunk text.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Page is the result of scraping a URL.
type Page struct {
	Title string
	HTML  string
	// Text is the extracted main content, canonicalised.
	Text string
}

// Scraper fetches and extracts web content for ingest_url. Extract runs
// the extraction alone over already-fetched HTML, so the ingest stage can
// reprocess the stored raw page without refetching.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
	Extract(html []byte, url string) (*Page, error)
}

// MediaFetcher downloads source audio for youtube ingests.
type MediaFetcher interface {
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

// Denoiser cleans source audio ahead of transcription.
type Denoiser interface {
	Denoise(ctx context.Context, audio []byte) ([]byte, error)
}

// Transcriber converts denoised audio into timed transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) ([]domain.TranscriptSegment, error)
}

// Diarizer assigns speaker labels to transcript segments.
type Diarizer interface {
	Diarize(ctx context.Context, audio []byte, segments []domain.TranscriptSegment) ([]domain.TranscriptSegment, error)
}

// Voiceprinter produces speaker voice embeddings for enroll and match.
type Voiceprinter interface {
	Fingerprint(ctx context.Context, audio []byte, startMS, endMS int64) ([]float32, error)
}

// WarehousePublisher emits rows to the downstream warehouse. Best-effort:
// errors are captured on the receipt, not raised to the stage.
type WarehousePublisher interface {
	Publish(ctx context.Context, table string, rows []map[string]any) (receipt map[string]any, err error)
}
