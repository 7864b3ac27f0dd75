// Package pipeline dispatches claimed jobs to their stage handlers. Every
// stage follows the same contract: load the manifest, short-circuit when
// the primary output already exists, read declared inputs, do the work,
// commit artifacts and step status to the manifest, enqueue successors,
// and append a run-log entry. Delivery is at-least-once, so every handler
// is idempotent.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// Relative artifact paths under <root>/<safe_source_id>/<source_version>/.
const (
	relCanonicalText  = "text/canonical.txt"
	relSourceAudio    = "audio/source.m4a"
	relDenoisedAudio  = "audio/denoised.wav"
	relSubtitles      = "transcript/source.srt"
	relSegments       = "transcript/segments.jsonl"
	relDiarized       = "transcript/segments_diarized.jsonl"
	relSummaryMD      = "transcript/summary.md"
	relSummaryJSON    = "transcript/summary.json"
	relChunks         = "chunks/chunks.jsonl"
	relDocSummary     = "enrich/doc_summary.json"
	relEnrichedChunks = "enrich/chunks.jsonl"
	relPublishPayload = "publish/chunks.json"
	relPublishReceipt = "publish/receipt.json"
	relOntology       = "graph/ontology.json"
	relEntities       = "graph/entities.jsonl"
	relClaims         = "graph/claims.jsonl"
	relRelations      = "graph/relations.jsonl"
	relInvalid        = "graph/relations_invalid.jsonl"
	relGraphReceipt   = "graph/publish_receipt.json"
	relVoiceprints    = "voiceprint/voiceprints.jsonl"
	relVoiceMatches   = "voiceprint/matches.jsonl"
	relVoiceReview    = "voiceprint/review.json"

	// galleryPath is root-scoped: one gallery shared by every source.
	galleryPath = "voice_gallery.json"
)

// stagePrimary maps each stage to its primary output path. A stage whose
// primary output exists on disk short-circuits. embed_chunks writes only
// database rows, so it short-circuits on the manifest step instead.
var stagePrimary = map[domain.JobKind]string{
	domain.JobIngestURL:        relCanonicalText,
	domain.JobIngestDoc:        relCanonicalText,
	domain.JobIngestImage:      relCanonicalText,
	domain.JobIngestYouTube:    relSourceAudio,
	domain.JobDenoiseAudio:     relDenoisedAudio,
	domain.JobTranscribe:       relSegments,
	domain.JobDiarizeAudio:     relDiarized,
	domain.JobChunkText:        relChunks,
	domain.JobChunkTranscript:  relChunks,
	domain.JobEmbedChunks:      "",
	domain.JobEnrichDoc:        relDocSummary,
	domain.JobEnrichChunks:     relEnrichedChunks,
	domain.JobPublishWarehouse: relPublishReceipt,
	domain.JobGraphOntology:    relOntology,
	domain.JobGraphEntities:    relEntities,
	domain.JobGraphRelations:   relRelations,
	domain.JobGraphPublish:     relGraphReceipt,
	domain.JobVoiceprintEnroll: relVoiceprints,
	domain.JobVoiceprintMatch:  relVoiceMatches,
	domain.JobVoiceprintReview: relVoiceReview,
}

// Config tunes stage behaviour.
type Config struct {
	// ChunkMaxWords and ChunkOverlapWords control the text chunk window.
	ChunkMaxWords     int
	ChunkOverlapWords int

	// TranscriptChunkChars is the merge budget for ASR chunks.
	TranscriptChunkChars int

	// EnrichChunkLimit caps how many chunks a single enrich_chunks run
	// sends to the model.
	EnrichChunkLimit int

	// GraphChunkLimit caps how many chunks feed one extraction prompt.
	GraphChunkLimit int

	// PromptInputChars caps document text inlined into a prompt.
	PromptInputChars int

	// VoiceMatchThreshold is the cosine similarity above which a gallery
	// match is auto-accepted.
	VoiceMatchThreshold float64
}

func (c *Config) applyDefaults() {
	if c.ChunkMaxWords <= 0 {
		c.ChunkMaxWords = 200
	}
	if c.ChunkOverlapWords < 0 || c.ChunkOverlapWords >= c.ChunkMaxWords {
		c.ChunkOverlapWords = 20
	}
	if c.TranscriptChunkChars <= 0 {
		c.TranscriptChunkChars = 800
	}
	if c.EnrichChunkLimit <= 0 {
		c.EnrichChunkLimit = 64
	}
	if c.GraphChunkLimit <= 0 {
		c.GraphChunkLimit = 24
	}
	if c.PromptInputChars <= 0 {
		c.PromptInputChars = 6000
	}
	if c.VoiceMatchThreshold <= 0 {
		c.VoiceMatchThreshold = 0.80
	}
}

// Deps bundles the driven ports the stages need. Stores are required;
// model and media services may be nil, in which case the stages that need
// them fail (or degrade, for enrichment) until they are configured.
type Deps struct {
	Jobs       driven.JobStore
	Manifests  driven.ManifestStore
	Artifacts  driven.ArtifactStore
	Embeddings driven.EmbeddingStore
	RunLog     driven.RunLogStore

	Scraper      driven.Scraper
	LLM          driven.LLMService
	Embedder     driven.EmbeddingService
	Media        driven.MediaFetcher
	Denoiser     driven.Denoiser
	Transcriber  driven.Transcriber
	Diarizer     driven.Diarizer
	Voiceprinter driven.Voiceprinter
	Warehouse    driven.WarehousePublisher
}

// stageOutput is what a handler commits on success.
type stageOutput struct {
	// artifacts maps logical names to the relative paths written.
	artifacts map[string]string

	// detail lands in the manifest step status and the run log.
	detail map[string]any

	// model names the model used, when any.
	model string
}

type stageFunc func(ctx context.Context, job *domain.Job, m *domain.Manifest) (*stageOutput, error)

// Pipeline routes jobs to stage handlers. It implements the worker's
// Dispatcher interface.
type Pipeline struct {
	cfg    Config
	deps   Deps
	stages map[domain.JobKind]stageFunc
	now    func() time.Time
}

// New creates the pipeline with its stage registry.
func New(cfg Config, deps Deps) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{cfg: cfg, deps: deps, now: time.Now}
	p.stages = map[domain.JobKind]stageFunc{
		domain.JobIngestURL:        p.stageIngestURL,
		domain.JobIngestDoc:        p.stageIngestDoc,
		domain.JobIngestImage:      p.stageIngestImage,
		domain.JobIngestYouTube:    p.stageIngestYouTube,
		domain.JobDenoiseAudio:     p.stageDenoiseAudio,
		domain.JobTranscribe:       p.stageTranscribe,
		domain.JobDiarizeAudio:     p.stageDiarizeAudio,
		domain.JobChunkText:        p.stageChunkText,
		domain.JobChunkTranscript:  p.stageChunkTranscript,
		domain.JobEmbedChunks:      p.stageEmbedChunks,
		domain.JobEnrichDoc:        p.stageEnrichDoc,
		domain.JobEnrichChunks:     p.stageEnrichChunks,
		domain.JobPublishWarehouse: p.stagePublishWarehouse,
		domain.JobGraphOntology:    p.stageGraphOntology,
		domain.JobGraphEntities:    p.stageGraphEntities,
		domain.JobGraphRelations:   p.stageGraphRelations,
		domain.JobGraphPublish:     p.stageGraphPublish,
		domain.JobVoiceprintEnroll: p.stageVoiceprintEnroll,
		domain.JobVoiceprintMatch:  p.stageVoiceprintMatch,
		domain.JobVoiceprintReview: p.stageVoiceprintReview,
	}
	return p
}

// Dispatch runs one job through the stage contract.
func (p *Pipeline) Dispatch(ctx context.Context, job *domain.Job) error {
	stage, ok := p.stages[job.Kind]
	if !ok {
		return fmt.Errorf("%w: job kind %q", domain.ErrUnsupportedType, job.Kind)
	}

	manifest, err := p.deps.Manifests.Get(ctx, job.SourceID, job.SourceVersion)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s@%s", domain.ErrManifestMissing, job.SourceID, job.SourceVersion)
	}
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	if p.alreadyDone(job.Kind, manifest) {
		logger.Debug("%s already produced for %s@%s", job.Kind, job.SourceID, job.SourceVersion)
		p.logRun(ctx, job, "", map[string]any{"status": "skipped"}, nil)
		return nil
	}

	out, err := stage(ctx, job, manifest)
	if err != nil {
		p.logRun(ctx, job, "", nil, err)
		return err
	}
	if out == nil {
		out = &stageOutput{}
	}

	for name, rel := range out.artifacts {
		manifest.AddArtifact(name, rel)
	}
	manifest.SetStepDone(job.Kind, out.detail)
	if err := p.deps.Manifests.Upsert(ctx, manifest); err != nil {
		return fmt.Errorf("committing manifest: %w", err)
	}

	if err := p.enqueueSuccessors(ctx, job); err != nil {
		return err
	}

	payload := map[string]any{"status": "done"}
	for k, v := range out.detail {
		payload[k] = v
	}
	p.logRun(ctx, job, out.model, payload, nil)
	return nil
}

// alreadyDone reports whether the stage's primary output exists, making
// re-delivery a no-op.
func (p *Pipeline) alreadyDone(kind domain.JobKind, m *domain.Manifest) bool {
	rel, ok := stagePrimary[kind]
	if !ok {
		return false
	}
	if rel == "" {
		return m.StepDone(kind)
	}
	return p.deps.Artifacts.Exists(m.SourceID, m.SourceVersion, rel)
}

// enqueueSuccessors fans out the DAG edges for the completed stage.
func (p *Pipeline) enqueueSuccessors(ctx context.Context, job *domain.Job) error {
	for _, kind := range domain.Successors(job.Kind) {
		next := &domain.Job{
			ID:            uuid.NewString(),
			Kind:          kind,
			Lane:          domain.LaneFor(kind),
			Status:        domain.JobQueued,
			SourceID:      job.SourceID,
			SourceVersion: job.SourceVersion,
			NextRunAt:     p.now().UTC(),
		}
		if err := p.deps.Jobs.Enqueue(ctx, next); err != nil {
			return fmt.Errorf("enqueuing %s: %w", kind, err)
		}
		logger.Debug("%s -> %s for %s@%s", job.Kind, kind, job.SourceID, job.SourceVersion)
	}
	return nil
}

// logRun appends one run-log entry. Trace failures never fail the stage.
func (p *Pipeline) logRun(ctx context.Context, job *domain.Job, model string, output map[string]any, stageErr error) {
	if p.deps.RunLog == nil {
		return
	}
	input, _ := json.Marshal(map[string]any{
		"job_id":         job.ID,
		"source_id":      job.SourceID,
		"source_version": job.SourceVersion,
		"attempt":        job.Attempts,
	})
	entry := &domain.RunEntry{
		RunID:     uuid.NewString(),
		CreatedAt: p.now().UTC(),
		Lane:      job.Lane,
		Component: string(job.Kind),
		Model:     model,
		InputJSON: string(input),
	}
	if output != nil {
		out, _ := json.Marshal(output)
		entry.OutputJSON = string(out)
	}
	if stageErr != nil {
		entry.Error = stageErr.Error()
	}
	if err := p.deps.RunLog.Append(ctx, entry); err != nil {
		logger.Warn("run log append for %s: %v", job.Kind, err)
	}
}

// readInputText loads a text input artifact registered in the manifest.
// An unregistered or absent artifact is a retryable precondition failure.
func (p *Pipeline) readInputText(m *domain.Manifest, name string) (string, error) {
	rel := m.ArtifactPath(name)
	if rel == "" {
		return "", fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, name, m.SourceID, m.SourceVersion)
	}
	return p.deps.Artifacts.ReadText(m.SourceID, m.SourceVersion, rel)
}

// readInputBytes loads a binary input artifact registered in the manifest.
func (p *Pipeline) readInputBytes(m *domain.Manifest, name string) ([]byte, error) {
	rel := m.ArtifactPath(name)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, name, m.SourceID, m.SourceVersion)
	}
	return p.deps.Artifacts.ReadBytes(m.SourceID, m.SourceVersion, rel)
}

// readChunks loads a chunk JSONL artifact.
func (p *Pipeline) readChunks(m *domain.Manifest, name string) ([]domain.Chunk, error) {
	rel := m.ArtifactPath(name)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, name, m.SourceID, m.SourceVersion)
	}
	var chunks []domain.Chunk
	err := p.deps.Artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
		var c domain.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return fmt.Errorf("decoding chunk row: %w", err)
		}
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// readSegments loads a transcript JSONL artifact.
func (p *Pipeline) readSegments(m *domain.Manifest, name string) ([]domain.TranscriptSegment, error) {
	rel := m.ArtifactPath(name)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, name, m.SourceID, m.SourceVersion)
	}
	var segments []domain.TranscriptSegment
	err := p.deps.Artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
		var s domain.TranscriptSegment
		if err := json.Unmarshal(line, &s); err != nil {
			return fmt.Errorf("decoding transcript row: %w", err)
		}
		segments = append(segments, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// writeJSON marshals a document artifact with indentation.
func (p *Pipeline) writeJSON(m *domain.Manifest, rel string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return p.deps.Artifacts.WriteBytes(m.SourceID, m.SourceVersion, rel, data)
}

// manifestAnnotations returns the intake annotations, if any.
func manifestAnnotations(m *domain.Manifest) map[string]any {
	if m.Metadata == nil {
		return nil
	}
	ann, _ := m.Metadata["annotations"].(map[string]any)
	return ann
}

// annotationRefs copies the intake annotation keys chunk source_refs carry.
func annotationRefs(ann map[string]any) map[string]any {
	if len(ann) == 0 {
		return nil
	}
	refs := make(map[string]any)
	for _, key := range []string{"tags", "context", "speaker", "organization", "event_date"} {
		if v, ok := ann[key]; ok {
			refs[key] = v
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// copyRefs shallow-copies a refs map so chunks do not alias it.
func copyRefs(refs map[string]any) map[string]any {
	if len(refs) == 0 {
		return nil
	}
	out := make(map[string]any, len(refs))
	for k, v := range refs {
		out[k] = v
	}
	return out
}

// stringList coerces an annotation value that may arrive as []string or,
// after a JSON round trip, []any.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// jsonSlice trims model chatter around a JSON object or array.
func jsonSlice(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// head truncates text for prompt inlining.
func head(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}

// rowsOf converts a slice to []any for JSONL serialisation.
func rowsOf[T any](items []T) []any {
	rows := make([]any, len(items))
	for i := range items {
		rows[i] = items[i]
	}
	return rows
}
