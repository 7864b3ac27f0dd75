package domain

import "time"

// Step lifecycle states recorded in the manifest.
const (
	StepQueued  = "queued"
	StepRunning = "running"
	StepDone    = "done"
	StepFailed  = "failed"
)

// Canonical artifact names. Values are POSIX-style relative paths under
// <artifact_root>/<safe_source_id>/<source_version>/.
const (
	ArtifactRawSource          = "raw_source"
	ArtifactCanonicalText      = "canonical_text"
	ArtifactSourceAudio        = "source_audio"
	ArtifactDenoisedAudio      = "denoised_audio"
	ArtifactSubtitles          = "subtitles"
	ArtifactTranscriptSegments = "transcript_segments"
	ArtifactDiarizedSegments   = "diarized_segments"
	ArtifactTranscriptSummary  = "transcript_summary"
	ArtifactTranscriptDigest   = "transcript_summary_json"
	ArtifactChunks             = "chunks"
	ArtifactDocSummary         = "doc_summary"
	ArtifactEnrichedChunks     = "enriched_chunks"
	ArtifactGraphOntology      = "graph_ontology"
	ArtifactGraphEntities      = "graph_entities"
	ArtifactGraphRelations     = "graph_relations"
	ArtifactGraphInvalid       = "graph_relations_invalid"
	ArtifactGraphReceipt       = "graph_publish_receipt"
	ArtifactVoiceprints        = "voiceprints"
	ArtifactVoiceMatches       = "voice_matches"
	ArtifactVoiceReview        = "voice_review"
	ArtifactPublishPayload     = "publish_payload"
	ArtifactPublishReceipt     = "publish_receipt"
	ArtifactGraphClaims        = "graph_claims"
)

// StepStatus records one stage's outcome in the manifest.
// A step becomes "done" only after its declared artifacts exist on disk.
type StepStatus struct {
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Manifest is the authoritative per-(source_id, source_version) record of
// produced artifacts and stage statuses. Handlers must not assume any
// artifact exists without consulting it.
type Manifest struct {
	SourceID      string                `json:"source_id"`
	SourceVersion string                `json:"source_version"`
	SourceType    string                `json:"source_type"`
	SourceURI     string                `json:"source_uri"`
	Artifacts     map[string]string     `json:"artifacts"`
	Steps         map[string]StepStatus `json:"steps"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Metadata      map[string]any        `json:"metadata,omitempty"`
	Stats         map[string]any        `json:"stats,omitempty"`
}

// NewManifest creates an empty manifest for a source pair.
func NewManifest(sourceID, sourceVersion, sourceType, sourceURI string) *Manifest {
	return &Manifest{
		SourceID:      sourceID,
		SourceVersion: sourceVersion,
		SourceType:    sourceType,
		SourceURI:     sourceURI,
		Artifacts:     make(map[string]string),
		Steps:         make(map[string]StepStatus),
		UpdatedAt:     time.Now().UTC(),
	}
}

// ArtifactPath returns the relative path registered under the logical name,
// or "" when the artifact has not been produced.
func (m *Manifest) ArtifactPath(name string) string {
	if m == nil || m.Artifacts == nil {
		return ""
	}
	return m.Artifacts[name]
}

// AddArtifact registers an artifact under its logical name.
func (m *Manifest) AddArtifact(name, relPath string) {
	if m.Artifacts == nil {
		m.Artifacts = make(map[string]string)
	}
	m.Artifacts[name] = relPath
}

// SetStepDone marks a stage complete. Callers must only do this after the
// stage's artifacts have been written.
func (m *Manifest) SetStepDone(stage JobKind, detail map[string]any) {
	if m.Steps == nil {
		m.Steps = make(map[string]StepStatus)
	}
	m.Steps[string(stage)] = StepStatus{
		Status:      StepDone,
		CompletedAt: time.Now().UTC(),
		Detail:      detail,
	}
	m.UpdatedAt = time.Now().UTC()
}

// SetStepFailed records a stage failure without touching artifacts.
func (m *Manifest) SetStepFailed(stage JobKind, errMsg string) {
	if m.Steps == nil {
		m.Steps = make(map[string]StepStatus)
	}
	m.Steps[string(stage)] = StepStatus{
		Status: StepFailed,
		Error:  errMsg,
	}
	m.UpdatedAt = time.Now().UTC()
}

// StepDone reports whether a stage has completed.
func (m *Manifest) StepDone(stage JobKind) bool {
	if m == nil || m.Steps == nil {
		return false
	}
	return m.Steps[string(stage)].Status == StepDone
}
