// Package config reads process settings from the environment once at
// startup. Knobs are injected into each subsystem's constructor rather
// than being read ad hoc.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Settings holds every recognised environment option.
type Settings struct {
	// PostgresDSN selects the backend. "sqlite://<path>" picks the
	// embedded single-writer backend; anything else goes to Postgres.
	PostgresDSN string `env:"POSTGRES_DSN" envDefault:"sqlite://~/.aurora/data"`

	// ArtifactRoot is the artifact filesystem root.
	ArtifactRoot string `env:"ARTIFACT_ROOT" envDefault:"~/.aurora/artifacts"`

	// Ollama endpoint, models, and client retry policy.
	OllamaBaseURL        string  `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	FastModel            string  `env:"AURORA_FAST_MODEL" envDefault:"gpt-oss:20b"`
	DeepModel            string  `env:"AURORA_DEEP_MODEL" envDefault:"nemotron"`
	EmbeddingModel       string  `env:"AURORA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaTimeoutSeconds int     `env:"OLLAMA_REQUEST_TIMEOUT_SECONDS" envDefault:"120"`
	OllamaRetries        int     `env:"OLLAMA_REQUEST_RETRIES" envDefault:"3"`
	OllamaBackoffSeconds float64 `env:"OLLAMA_REQUEST_BACKOFF_SECONDS" envDefault:"1.5"`

	// Chunking windows.
	ChunkMaxWords        int `env:"CHUNK_MAX_WORDS" envDefault:"200"`
	ChunkOverlapWords    int `env:"CHUNK_OVERLAP_WORDS" envDefault:"20"`
	TranscriptChunkChars int `env:"TRANSCRIPT_CHUNK_CHARS" envDefault:"800"`

	// External media toolchain. Empty diarize/voiceprint commands disable
	// the speaker stages.
	MediaFetchBinary       string `env:"MEDIA_FETCH_BINARY" envDefault:"yt-dlp"`
	MediaFFmpegBinary      string `env:"MEDIA_FFMPEG_BINARY" envDefault:"ffmpeg"`
	MediaWhisperBinary     string `env:"MEDIA_WHISPER_BINARY" envDefault:"whisper-cli"`
	MediaWhisperModelPath  string `env:"MEDIA_WHISPER_MODEL_PATH"`
	MediaDiarizeBinary     string `env:"MEDIA_DIARIZE_BINARY"`
	MediaVoiceprintBinary  string `env:"MEDIA_VOICEPRINT_BINARY"`
	MediaTimeoutSeconds    int    `env:"MEDIA_TIMEOUT_SECONDS" envDefault:"900"`

	// Warehouse ingest endpoint. Empty disables publishing; the publish
	// stages then record skipped receipts.
	WarehouseURL   string `env:"WAREHOUSE_URL"`
	WarehouseToken string `env:"WAREHOUSE_TOKEN"`

	// Remote long-term memory service. Empty keeps memory local-only.
	LongTermMemoryURL   string `env:"LONG_TERM_MEMORY_URL"`
	LongTermMemoryToken string `env:"LONG_TERM_MEMORY_TOKEN"`

	// Run-log payload caps.
	RunLogMaxJSONChars  int `env:"RUN_LOG_MAX_JSON_CHARS" envDefault:"20000"`
	RunLogMaxErrorChars int `env:"RUN_LOG_MAX_ERROR_CHARS" envDefault:"4000"`

	// Memory toggles.
	MemoryEnabled       bool `env:"MEMORY_ENABLED" envDefault:"true"`
	MemoryRetrieveLimit int  `env:"MEMORY_RETRIEVE_LIMIT" envDefault:"6"`

	// Retrieval feedback knobs.
	FeedbackEnabled         bool    `env:"RETRIEVAL_FEEDBACK_ENABLED" envDefault:"true"`
	FeedbackHistoryLimit    int     `env:"RETRIEVAL_FEEDBACK_HISTORY_LIMIT" envDefault:"25"`
	FeedbackSignalLimit     int     `env:"RETRIEVAL_FEEDBACK_SIGNAL_LIMIT" envDefault:"8"`
	FeedbackCitedBoost      float64 `env:"RETRIEVAL_FEEDBACK_CITED_BOOST" envDefault:"0.12"`
	FeedbackMissedPenalty   float64 `env:"RETRIEVAL_FEEDBACK_MISSED_PENALTY" envDefault:"0.08"`
	FeedbackMinTokenOverlap float64 `env:"RETRIEVAL_FEEDBACK_MIN_TOKEN_OVERLAP" envDefault:"0.2"`
	FeedbackRetentionDays   int     `env:"RETRIEVAL_FEEDBACK_RETENTION_DAYS" envDefault:"30"`

	// Context handoff knobs.
	HandoffEnabled            bool `env:"CONTEXT_HANDOFF_ENABLED" envDefault:"true"`
	HandoffTurnLimit          int  `env:"CONTEXT_HANDOFF_TURN_LIMIT" envDefault:"12"`
	HandoffResumeIdleMinutes  int  `env:"CONTEXT_HANDOFF_RESUME_IDLE_MINUTES" envDefault:"60"`
	HandoffBackgroundInterval int  `env:"CONTEXT_HANDOFF_BACKGROUND_INTERVAL_SECONDS" envDefault:"300"`
	HandoffPreCompactionTurns int  `env:"CONTEXT_HANDOFF_PRE_COMPACTION_TURN_COUNT" envDefault:"8"`

	// File ingest allow-list. Paths resolving outside a listed root are
	// rejected when enforcement is on.
	IngestPathAllowlist         []string `env:"AURORA_INGEST_PATH_ALLOWLIST" envSeparator:":"`
	IngestPathAllowlistEnforced bool     `env:"AURORA_INGEST_PATH_ALLOWLIST_ENFORCED" envDefault:"false"`

	// Worker defaults.
	WorkerLeaseSeconds int `env:"WORKER_LEASE_SECONDS" envDefault:"300"`
	WorkerMaxAttempts  int `env:"WORKER_MAX_ATTEMPTS" envDefault:"5"`
	WorkerIdleSleepMS  int `env:"WORKER_IDLE_SLEEP_MS" envDefault:"500"`
}

// Load parses settings from the environment.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &s, nil
}

// SQLitePath returns the embedded database directory when the DSN selects
// sqlite mode, and "" otherwise.
func (s *Settings) SQLitePath() string {
	if path, ok := strings.CutPrefix(s.PostgresDSN, "sqlite://"); ok {
		return path
	}
	return ""
}
