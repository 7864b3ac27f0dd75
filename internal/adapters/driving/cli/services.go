package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/artifact"
	embollama "github.com/aurora-labs/aurora-cli/internal/adapters/driven/embedding/ollama"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/graphsearch"
	llmollama "github.com/aurora-labs/aurora-cli/internal/adapters/driven/llm/ollama"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/longterm"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/media"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/scrape"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/storage/postgres"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/storage/sqlite"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/warehouse"
	"github.com/aurora-labs/aurora-cli/internal/config"
	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driving"
	"github.com/aurora-labs/aurora-cli/internal/core/services"
	"github.com/aurora-labs/aurora-cli/internal/pipeline"
)

// Services used by the commands. Populated by initServices; tests swap in
// their own instances.
var (
	settings *config.Settings

	ingestor    driving.Ingestor
	asker       driving.Asker
	memoryAdmin driving.MemoryAdmin

	jobStore       driven.JobStore
	runLogStore    driven.RunLogStore
	handoffService *services.HandoffService

	// dispatcherFor builds the stage dispatcher for one worker lane. The
	// deep-model lane gets its own LLM client; every other lane shares the
	// fast model.
	dispatcherFor func(lane domain.Lane) services.Dispatcher
)

// backend is what both storage implementations provide.
type backend interface {
	JobStore() driven.JobStore
	ManifestStore() driven.ManifestStore
	EmbeddingStore() driven.EmbeddingStore
	MemoryStore() driven.MemoryStore
	RunLogStore(maxJSONChars, maxErrorChars int) driven.RunLogStore
	Close() error
}

// initServices builds the full service graph from environment settings and
// returns a cleanup closing the storage backend.
func initServices() (func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	settings = cfg

	store, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	artifactRoot, err := expandHome(cfg.ArtifactRoot)
	if err != nil {
		store.Close()
		return nil, err
	}
	artifacts, err := artifact.NewStore(artifactRoot)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}

	jobStore = store.JobStore()
	runLogStore = store.RunLogStore(cfg.RunLogMaxJSONChars, cfg.RunLogMaxErrorChars)
	manifests := store.ManifestStore()
	embeddings := store.EmbeddingStore()
	memories := store.MemoryStore()

	scraper := scrape.NewScraper(scrape.Config{})

	fastLLM := llmollama.NewLLMService(llmollama.LLMConfig{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.FastModel,
		Timeout: time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		Retries: cfg.OllamaRetries,
		Backoff: time.Duration(cfg.OllamaBackoffSeconds * float64(time.Second)),
	})
	deepLLM := llmollama.NewLLMService(llmollama.LLMConfig{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.DeepModel,
		Timeout: time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		Retries: cfg.OllamaRetries,
		Backoff: time.Duration(cfg.OllamaBackoffSeconds * float64(time.Second)),
	})
	embedder := embollama.NewEmbeddingService(embollama.Config{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.EmbeddingModel,
	})

	mediaTimeout := time.Duration(cfg.MediaTimeoutSeconds) * time.Second

	pipeDeps := pipeline.Deps{
		Jobs:        jobStore,
		Manifests:   manifests,
		Artifacts:   artifacts,
		Embeddings:  embeddings,
		RunLog:      runLogStore,
		Scraper:     scraper,
		LLM:         fastLLM,
		Embedder:    embedder,
		Media:       media.NewFetcher(media.FetcherConfig{Binary: cfg.MediaFetchBinary, Timeout: mediaTimeout}),
		Denoiser:    media.NewDenoiser(media.DenoiserConfig{Binary: cfg.MediaFFmpegBinary, Timeout: mediaTimeout}),
		Transcriber: media.NewTranscriber(media.TranscriberConfig{Binary: cfg.MediaWhisperBinary, ModelPath: cfg.MediaWhisperModelPath, Timeout: mediaTimeout}),
	}
	// Speaker stages fail fast on nil deps, so the interfaces are only set
	// when a command is configured.
	if cfg.MediaDiarizeBinary != "" {
		pipeDeps.Diarizer = media.NewDiarizer(cfg.MediaDiarizeBinary, mediaTimeout)
	}
	if cfg.MediaVoiceprintBinary != "" {
		pipeDeps.Voiceprinter = media.NewVoiceprinter(cfg.MediaVoiceprintBinary, mediaTimeout)
	}
	if cfg.WarehouseURL != "" {
		pipeDeps.Warehouse = warehouse.NewPublisher(warehouse.Config{URL: cfg.WarehouseURL, Token: cfg.WarehouseToken})
	}

	pipeCfg := pipeline.Config{
		ChunkMaxWords:        cfg.ChunkMaxWords,
		ChunkOverlapWords:    cfg.ChunkOverlapWords,
		TranscriptChunkChars: cfg.TranscriptChunkChars,
	}
	dispatcherFor = func(lane domain.Lane) services.Dispatcher {
		deps := pipeDeps
		if lane == domain.LaneDeepModel {
			deps.LLM = deepLLM
		}
		return pipeline.New(pipeCfg, deps)
	}

	var longTerm driven.LongTermMemory
	if cfg.LongTermMemoryURL != "" {
		longTerm = longterm.NewClient(longterm.Config{URL: cfg.LongTermMemoryURL, Token: cfg.LongTermMemoryToken})
	}

	memorySvc := services.NewMemoryService(services.MemoryConfig{
		Enabled:               cfg.MemoryEnabled,
		RetrieveLimit:         cfg.MemoryRetrieveLimit,
		FeedbackRetentionDays: cfg.FeedbackRetentionDays,
		FeedbackHistoryLimit:  cfg.FeedbackHistoryLimit,
	}, memories, longTerm)
	memoryAdmin = memorySvc

	feedbackSvc := services.NewFeedbackService(services.FeedbackConfig{
		Enabled:         cfg.FeedbackEnabled,
		HistoryLimit:    cfg.FeedbackHistoryLimit,
		SignalLimit:     cfg.FeedbackSignalLimit,
		CitedBoost:      cfg.FeedbackCitedBoost,
		MissedPenalty:   cfg.FeedbackMissedPenalty,
		MinTokenOverlap: cfg.FeedbackMinTokenOverlap,
	}, memories)

	handoffService = services.NewHandoffService(services.HandoffConfig{
		Enabled:                   cfg.HandoffEnabled,
		TurnLimit:                 cfg.HandoffTurnLimit,
		ResumeIdleMinutes:         cfg.HandoffResumeIdleMinutes,
		BackgroundIntervalSeconds: cfg.HandoffBackgroundInterval,
		PreCompactionTurns:        cfg.HandoffPreCompactionTurns,
	}, memories, artifacts)

	asker = services.NewRetrievalService(
		embeddings,
		memorySvc,
		feedbackSvc,
		handoffService,
		graphsearch.NewSearcher(manifests, artifacts),
		fastLLM,
		runLogStore,
	)

	ingestor = services.NewIngestService(services.IngestConfig{
		PathAllowlist:         cfg.IngestPathAllowlist,
		PathAllowlistEnforced: cfg.IngestPathAllowlistEnforced,
	}, jobStore, manifests, artifacts, scraper)

	return func() { store.Close() }, nil
}

// openBackend routes the DSN: "sqlite://<dir>" opens the embedded backend,
// anything else is a Postgres DSN.
func openBackend(cfg *config.Settings) (backend, error) {
	if dir := cfg.SQLitePath(); dir != "" {
		expanded, err := expandHome(dir)
		if err != nil {
			return nil, err
		}
		store, err := sqlite.NewStore(expanded)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, nil
	}

	store, err := postgres.NewStore(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	return store, nil
}

// expandHome resolves a leading "~" against the current user's home.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
