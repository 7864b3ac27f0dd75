package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/artifact"
	"github.com/aurora-labs/aurora-cli/internal/adapters/driven/storage/sqlite"
	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/core/services"
)

func TestRootCmd_BareInvocationErrors(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, buf.String(), "Usage:")
}

// stubScraper returns a fixed page for every fetch.
type stubScraper struct {
	page *driven.Page
}

func (s *stubScraper) Scrape(context.Context, string) (*driven.Page, error) {
	return s.page, nil
}

func (s *stubScraper) Extract([]byte, string) (*driven.Page, error) {
	return s.page, nil
}

// stubLLM returns a canned answer text.
type stubLLM struct {
	text string
}

func (l *stubLLM) Generate(context.Context, string, driven.GenerateOptions) (string, error) {
	return l.text, nil
}

func (l *stubLLM) ModelName() string { return "stub-llm" }

// noopDispatcher completes every job without running a stage.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, *domain.Job) error { return nil }

// setupTestServices wires the package service variables against throwaway
// stores and returns a cleanup restoring the previous wiring.
func setupTestServices(t *testing.T) func() {
	t.Helper()

	store, err := sqlite.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}

	artifacts, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("opening artifact store: %v", err)
	}

	scraper := &stubScraper{page: &driven.Page{
		Title: "Release notes",
		HTML:  "<html><body><p>The cache layer now retries on timeout.</p></body></html>",
		Text:  "The cache layer now retries on timeout.",
	}}

	memories := store.MemoryStore()
	memorySvc := services.NewMemoryService(services.MemoryConfig{Enabled: true, RetrieveLimit: 6}, memories, nil)
	feedbackSvc := services.NewFeedbackService(services.FeedbackConfig{
		Enabled:         true,
		HistoryLimit:    25,
		SignalLimit:     8,
		CitedBoost:      0.12,
		MissedPenalty:   0.08,
		MinTokenOverlap: 0.2,
	}, memories)
	handoffSvc := services.NewHandoffService(services.HandoffConfig{
		Enabled:           true,
		TurnLimit:         12,
		ResumeIdleMinutes: 60,
	}, memories, artifacts)

	oldSettings := settings
	oldIngestor := ingestor
	oldAsker := asker
	oldMemoryAdmin := memoryAdmin
	oldJobStore := jobStore
	oldRunLog := runLogStore
	oldHandoff := handoffService
	oldDispatcherFor := dispatcherFor

	settings = nil
	jobStore = store.JobStore()
	runLogStore = store.RunLogStore(0, 0)
	handoffService = handoffSvc
	ingestor = services.NewIngestService(services.IngestConfig{}, jobStore, store.ManifestStore(), artifacts, scraper)
	memoryAdmin = memorySvc
	asker = services.NewRetrievalService(store.EmbeddingStore(), memorySvc, feedbackSvc, handoffSvc, nil,
		&stubLLM{text: "The cache layer retries on timeout [1]."}, runLogStore)
	dispatcherFor = func(domain.Lane) services.Dispatcher { return noopDispatcher{} }

	return func() {
		settings = oldSettings
		ingestor = oldIngestor
		asker = oldAsker
		memoryAdmin = oldMemoryAdmin
		jobStore = oldJobStore
		runLogStore = oldRunLog
		handoffService = oldHandoff
		dispatcherFor = oldDispatcherFor
		_ = store.Close()
	}
}
