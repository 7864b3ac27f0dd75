package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func newTestHandoffService(store *stubMemoryStore, artifacts *stubArtifactStore) *HandoffService {
	return NewHandoffService(HandoffConfig{
		Enabled:            true,
		TurnLimit:          12,
		ResumeIdleMinutes:  60,
		PreCompactionTurns: 8,
	}, store, artifacts)
}

func TestRecordTurn_WritesSessionMemoryAndHandoff(t *testing.T) {
	store := newStubMemoryStore()
	artifacts := newStubArtifactStore()
	svc := newTestHandoffService(store, artifacts)
	ctx := context.Background()

	answer := &domain.Answer{
		Question:  "what does the pipeline do",
		Text:      "It ingests sources and chunks them. Next step is to verify embeddings.",
		Citations: []domain.Citation{{DocID: "url:https://example.com", SegmentID: "chunk_1"}},
	}
	require.NoError(t, svc.RecordTurn(ctx, domain.Scope{SessionID: "s1"}, "what does the pipeline do", answer))

	turns, err := store.ListRecent(ctx, sessionTurnKind, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, domain.MemorySession, turns[0].Type)
	assert.True(t, strings.HasPrefix(turns[0].Text, "Q: what does the pipeline do\nA: "))

	handoff, err := artifacts.ReadRootText(HandoffRelPath)
	require.NoError(t, err)
	assert.Contains(t, handoff, "# Session Handoff")
	assert.Contains(t, handoff, "what does the pipeline do")
	assert.Contains(t, handoff, "Next step is to verify embeddings")
	assert.Contains(t, handoff, "url:https://example.com / chunk_1")
}

func TestRecordTurn_PreCompactionCadence(t *testing.T) {
	store := newStubMemoryStore()
	svc := NewHandoffService(HandoffConfig{
		Enabled:            true,
		PreCompactionTurns: 2,
	}, store, newStubArtifactStore())
	ctx := context.Background()
	scope := domain.Scope{SessionID: "s1"}

	for i := 0; i < 3; i++ {
		answer := &domain.Answer{Text: "answer"}
		require.NoError(t, svc.RecordTurn(ctx, scope, "question", answer))
	}

	checkpoints, err := store.ListRecent(ctx, preCompactionKind, 10)
	require.NoError(t, err)
	assert.Len(t, checkpoints, 1)
	assert.Equal(t, domain.MemoryWorking, checkpoints[0].Type)
}

func TestRecordTurn_Disabled(t *testing.T) {
	store := newStubMemoryStore()
	svc := NewHandoffService(HandoffConfig{Enabled: false}, store, newStubArtifactStore())

	answer := &domain.Answer{Text: "answer"}
	require.NoError(t, svc.RecordTurn(context.Background(), domain.Scope{}, "q", answer))

	turns, err := store.ListRecent(context.Background(), sessionTurnKind, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestInjectResume_OncePerIdleWindow(t *testing.T) {
	artifacts := newStubArtifactStore()
	require.NoError(t, artifacts.WriteRootText(HandoffRelPath, "# Session Handoff\n\ncurrent focus"))

	svc := newTestHandoffService(newStubMemoryStore(), artifacts)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	injected, ok := svc.InjectResume(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, HandoffDocID, injected.DocID)
	assert.Equal(t, 1.05, injected.Score)
	assert.Contains(t, injected.Text, "current focus")

	now = base.Add(5 * time.Minute)
	_, ok = svc.InjectResume(ctx, "s1")
	assert.False(t, ok)

	now = base.Add(70 * time.Minute)
	_, ok = svc.InjectResume(ctx, "s1")
	assert.True(t, ok)
}

func TestInjectResume_SessionsAreIndependent(t *testing.T) {
	artifacts := newStubArtifactStore()
	require.NoError(t, artifacts.WriteRootText(HandoffRelPath, "handoff"))
	svc := newTestHandoffService(newStubMemoryStore(), artifacts)
	ctx := context.Background()

	_, ok := svc.InjectResume(ctx, "s1")
	require.True(t, ok)

	_, ok = svc.InjectResume(ctx, "s2")
	assert.True(t, ok)
}

func TestInjectResume_NoHandoffFile(t *testing.T) {
	svc := newTestHandoffService(newStubMemoryStore(), newStubArtifactStore())

	_, ok := svc.InjectResume(context.Background(), "s1")
	assert.False(t, ok)
}

func TestRenderHandoff_SnapshotCap(t *testing.T) {
	long := strings.Repeat("word ", 400)
	turns := []domain.MemoryItem{{
		Text: "Q: question\nA: " + long,
		SourceRefs: map[string]any{
			"kind":     sessionTurnKind,
			"question": "question",
		},
	}}

	out := renderHandoff(turns)
	start := strings.Index(out, "## Latest Answer\n\n")
	require.GreaterOrEqual(t, start, 0)
	rest := out[start+len("## Latest Answer\n\n"):]
	snapshot, _, _ := strings.Cut(rest, "\n\n")
	assert.LessOrEqual(t, len(strings.TrimSpace(snapshot)), answerSnapshotChars)
}

func TestHandoffStartStop(t *testing.T) {
	svc := NewHandoffService(HandoffConfig{
		Enabled:                   true,
		BackgroundIntervalSeconds: 1,
	}, newStubMemoryStore(), newStubArtifactStore())

	svc.Start(context.Background())
	svc.Stop()
}
