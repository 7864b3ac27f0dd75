package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func newTestFeedbackService(store *stubMemoryStore) *FeedbackService {
	return NewFeedbackService(FeedbackConfig{Enabled: true}, store)
}

func TestFeedbackRecord(t *testing.T) {
	store := newStubMemoryStore()
	svc := newTestFeedbackService(store)
	ctx := context.Background()

	evidence := []domain.Evidence{
		{DocID: "doc-a", SegmentID: "chunk_1", Score: 0.5},
		{DocID: "doc-b", SegmentID: "chunk_1", Score: 0.5},
	}
	citations := []domain.Citation{{DocID: "doc-a", SegmentID: "chunk_1"}}

	require.NoError(t, svc.Record(ctx, domain.Scope{}, "aurora roadmap timeline", evidence, citations))

	rows, err := store.ListRecent(ctx, feedbackRefKind, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, domain.MemoryWorking, row.Type)
	assert.Equal(t, 1, row.SourceRefs["cited_count"])
	assert.Equal(t, 1, row.SourceRefs["missed_count"])
	assert.InDelta(t, 0.69, row.Importance, 1e-9)
	assert.Equal(t, []string{"aurora", "roadmap", "timeline"}, row.SourceRefs["query_tokens"])
}

func TestFeedbackRecord_SignalLimit(t *testing.T) {
	store := newStubMemoryStore()
	svc := NewFeedbackService(FeedbackConfig{Enabled: true, SignalLimit: 3}, store)
	ctx := context.Background()

	var evidence []domain.Evidence
	for i := 0; i < 6; i++ {
		evidence = append(evidence, domain.Evidence{DocID: "doc", SegmentID: string(rune('a' + i))})
	}

	require.NoError(t, svc.Record(ctx, domain.Scope{}, "query", evidence, nil))

	rows, err := store.ListRecent(ctx, feedbackRefKind, 10)
	require.NoError(t, err)
	signals := rows[0].SourceRefs["signals"].([]map[string]any)
	assert.Len(t, signals, 3)
}

func TestFeedbackRecord_DisabledOrEmpty(t *testing.T) {
	store := newStubMemoryStore()
	disabled := NewFeedbackService(FeedbackConfig{Enabled: false}, store)
	require.NoError(t, disabled.Record(context.Background(), domain.Scope{}, "q", []domain.Evidence{{DocID: "d"}}, nil))

	enabled := newTestFeedbackService(store)
	require.NoError(t, enabled.Record(context.Background(), domain.Scope{}, "q", nil, nil))

	rows, err := store.ListRecent(context.Background(), feedbackRefKind, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFeedbackApply_RanksCitedAboveMissed(t *testing.T) {
	store := newStubMemoryStore()
	svc := newTestFeedbackService(store)
	ctx := context.Background()

	recorded := []domain.Evidence{
		{DocID: "doc-a", Score: 0.5},
		{DocID: "doc-b", Score: 0.5},
	}
	require.NoError(t, svc.Record(ctx, domain.Scope{}, "aurora roadmap timeline", recorded, []domain.Citation{{DocID: "doc-a"}}))

	fresh := []domain.Evidence{
		{DocID: "doc-a", Score: 0.5},
		{DocID: "doc-b", Score: 0.5},
	}
	require.NoError(t, svc.Apply(ctx, domain.Scope{}, "aurora roadmap timeline", fresh))

	require.NotNil(t, fresh[0].FinalScore)
	require.NotNil(t, fresh[1].FinalScore)
	assert.Greater(t, *fresh[0].FinalScore, *fresh[1].FinalScore)
	assert.Greater(t, *fresh[0].FinalScore, 0.5)
	assert.Less(t, *fresh[1].FinalScore, 0.5)
}

func TestFeedbackApply_RequiresTokenOverlap(t *testing.T) {
	store := newStubMemoryStore()
	svc := newTestFeedbackService(store)
	ctx := context.Background()

	recorded := []domain.Evidence{{DocID: "doc-a", Score: 0.5}}
	require.NoError(t, svc.Record(ctx, domain.Scope{}, "aurora roadmap", recorded, []domain.Citation{{DocID: "doc-a"}}))

	fresh := []domain.Evidence{{DocID: "doc-a", Score: 0.5}}
	require.NoError(t, svc.Apply(ctx, domain.Scope{}, "unrelated kubernetes question", fresh))

	require.NotNil(t, fresh[0].FinalScore)
	assert.Equal(t, 0.5, *fresh[0].FinalScore)
}

func TestFeedbackApply_ClampsAtZero(t *testing.T) {
	store := newStubMemoryStore()
	svc := newTestFeedbackService(store)
	ctx := context.Background()

	recorded := []domain.Evidence{{DocID: "doc-a", Score: 0.01}}
	require.NoError(t, svc.Record(ctx, domain.Scope{}, "aurora roadmap", recorded, nil))

	fresh := []domain.Evidence{{DocID: "doc-a", Score: 0.01}}
	require.NoError(t, svc.Apply(ctx, domain.Scope{}, "aurora roadmap", fresh))

	require.NotNil(t, fresh[0].FinalScore)
	assert.Equal(t, 0.0, *fresh[0].FinalScore)
}

func TestFeedbackApply_ScopeFilter(t *testing.T) {
	store := newStubMemoryStore()
	svc := newTestFeedbackService(store)
	ctx := context.Background()

	scopeA := domain.Scope{SessionID: "s1"}
	recorded := []domain.Evidence{{DocID: "doc-a", Score: 0.5}}
	require.NoError(t, svc.Record(ctx, scopeA, "aurora roadmap", recorded, []domain.Citation{{DocID: "doc-a"}}))

	fresh := []domain.Evidence{{DocID: "doc-a", Score: 0.5}}
	require.NoError(t, svc.Apply(ctx, domain.Scope{SessionID: "s2"}, "aurora roadmap", fresh))

	require.NotNil(t, fresh[0].FinalScore)
	assert.Equal(t, 0.5, *fresh[0].FinalScore)
}
