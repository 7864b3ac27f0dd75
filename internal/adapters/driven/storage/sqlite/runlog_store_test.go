package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func TestRunLogStore_AppendAndRecent(t *testing.T) {
	store := setupTestStore(t)
	runLog := store.RunLogStore(domain.DefaultRunLogJSONChars, domain.DefaultRunLogErrorChars)
	ctx := context.Background()

	entry := &domain.RunEntry{
		Lane:       domain.LaneFastModel,
		Component:  "enrich_chunks",
		Model:      "gpt-oss:20b",
		InputJSON:  `{"chunks": 3}`,
		OutputJSON: `{"enriched": 3}`,
	}
	require.NoError(t, runLog.Append(ctx, entry))
	assert.NotEmpty(t, entry.RunID)

	entries, err := runLog.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "enrich_chunks", entries[0].Component)
	assert.Equal(t, "gpt-oss:20b", entries[0].Model)
	assert.Equal(t, `{"chunks": 3}`, entries[0].InputJSON)
	assert.Empty(t, entries[0].Error)
}

func TestRunLogStore_AppendValidation(t *testing.T) {
	store := setupTestStore(t)
	runLog := store.RunLogStore(0, 0)
	ctx := context.Background()

	assert.ErrorIs(t, runLog.Append(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, runLog.Append(ctx, &domain.RunEntry{}), domain.ErrInvalidInput)
}

func TestRunLogStore_CapsOversizedPayloads(t *testing.T) {
	store := setupTestStore(t)
	runLog := store.RunLogStore(100, 50)
	ctx := context.Background()

	entry := &domain.RunEntry{
		Lane:       domain.LaneDeepModel,
		Component:  "graph_extract_relations",
		InputJSON:  `{"text": "` + strings.Repeat("x", 500) + `"}`,
		OutputJSON: `{"ok": true}`,
		Error:      strings.Repeat("e", 200),
	}
	require.NoError(t, runLog.Append(ctx, entry))

	entries, err := runLog.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var truncated struct {
		Truncated bool   `json:"truncated"`
		Preview   string `json:"preview"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[0].InputJSON), &truncated))
	assert.True(t, truncated.Truncated)
	assert.NotEmpty(t, truncated.Preview)

	// Small payloads pass through untouched.
	assert.Equal(t, `{"ok": true}`, entries[0].OutputJSON)
	assert.Len(t, entries[0].Error, 50)
}

func TestRunLogStore_RecentNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	runLog := store.RunLogStore(0, 0)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, component := range []string{"ingest_url", "chunk_text", "embed_chunks"} {
		require.NoError(t, runLog.Append(ctx, &domain.RunEntry{
			Lane:      domain.LaneIO,
			Component: component,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := runLog.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "embed_chunks", entries[0].Component)
	assert.Equal(t, "chunk_text", entries[1].Component)
}
