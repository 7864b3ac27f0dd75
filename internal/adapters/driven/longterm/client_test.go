package longterm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func TestPublish(t *testing.T) {
	var got wireMemory
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/memories", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, Token: "tok"})
	err := client.Publish(context.Background(), &domain.MemoryItem{
		ID:         "mem-1",
		Type:       domain.MemoryLongTerm,
		Text:       "the deploy runbook lives in ops/deploy.md",
		Importance: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", got.ID)
	assert.Equal(t, "long_term", got.Type)
}

func TestRecall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "deploy", r.URL.Query().Get("query"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]wireMemory{
			{ID: "mem-1", Type: "long_term", Text: "deploy runbook", Importance: 0.9},
		})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	items, err := client.Recall(context.Background(), "deploy", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.MemoryLongTerm, items[0].Type)
	assert.Equal(t, "deploy runbook", items[0].Text)
}

func TestRecall_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	_, err := client.Recall(context.Background(), "deploy", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
