package warehouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody publishRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"batch_id": "b-42", "accepted": 2}`))
	}))
	defer server.Close()

	publisher := NewPublisher(Config{URL: server.URL, Token: "secret"})
	receipt, err := publisher.Publish(context.Background(), "chunks", []map[string]any{
		{"segment_id": "chunk_1"},
		{"segment_id": "chunk_2"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/tables/chunks", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "chunks", gotBody.Table)
	assert.Len(t, gotBody.Rows, 2)

	assert.Equal(t, "b-42", receipt["batch_id"])
	assert.Equal(t, http.StatusOK, receipt["status"])
}

func TestPublish_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	publisher := NewPublisher(Config{URL: server.URL})
	_, err := publisher.Publish(context.Background(), "chunks", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}
