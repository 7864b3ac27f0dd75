package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

func TestNewStore_ErrorHandling(t *testing.T) {
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	dbPath := filepath.Join(tempDir, "aurora.db")
	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)

	assert.NoError(t, store.db.Ping())
}

func TestNewStore_MigrationsIdempotent(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Re-opening the same file must not re-run applied migrations.
	store, err = NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	var version int
	err = store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestTimeFormat_SortsLexicographically(t *testing.T) {
	// The claim query orders by the stored created_at string, so formatted
	// timestamps must sort the same as the times they encode.
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	earlier := formatTime(base)
	later := formatTime(base.Add(500 * time.Nanosecond))
	latest := formatTime(base.Add(2 * time.Second))

	assert.Less(t, earlier, later)
	assert.Less(t, later, latest)
}

func TestParseTime_RoundTrip(t *testing.T) {
	now := time.Now().UTC()
	parsed := parseTime(formatTime(now))
	assert.True(t, now.Equal(parsed))
}

func TestFloat32SliceRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.25, 0}
	assert.Equal(t, vec, bytesToFloat32Slice(float32SliceToBytes(vec)))

	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
