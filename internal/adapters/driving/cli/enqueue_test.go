package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueURLCmd_Use(t *testing.T) {
	assert.Equal(t, "enqueue-url [url]", enqueueURLCmd.Use)
	assert.Equal(t, "enqueue-doc [path]", enqueueDocCmd.Use)
	assert.Equal(t, "enqueue-youtube [url]", enqueueYouTubeCmd.Use)
}

func TestEnqueueURLCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"enqueue-url"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestEnqueueURLCmd_HasAnnotationFlags(t *testing.T) {
	for _, name := range []string{"tags", "context", "speaker", "organization", "event-date"} {
		assert.NotNil(t, enqueueURLCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}

func TestEnqueueURLCmd_QueuesSource(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"enqueue-url", "https://example.test/notes"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Queued url:https://example.test/notes@")
}

func TestEnqueueURLCmd_ReingestIsIdempotent(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"enqueue-url", "https://example.test/notes"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	require.NoError(t, rootCmd.Execute())

	// The same source and version comes back without a second job.
	assert.Contains(t, buf.String(), "Queued url:https://example.test/notes@")
}

func TestEnqueueCmd_ErrorsWhenNotConfigured(t *testing.T) {
	oldIngestor := ingestor
	ingestor = nil
	defer func() { ingestor = oldIngestor }()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"enqueue-url", "https://example.test"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestEnqueueAnnotations_EmptyFlagsReturnNil(t *testing.T) {
	oldTags, oldContext := enqueueTags, enqueueContext
	oldSpeaker, oldOrg, oldDate := enqueueSpeaker, enqueueOrganization, enqueueEventDate
	defer func() {
		enqueueTags, enqueueContext = oldTags, oldContext
		enqueueSpeaker, enqueueOrganization, enqueueEventDate = oldSpeaker, oldOrg, oldDate
	}()

	enqueueTags = nil
	enqueueContext, enqueueSpeaker, enqueueOrganization, enqueueEventDate = "", "", "", ""
	assert.Nil(t, enqueueAnnotations())

	enqueueTags = []string{"meeting", "q3"}
	enqueueSpeaker = "Alice"
	annotations := enqueueAnnotations()
	assert.Equal(t, []any{"meeting", "q3"}, annotations["tags"])
	assert.Equal(t, "Alice", annotations["speaker"])
}
