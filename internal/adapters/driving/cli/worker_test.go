package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerCmd_Use(t *testing.T) {
	assert.Equal(t, "worker", workerCmd.Use)
	assert.Equal(t, "io", workerCmd.Flags().Lookup("lane").DefValue)
}

func TestWorkerCmd_RejectsUnknownLane(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"worker", "--lane", "gpu"})
	defer func() {
		rootCmd.SetArgs(nil)
		workerLane = "io"
	}()

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lane")
}

func TestWorkerCmd_DrainsEmptyLane(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"worker", "--lane", "io", "--drain"})
	defer func() {
		rootCmd.SetArgs(nil)
		workerDrain = false
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Worker stopped.")
}

func TestWorkerCmd_DrainProcessesQueuedJob(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"enqueue-url", "https://example.test/notes"})
	require.NoError(t, rootCmd.Execute())

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"worker", "--lane", "io", "--drain"})
	defer func() {
		rootCmd.SetArgs(nil)
		workerDrain = false
	}()

	require.NoError(t, rootCmd.Execute())

	// The noop dispatcher completes the job, so the queue ends empty.
	statusBuf := new(bytes.Buffer)
	rootCmd.SetOut(statusBuf)
	rootCmd.SetArgs([]string{"status"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, statusBuf.String(), "done=1")
}

func TestWorkerCmd_ErrorsWhenNotConfigured(t *testing.T) {
	oldJobStore := jobStore
	oldDispatcherFor := dispatcherFor
	jobStore = nil
	dispatcherFor = nil
	defer func() {
		jobStore = oldJobStore
		dispatcherFor = oldDispatcherFor
	}()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"worker"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
