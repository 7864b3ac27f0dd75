package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// recordingDispatcher counts dispatched jobs and optionally fails them.
type recordingDispatcher struct {
	mu    sync.Mutex
	kinds []domain.JobKind
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *domain.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = append(d.kinds, job.Kind)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.kinds)
}

func enqueueTestJob(t *testing.T, jobs *stubJobStore, id string, lane domain.Lane) {
	t.Helper()
	require.NoError(t, jobs.Enqueue(context.Background(), &domain.Job{
		ID:        id,
		Kind:      domain.JobChunkText,
		Lane:      lane,
		NextRunAt: time.Now().UTC().Add(-time.Second),
	}))
}

func TestWorker_ProcessesJobsAndDrains(t *testing.T) {
	jobs := newStubJobStore()
	enqueueTestJob(t, jobs, "job-1", domain.LaneIO)
	enqueueTestJob(t, jobs, "job-2", domain.LaneIO)

	dispatcher := &recordingDispatcher{}
	worker := NewWorker(WorkerConfig{
		Lane:         domain.LaneIO,
		IdleSleep:    time.Millisecond,
		MaxIdlePolls: 2,
	}, jobs, dispatcher)

	require.NoError(t, worker.Run(context.Background()))
	assert.Equal(t, 2, dispatcher.count())

	for _, id := range []string{"job-1", "job-2"} {
		job, err := jobs.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobDone, job.Status)
	}
}

func TestWorker_FailureIsRecorded(t *testing.T) {
	jobs := newStubJobStore()
	enqueueTestJob(t, jobs, "job-1", domain.LaneIO)

	dispatcher := &recordingDispatcher{err: errors.New("handler exploded")}
	worker := NewWorker(WorkerConfig{
		Lane:         domain.LaneIO,
		MaxAttempts:  1,
		IdleSleep:    time.Millisecond,
		MaxIdlePolls: 2,
	}, jobs, dispatcher)

	require.NoError(t, worker.Run(context.Background()))

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "handler exploded", job.LastError)
}

func TestWorker_LaneIsolation(t *testing.T) {
	jobs := newStubJobStore()
	enqueueTestJob(t, jobs, "job-1", domain.LaneFastModel)

	dispatcher := &recordingDispatcher{}
	worker := NewWorker(WorkerConfig{
		Lane:         domain.LaneIO,
		IdleSleep:    time.Millisecond,
		MaxIdlePolls: 2,
	}, jobs, dispatcher)

	require.NoError(t, worker.Run(context.Background()))
	assert.Equal(t, 0, dispatcher.count())

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
}

func TestWorker_StopEndsLoop(t *testing.T) {
	jobs := newStubJobStore()
	worker := NewWorker(WorkerConfig{
		Lane:      domain.LaneIO,
		IdleSleep: time.Millisecond,
	}, jobs, &recordingDispatcher{})

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	worker.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_ContextCancellation(t *testing.T) {
	jobs := newStubJobStore()
	worker := NewWorker(WorkerConfig{
		Lane:      domain.LaneIO,
		IdleSleep: time.Millisecond,
	}, jobs, &recordingDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
