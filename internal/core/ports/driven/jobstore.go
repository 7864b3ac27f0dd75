package driven

import (
	"context"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// JobStore is the durable, lane-partitioned work queue.
// Delivery is at-least-once; handlers must be idempotent.
type JobStore interface {
	// Enqueue inserts a queued job with zero attempts. No deduplication:
	// the pipeline relies on handler idempotence.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Claim atomically selects the oldest queued job on the lane whose
	// next_run_at has passed, flips it to running, and leases it for
	// leaseSeconds. Jobs whose lease expired are reclaimable here with an
	// incremented attempt count. Returns nil when no job is eligible.
	Claim(ctx context.Context, lane domain.Lane, leaseSeconds int) (*domain.Job, error)

	// Complete marks a job done.
	Complete(ctx context.Context, jobID string) error

	// Fail increments attempts. At maxAttempts the job becomes failed with
	// lastError recorded; otherwise it is re-queued with exponential backoff.
	Fail(ctx context.Context, jobID, lastError string, maxAttempts int) error

	// Get returns a job by ID.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// Counts returns job counts grouped by lane and status, for the
	// status report.
	Counts(ctx context.Context) (map[domain.Lane]map[domain.JobStatus]int, error)
}
