package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// jobStore implements driven.JobStore. Claim uses FOR UPDATE SKIP LOCKED so
// concurrent workers on the same lane never hand out the same job.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

// Enqueue inserts a queued job with zero attempts.
func (s *jobStore) Enqueue(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" || job.Kind == "" || job.Lane == "" {
		return domain.ErrInvalidInput
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Status = domain.JobQueued
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}

	const query = `
		INSERT INTO jobs (job_id, job_type, lane, status, source_id, source_version,
			attempts, next_run_at, locked_until, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NULL, NULL, $8, $9)
	`
	_, err := s.store.db.ExecContext(ctx, query,
		job.ID, string(job.Kind), string(job.Lane), string(job.Status),
		job.SourceID, job.SourceVersion,
		job.NextRunAt.UTC(), job.CreatedAt.UTC(), job.UpdatedAt.UTC())

	if err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// Claim selects the oldest eligible queued job on the lane and leases it.
// Expired leases are reclaimed first with an incremented attempt count.
func (s *jobStore) Claim(ctx context.Context, lane domain.Lane, leaseSeconds int) (*domain.Job, error) {
	now := time.Now().UTC()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, locked_until = NULL, updated_at = $2
		WHERE lane = $3 AND status = $4 AND locked_until IS NOT NULL AND locked_until < $2
	`, string(domain.JobQueued), now, string(lane), string(domain.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("reclaiming expired leases: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT job_id, job_type, lane, status, source_id, source_version,
			attempts, next_run_at, locked_until, last_error, created_at, updated_at
		FROM jobs
		WHERE lane = $1 AND status = $2 AND next_run_at <= $3
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, string(lane), string(domain.JobQueued), now)

	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, err
	}

	lockedUntil := now.Add(time.Duration(leaseSeconds) * time.Second)
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = $1, locked_until = $2, updated_at = $3
		WHERE job_id = $4
	`, string(domain.JobRunning), lockedUntil, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("leasing job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	job.Status = domain.JobRunning
	job.LockedUntil = lockedUntil
	job.UpdatedAt = now
	return job, nil
}

// Complete marks a job done.
func (s *jobStore) Complete(ctx context.Context, jobID string) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, locked_until = NULL, updated_at = $2
		WHERE job_id = $3
	`, string(domain.JobDone), time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// Fail increments attempts and either re-queues with exponential backoff
// or marks the job terminally failed.
func (s *jobStore) Fail(ctx context.Context, jobID, lastError string, maxAttempts int) error {
	now := time.Now().UTC()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var attempts int
	err = tx.QueryRowContext(ctx,
		"SELECT attempts FROM jobs WHERE job_id = $1 FOR UPDATE", jobID).Scan(&attempts)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading job attempts: %w", err)
	}

	attempts++
	if attempts >= maxAttempts {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = $1, attempts = $2, locked_until = NULL,
				last_error = $3, updated_at = $4
			WHERE job_id = $5
		`, string(domain.JobFailed), attempts, lastError, now, jobID)
	} else {
		nextRun := now.Add(domain.RetryBackoff(attempts))
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = $1, attempts = $2, locked_until = NULL,
				last_error = $3, next_run_at = $4, updated_at = $5
			WHERE job_id = $6
		`, string(domain.JobQueued), attempts, lastError, nextRun, now, jobID)
	}
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fail: %w", err)
	}
	return nil
}

// Get returns a job by ID.
func (s *jobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT job_id, job_type, lane, status, source_id, source_version,
			attempts, next_run_at, locked_until, last_error, created_at, updated_at
		FROM jobs WHERE job_id = $1
	`, jobID)
	return scanJob(row)
}

// Counts returns job counts grouped by lane and status.
func (s *jobStore) Counts(ctx context.Context) (map[domain.Lane]map[domain.JobStatus]int, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT lane, status, COUNT(*) FROM jobs GROUP BY lane, status
	`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Lane]map[domain.JobStatus]int)
	for rows.Next() {
		var lane, status string
		var n int
		if err := rows.Scan(&lane, &status, &n); err != nil {
			return nil, fmt.Errorf("scanning job count: %w", err)
		}
		if counts[domain.Lane(lane)] == nil {
			counts[domain.Lane(lane)] = make(map[domain.JobStatus]int)
		}
		counts[domain.Lane(lane)][domain.JobStatus(status)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job counts: %w", err)
	}
	return counts, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans a single job row.
func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var kind, lane, status string
	var lockedUntil sql.NullTime
	var lastError sql.NullString

	if err := row.Scan(&job.ID, &kind, &lane, &status,
		&job.SourceID, &job.SourceVersion, &job.Attempts,
		&job.NextRunAt, &lockedUntil, &lastError,
		&job.CreatedAt, &job.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Lane = domain.Lane(lane)
	job.Status = domain.JobStatus(status)
	if lockedUntil.Valid {
		job.LockedUntil = lockedUntil.Time.UTC()
	}
	if lastError.Valid {
		job.LastError = lastError.String
	}
	job.NextRunAt = job.NextRunAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	return &job, nil
}
