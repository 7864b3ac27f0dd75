package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// jobStore implements driven.JobStore on the embedded backend.
// Claim safety comes from a serialized transaction plus the single-writer
// connection pool; no application lock is needed.
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

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, job_type, lane, status, source_id, source_version,
			attempts, next_run_at, locked_until, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, NULL, NULL, ?, ?)
	`, job.ID, string(job.Kind), string(job.Lane), string(job.Status),
		job.SourceID, job.SourceVersion,
		formatTime(job.NextRunAt), formatTime(job.CreatedAt), formatTime(job.UpdatedAt))

	if err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// Claim selects the oldest eligible queued job on the lane and leases it.
// Jobs with an expired lease are reclaimed first: reset to queued with an
// incremented attempt count, which is how worker crashes are tolerated.
func (s *jobStore) Claim(ctx context.Context, lane domain.Lane, leaseSeconds int) (*domain.Job, error) {
	now := time.Now().UTC()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Opportunistic lease recovery.
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, attempts = attempts + 1, locked_until = NULL, updated_at = ?
		WHERE lane = ? AND status = ? AND locked_until IS NOT NULL AND locked_until < ?
	`, string(domain.JobQueued), formatTime(now),
		string(lane), string(domain.JobRunning), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("reclaiming expired leases: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT job_id, job_type, lane, status, source_id, source_version,
			attempts, next_run_at, locked_until, last_error, created_at, updated_at
		FROM jobs
		WHERE lane = ? AND status = ? AND next_run_at <= ?
		ORDER BY created_at ASC
		LIMIT 1
	`, string(lane), string(domain.JobQueued), formatTime(now))

	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, err
	}

	lockedUntil := now.Add(time.Duration(leaseSeconds) * time.Second)
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, locked_until = ?, updated_at = ?
		WHERE job_id = ?
	`, string(domain.JobRunning), formatTime(lockedUntil), formatTime(now), job.ID)
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
	now := time.Now().UTC()
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, locked_until = NULL, updated_at = ?
		WHERE job_id = ?
	`, string(domain.JobDone), formatTime(now), jobID)
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
	if err := tx.QueryRowContext(ctx,
		"SELECT attempts FROM jobs WHERE job_id = ?", jobID).Scan(&attempts); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading job attempts: %w", err)
	}

	attempts++
	if attempts >= maxAttempts {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, attempts = ?, locked_until = NULL,
				last_error = ?, updated_at = ?
			WHERE job_id = ?
		`, string(domain.JobFailed), attempts, lastError, formatTime(now), jobID)
	} else {
		nextRun := now.Add(domain.RetryBackoff(attempts))
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, attempts = ?, locked_until = NULL,
				last_error = ?, next_run_at = ?, updated_at = ?
			WHERE job_id = ?
		`, string(domain.JobQueued), attempts, lastError,
			formatTime(nextRun), formatTime(now), jobID)
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
		FROM jobs WHERE job_id = ?
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
	var nextRunAt, createdAt, updatedAt string
	var lockedUntil, lastError sql.NullString

	if err := row.Scan(&job.ID, &kind, &lane, &status,
		&job.SourceID, &job.SourceVersion, &job.Attempts,
		&nextRunAt, &lockedUntil, &lastError, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Lane = domain.Lane(lane)
	job.Status = domain.JobStatus(status)
	job.NextRunAt = parseTime(nextRunAt)
	job.LockedUntil = parseNullableTime(lockedUntil)
	if lastError.Valid {
		job.LastError = lastError.String
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)

	return &job, nil
}
