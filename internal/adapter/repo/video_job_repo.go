package repo

import (
	"context"
	"errors"
	"fmt"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
	"boothvideo/internal/sqlinline"
)

// VideoJobRepositoryPG implements domain.Ledger on the video_jobs table.
type VideoJobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewVideoJobRepository creates a ledger backed by PostgreSQL.
func NewVideoJobRepository(sql infra.SQLExecutor) *VideoJobRepositoryPG {
	return &VideoJobRepositoryPG{sql: sql}
}

// Configured reports whether a database handle is present.
func (r *VideoJobRepositoryPG) Configured() bool {
	return r != nil && r.sql != nil
}

// Migrate creates the ledger tables when they are missing.
func (r *VideoJobRepositoryPG) Migrate(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QSchema); err != nil {
		return fmt.Errorf("repo: migrate: %w", err)
	}
	return nil
}

// ListJobs returns jobs in insertion order, optionally narrowed by state.
func (r *VideoJobRepositoryPG) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	states := make([]string, 0, len(filter.States))
	for _, s := range filter.States {
		states = append(states, string(s))
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListVideoJobs, states)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var (
			job   domain.Job
			state string
		)
		if err := rows.Scan(
			&job.ID,
			&state,
			&job.ProviderTaskID,
			&job.ProviderResultURL,
			&job.ArchivedFileID,
			&job.FailureReason,
			&job.ArchiveAttempts,
			&job.Prompt,
			&job.Resolution,
			&job.Model,
			&job.SourceImageID,
			&job.SessionFolderID,
			&job.UpdatedAt,
		); err != nil {
			return nil, unavailable("scan job", err)
		}
		job.State = domain.ParseJobState(state)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list jobs", err)
	}
	return jobs, nil
}

// UpdateJobState applies a compare-and-swap on the stored state. When no row
// matches it tells a missing job apart from a lost race.
func (r *VideoJobRepositoryPG) UpdateJobState(ctx context.Context, id string, expected, next domain.JobState, fields domain.JobUpdate) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateVideoJobState,
		id,
		string(expected),
		string(next),
		fields.ProviderTaskID,
		fields.ProviderResultURL,
		fields.ArchivedFileID,
		fields.FailureReason,
		fields.ArchiveAttempts,
	)
	if err != nil {
		return unavailable("update job", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectVideoJobState, id).Scan(&current); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("repo: job %s: %w", id, domain.ErrNotFound)
		}
		return unavailable("read job state", err)
	}
	return fmt.Errorf("repo: job %s is %s, expected %s: %w", id, current, expected, domain.ErrStateConflict)
}

// CreateJob inserts a queued job or resets an existing one that is not in flight.
func (r *VideoJobRepositoryPG) CreateJob(ctx context.Context, job domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertVideoJob,
		job.ID,
		job.Prompt,
		job.Resolution,
		job.Model,
		job.SourceImageID,
		job.SessionFolderID,
	)
	if err != nil {
		return unavailable("create job", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("repo: %s: %w", op, errors.Join(domain.ErrLedgerUnavailable, err))
}

var (
	_ domain.Ledger       = (*VideoJobRepositoryPG)(nil)
	_ domain.Configurable = (*VideoJobRepositoryPG)(nil)
)
