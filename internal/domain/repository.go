package domain

import "context"

// Ledger is the durable job store and the single source of truth for job
// records. Implementations never cache between calls.
type Ledger interface {
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)
	// UpdateJobState moves a job from expected to next and writes the non-nil
	// fields. It returns ErrStateConflict when the stored state is not expected.
	UpdateJobState(ctx context.Context, id string, expected, next JobState, fields JobUpdate) error
	CreateJob(ctx context.Context, job Job) error
}

// Provider submits generation requests and reports task status.
type Provider interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	QueryStatus(ctx context.Context, taskID string) (CanonicalStatus, error)
}

// Archiver copies a provider-hosted result into long-term storage and returns
// the archived file id.
type Archiver interface {
	Archive(ctx context.Context, req ArchiveRequest) (string, error)
}

// SubmitRequest is the provider-facing part of a job.
type SubmitRequest struct {
	Model          string
	Prompt         string
	Resolution     string
	SourceImageURL string
}

// ArchiveRequest identifies the result to archive and where it belongs.
type ArchiveRequest struct {
	JobID           string
	VideoURL        string
	SessionFolderID string
}

// Configurable is implemented by collaborators that can be built without
// their endpoint or credentials and must report it before use.
type Configurable interface {
	Configured() bool
}
