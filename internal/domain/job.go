package domain

import "time"

// JobState enumerates the video job lifecycle.
type JobState string

const (
	JobStateIdle       JobState = "idle"
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateReadyURL   JobState = "ready_url"
	JobStateDone       JobState = "done"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether no further transition may leave s.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// Submitted reports whether a job in state s must carry a provider task id.
func (s JobState) Submitted() bool {
	switch s {
	case JobStateProcessing, JobStateReadyURL, JobStateDone, JobStateFailed:
		return true
	default:
		return false
	}
}

// ParseJobState maps a stored value to a JobState. Empty and unknown values
// are treated as idle.
func ParseJobState(raw string) JobState {
	switch s := JobState(raw); s {
	case JobStateQueued, JobStateProcessing, JobStateReadyURL, JobStateDone, JobStateFailed:
		return s
	default:
		return JobStateIdle
	}
}

const (
	Resolution480p = "480p"
	Resolution720p = "720p"

	DefaultPrompt     = "Cinematic slow motion, high quality"
	DefaultResolution = Resolution480p
	DefaultModel      = "seedance-1-0-pro-fast-251015"
)

// NormalizeResolution returns r when it is a supported resolution and the
// default otherwise.
func NormalizeResolution(r string) string {
	if r == Resolution480p || r == Resolution720p {
		return r
	}
	return DefaultResolution
}

// Job is one photo-to-video request. ID equals the source photo's ledger id.
type Job struct {
	ID                string
	State             JobState
	ProviderTaskID    string
	ProviderResultURL string
	ArchivedFileID    string
	FailureReason     string
	ArchiveAttempts   int
	Prompt            string
	Resolution        string
	Model             string
	SourceImageID     string
	SessionFolderID   string
	UpdatedAt         time.Time
}

// Admissible reports whether a queued job carries enough data to be submitted.
func (j Job) Admissible() bool {
	return j.State == JobStateQueued && j.SourceImageID != ""
}

// NeedsArchival reports whether a ready job still lacks a durable copy.
func (j Job) NeedsArchival(maxAttempts int) bool {
	return j.State == JobStateReadyURL &&
		j.ArchivedFileID == "" &&
		j.ProviderResultURL != "" &&
		j.ArchiveAttempts < maxAttempts
}

// JobUpdate lists the fields written alongside a state change. Nil fields
// are left untouched by the ledger.
type JobUpdate struct {
	ProviderTaskID    *string
	ProviderResultURL *string
	ArchivedFileID    *string
	FailureReason     *string
	ArchiveAttempts   *int
}

// JobFilter narrows ListJobs. An empty filter returns every job.
type JobFilter struct {
	States []JobState
}

// Matches reports whether j passes the filter.
func (f JobFilter) Matches(j Job) bool {
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if j.State == s {
			return true
		}
	}
	return false
}
