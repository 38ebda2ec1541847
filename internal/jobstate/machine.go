// Package jobstate holds the pure transition rules of the video job lifecycle.
// Nothing here performs I/O: callers apply the returned effects.
package jobstate

import (
	"boothvideo/internal/domain"
)

// Effect is a side effect the dispatcher must perform for a decision.
type Effect int

const (
	EffectSubmit Effect = iota + 1
	EffectRecordTaskID
	EffectRecordResultURL
	EffectTriggerArchival
	EffectRecordFailure
	EffectRecordArchivedFile
	EffectCountArchiveAttempt
)

// Decision is the outcome of feeding one input to the machine.
type Decision struct {
	From    domain.JobState
	Next    domain.JobState
	Effects []Effect
	// Fields holds the ledger fields implied by the decision, for the
	// effects whose values are known without further I/O.
	Fields domain.JobUpdate
}

// Changed reports whether the decision moves the job to another state.
func (d Decision) Changed() bool {
	return d.Next != d.From
}

// Has reports whether e is among the decision's effects.
func (d Decision) Has(e Effect) bool {
	for _, got := range d.Effects {
		if got == e {
			return true
		}
	}
	return false
}

// ArchivalOutcome tags the result of one archival attempt.
type ArchivalOutcome int

const (
	ArchivalSkipped ArchivalOutcome = iota
	ArchivalTriggered
	ArchivalFailed
)

func (o ArchivalOutcome) String() string {
	switch o {
	case ArchivalTriggered:
		return "triggered"
	case ArchivalFailed:
		return "failed"
	default:
		return "skipped"
	}
}

var forward = map[domain.JobState][]domain.JobState{
	domain.JobStateIdle:       {domain.JobStateQueued},
	domain.JobStateQueued:     {domain.JobStateProcessing},
	domain.JobStateProcessing: {domain.JobStateReadyURL, domain.JobStateFailed},
	domain.JobStateReadyURL:   {domain.JobStateDone},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Staying in the same non-terminal state is always legal.
func CanTransition(from, to domain.JobState) bool {
	if from == to {
		return !from.Terminal()
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance maps a processing job and the provider's canonical status to the
// next state. Jobs in any other state are returned unchanged.
func Advance(job domain.Job, status domain.CanonicalStatus) Decision {
	d := Decision{From: job.State, Next: job.State}
	if job.State != domain.JobStateProcessing {
		return d
	}
	switch status.Kind {
	case domain.StatusSucceeded:
		url := status.ResultURL
		d.Next = domain.JobStateReadyURL
		d.Effects = []Effect{EffectRecordResultURL, EffectTriggerArchival}
		d.Fields.ProviderResultURL = &url
	case domain.StatusFailed:
		reason := status.Reason
		if reason == "" {
			reason = "video generation failed"
		}
		d.Next = domain.JobStateFailed
		d.Effects = []Effect{EffectRecordFailure}
		d.Fields.FailureReason = &reason
	}
	return d
}

// Admit promotes an admissible queued job. The task id is only known after
// submission, so Fields stays empty and the caller records it.
func Admit(job domain.Job) Decision {
	d := Decision{From: job.State, Next: job.State}
	if !job.Admissible() {
		return d
	}
	d.Next = domain.JobStateProcessing
	d.Effects = []Effect{EffectSubmit, EffectRecordTaskID}
	return d
}

// Archive maps an archival outcome for a ready job. fileID is only read for
// ArchivalTriggered.
func Archive(job domain.Job, outcome ArchivalOutcome, fileID string) Decision {
	d := Decision{From: job.State, Next: job.State}
	if job.State != domain.JobStateReadyURL {
		return d
	}
	switch outcome {
	case ArchivalTriggered:
		d.Next = domain.JobStateDone
		d.Effects = []Effect{EffectRecordArchivedFile}
		d.Fields.ArchivedFileID = &fileID
	case ArchivalFailed:
		attempts := job.ArchiveAttempts + 1
		d.Effects = []Effect{EffectCountArchiveAttempt}
		d.Fields.ArchiveAttempts = &attempts
	}
	return d
}
