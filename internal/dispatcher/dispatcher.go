// Package dispatcher runs the tick: a stateless pass over the ledger that
// polls submitted jobs, admits queued ones under the concurrency cap and
// archives finished videos. Every decision is derived from a fresh snapshot,
// and every write is a compare-and-swap on the state read in that snapshot.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
	"boothvideo/internal/jobstate"
)

const (
	DefaultMaxConcurrent      = 5
	DefaultWorkers            = 4
	DefaultMaxArchiveAttempts = 3
	DefaultSourceURLFormat    = "https://drive.google.com/uc?export=download&id=%s"

	recordTimeout = 15 * time.Second
)

// Options wires a Dispatcher. Archiver may be nil, in which case archival is
// skipped and ready jobs stay in ready_url.
type Options struct {
	Ledger             domain.Ledger
	Provider           domain.Provider
	Archiver           domain.Archiver
	MaxConcurrent      int
	Workers            int
	MaxArchiveAttempts int
	SourceURLFormat    string
	DefaultModel       string
	Logger             *infra.Logger
}

type Dispatcher struct {
	ledger             domain.Ledger
	provider           domain.Provider
	archiver           domain.Archiver
	maxConcurrent      int
	workers            int
	maxArchiveAttempts int
	sourceURLFormat    string
	defaultModel       string
	logger             *infra.Logger
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		ledger:             opts.Ledger,
		provider:           opts.Provider,
		archiver:           opts.Archiver,
		maxConcurrent:      opts.MaxConcurrent,
		workers:            opts.Workers,
		maxArchiveAttempts: opts.MaxArchiveAttempts,
		sourceURLFormat:    strings.TrimSpace(opts.SourceURLFormat),
		defaultModel:       strings.TrimSpace(opts.DefaultModel),
		logger:             infra.LoggerOrDiscard(opts.Logger),
	}
	if d.maxConcurrent <= 0 {
		d.maxConcurrent = DefaultMaxConcurrent
	}
	if d.workers <= 0 {
		d.workers = DefaultWorkers
	}
	if d.maxArchiveAttempts <= 0 {
		d.maxArchiveAttempts = DefaultMaxArchiveAttempts
	}
	if d.sourceURLFormat == "" {
		d.sourceURLFormat = DefaultSourceURLFormat
	}
	if d.defaultModel == "" {
		d.defaultModel = domain.DefaultModel
	}
	return d
}

var tickStates = []domain.JobState{
	domain.JobStateQueued,
	domain.JobStateProcessing,
	domain.JobStateReadyURL,
}

// Tick performs one dispatch pass. Per-job failures land in the report; only
// configuration and snapshot failures are returned as errors.
func (d *Dispatcher) Tick(ctx context.Context) (Report, error) {
	if err := d.checkConfigured(); err != nil {
		return Report{}, err
	}

	jobs, err := d.ledger.ListJobs(ctx, domain.JobFilter{States: tickStates})
	if err != nil {
		if !errors.Is(err, domain.ErrLedgerUnavailable) {
			err = errors.Join(domain.ErrLedgerUnavailable, err)
		}
		return Report{}, fmt.Errorf("dispatcher: snapshot: %w", err)
	}

	var processing, queued, awaiting []domain.Job
	for _, job := range jobs {
		switch job.State {
		case domain.JobStateProcessing:
			processing = append(processing, job)
		case domain.JobStateQueued:
			queued = append(queued, job)
		case domain.JobStateReadyURL:
			if job.NeedsArchival(d.maxArchiveAttempts) {
				awaiting = append(awaiting, job)
			}
		}
	}

	t := newTally()
	admit := d.selectAdmissions(queued, len(processing), t)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, job := range processing {
		g.Go(func() error {
			d.poll(ctx, job, t)
			return nil
		})
	}
	for _, job := range awaiting {
		g.Go(func() error {
			d.archive(ctx, job, t)
			return nil
		})
	}
	for _, job := range admit {
		g.Go(func() error {
			d.admit(ctx, job, t)
			return nil
		})
	}
	_ = g.Wait()

	rep := t.report()
	d.logger.Info().
		Int("snapshot", len(jobs)).
		Int("active", len(processing)).
		Int("processed", rep.Processed).
		Int("started", rep.Started).
		Int("archived", rep.Archived).
		Int("errors", len(rep.Errors)).
		Msg("dispatcher: tick complete")
	return rep, nil
}

func (d *Dispatcher) checkConfigured() error {
	var missing []string
	if !configured(d.ledger) {
		missing = append(missing, "ledger")
	}
	if !configured(d.provider) {
		missing = append(missing, "provider")
	}
	if len(missing) > 0 {
		return fmt.Errorf("dispatcher: %s not configured: %w", strings.Join(missing, " and "), domain.ErrConfiguration)
	}
	return nil
}

func configured(v any) bool {
	if v == nil {
		return false
	}
	if c, ok := v.(domain.Configurable); ok {
		return c.Configured()
	}
	return true
}

// selectAdmissions picks the first admissible queued jobs in ledger order
// that fit in the free slots.
func (d *Dispatcher) selectAdmissions(queued []domain.Job, active int, t *tally) []domain.Job {
	slots := d.maxConcurrent - active
	if slots <= 0 {
		if len(queued) > 0 {
			d.logger.Debug().Int("active", active).Int("queued", len(queued)).Msg("dispatcher: no free slots")
		}
		return nil
	}
	picked := make([]domain.Job, 0, min(slots, len(queued)))
	for _, job := range queued {
		if len(picked) == slots {
			break
		}
		if !job.Admissible() {
			t.skipped(job.ID, "missing source image id")
			continue
		}
		picked = append(picked, job)
	}
	return picked
}

func (d *Dispatcher) poll(ctx context.Context, job domain.Job, t *tally) {
	log := d.logger.With().Str("job_id", job.ID).Str("task_id", job.ProviderTaskID).Logger()
	if job.ProviderTaskID == "" {
		t.skipped(job.ID, "processing without provider task id")
		return
	}

	status, err := d.provider.QueryStatus(ctx, job.ProviderTaskID)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			log.Warn().Err(err).Msg("dispatcher: provider rate limited")
		} else {
			log.Error().Err(err).Msg("dispatcher: status query failed")
		}
		t.fail(job.ID, "status", err)
		return
	}

	decision := jobstate.Advance(job, status)
	if !decision.Changed() {
		return
	}
	if err := d.write(ctx, job.ID, decision); err != nil {
		log.Error().Err(err).Str("next", string(decision.Next)).Msg("dispatcher: ledger write failed")
		t.fail(job.ID, "update", err)
		return
	}
	t.processed()

	switch decision.Next {
	case domain.JobStateFailed:
		log.Warn().Str("reason", status.Reason).Msg("dispatcher: job failed")
	case domain.JobStateReadyURL:
		log.Info().Str("video_url", status.ResultURL).Msg("dispatcher: job ready")
	}

	if decision.Has(jobstate.EffectTriggerArchival) {
		job.State = decision.Next
		job.ProviderResultURL = status.ResultURL
		d.archive(ctx, job, t)
	}
}

func (d *Dispatcher) admit(ctx context.Context, job domain.Job, t *tally) {
	log := d.logger.With().Str("job_id", job.ID).Logger()
	decision := jobstate.Admit(job)
	if !decision.Has(jobstate.EffectSubmit) {
		return
	}

	taskID, err := d.provider.Submit(ctx, d.submitRequest(job))
	if err != nil {
		log.Error().Err(err).Msg("dispatcher: submit failed, job stays queued")
		t.fail(job.ID, "submit", err)
		return
	}
	decision.Fields.ProviderTaskID = &taskID
	// the task exists now; losing the ledger write would resubmit it next tick
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.write(writeCtx, job.ID, decision); err != nil {
		// The provider task exists but the ledger does not know it.
		log.Error().Err(err).Str("task_id", taskID).Msg("dispatcher: failed to record task id")
		t.fail(job.ID, "record task id", err)
		return
	}
	log.Info().Str("task_id", taskID).Msg("dispatcher: job started")
	t.started()
}

// archive triggers archival for a ready job and records the outcome.
func (d *Dispatcher) archive(ctx context.Context, job domain.Job, t *tally) jobstate.ArchivalOutcome {
	log := d.logger.With().Str("job_id", job.ID).Logger()
	if d.archiver == nil {
		log.Debug().Msg("dispatcher: archival skipped, no archiver")
		return jobstate.ArchivalSkipped
	}

	outcome := jobstate.ArchivalTriggered
	fileID, err := d.archiver.Archive(ctx, domain.ArchiveRequest{
		JobID:           job.ID,
		VideoURL:        job.ProviderResultURL,
		SessionFolderID: job.SessionFolderID,
	})
	if err != nil {
		outcome = jobstate.ArchivalFailed
		log.Warn().Err(err).Int("attempt", job.ArchiveAttempts+1).Msg("dispatcher: archival failed")
		t.fail(job.ID, "archive", err)
	}

	decision := jobstate.Archive(job, outcome, fileID)
	if err := d.write(ctx, job.ID, decision); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			// the archival action may finalize the row itself
			log.Debug().Err(err).Msg("dispatcher: archival write superseded")
		} else {
			log.Error().Err(err).Msg("dispatcher: failed to record archival outcome")
			t.fail(job.ID, "record archival", err)
		}
	}
	if outcome == jobstate.ArchivalTriggered {
		log.Info().Str("file_id", fileID).Msg("dispatcher: archived")
		t.archived()
	}
	return outcome
}

func (d *Dispatcher) write(ctx context.Context, id string, decision jobstate.Decision) error {
	if !jobstate.CanTransition(decision.From, decision.Next) {
		return fmt.Errorf("dispatcher: illegal transition %s -> %s", decision.From, decision.Next)
	}
	return d.ledger.UpdateJobState(ctx, id, decision.From, decision.Next, decision.Fields)
}

func (d *Dispatcher) submitRequest(job domain.Job) domain.SubmitRequest {
	prompt := strings.TrimSpace(job.Prompt)
	if prompt == "" {
		prompt = domain.DefaultPrompt
	}
	model := strings.TrimSpace(job.Model)
	if model == "" {
		model = d.defaultModel
	}
	return domain.SubmitRequest{
		Model:          model,
		Prompt:         prompt,
		Resolution:     domain.NormalizeResolution(job.Resolution),
		SourceImageURL: fmt.Sprintf(d.sourceURLFormat, job.SourceImageID),
	}
}
