package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"boothvideo/internal/domain"
)

type fakeLedger struct {
	mu        sync.Mutex
	order     []string
	jobs      map[string]domain.Job
	listErr   error
	updateErr map[string]error
	lists     int
	updates   []string
}

func newFakeLedger(jobs ...domain.Job) *fakeLedger {
	l := &fakeLedger{jobs: map[string]domain.Job{}, updateErr: map[string]error{}}
	for _, j := range jobs {
		l.order = append(l.order, j.ID)
		l.jobs[j.ID] = j
	}
	return l
}

func (l *fakeLedger) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lists++
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []domain.Job
	for _, id := range l.order {
		if j := l.jobs[id]; filter.Matches(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (l *fakeLedger) UpdateJobState(ctx context.Context, id string, expected, next domain.JobState, fields domain.JobUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.updateErr[id]; err != nil {
		return err
	}
	j, ok := l.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.State != expected {
		return fmt.Errorf("job %s is %s: %w", id, j.State, domain.ErrStateConflict)
	}
	j.State = next
	if fields.ProviderTaskID != nil {
		j.ProviderTaskID = *fields.ProviderTaskID
	}
	if fields.ProviderResultURL != nil {
		j.ProviderResultURL = *fields.ProviderResultURL
	}
	if fields.ArchivedFileID != nil {
		j.ArchivedFileID = *fields.ArchivedFileID
	}
	if fields.FailureReason != nil {
		j.FailureReason = *fields.FailureReason
	}
	if fields.ArchiveAttempts != nil {
		j.ArchiveAttempts = *fields.ArchiveAttempts
	}
	l.jobs[id] = j
	l.updates = append(l.updates, id+":"+string(next))
	return nil
}

func (l *fakeLedger) CreateJob(ctx context.Context, job domain.Job) error {
	return errors.New("not used")
}

func (l *fakeLedger) job(id string) domain.Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.jobs[id]
}

type fakeProvider struct {
	mu          sync.Mutex
	submitted   []domain.SubmitRequest
	queried     []string
	submit      func(req domain.SubmitRequest) (string, error)
	afterSubmit func()
	status      func(taskID string) (domain.CanonicalStatus, error)
}

func (p *fakeProvider) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	p.mu.Lock()
	p.submitted = append(p.submitted, req)
	n := len(p.submitted)
	p.mu.Unlock()
	if p.afterSubmit != nil {
		defer p.afterSubmit()
	}
	if p.submit != nil {
		return p.submit(req)
	}
	return fmt.Sprintf("t-%d", n), nil
}

func (p *fakeProvider) QueryStatus(ctx context.Context, taskID string) (domain.CanonicalStatus, error) {
	p.mu.Lock()
	p.queried = append(p.queried, taskID)
	p.mu.Unlock()
	if p.status != nil {
		return p.status(taskID)
	}
	return domain.Processing(), nil
}

func (p *fakeProvider) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.submitted)
}

type fakeArchiver struct {
	mu     sync.Mutex
	calls  []domain.ArchiveRequest
	fileID string
	err    error
}

func (a *fakeArchiver) Archive(ctx context.Context, req domain.ArchiveRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if a.err != nil {
		return "", a.err
	}
	return a.fileID, nil
}

type unconfiguredProvider struct{ fakeProvider }

func (*unconfiguredProvider) Configured() bool { return false }

func queuedJob(id string) domain.Job {
	return domain.Job{ID: id, State: domain.JobStateQueued, SourceImageID: id, SessionFolderID: "s-" + id}
}

func processingJob(id, taskID string) domain.Job {
	return domain.Job{ID: id, State: domain.JobStateProcessing, ProviderTaskID: taskID, SourceImageID: id}
}
