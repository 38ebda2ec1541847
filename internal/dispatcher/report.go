package dispatcher

import (
	"fmt"
	"sync"
)

// Report summarizes one tick. It is observational only.
type Report struct {
	Processed int      `json:"processed"`
	Started   int      `json:"started"`
	Archived  int      `json:"archived"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// tally collects per-job results from concurrent workers.
type tally struct {
	mu  sync.Mutex
	rep Report
}

func newTally() *tally {
	return &tally{rep: Report{Errors: []string{}}}
}

func (t *tally) processed() {
	t.mu.Lock()
	t.rep.Processed++
	t.mu.Unlock()
}

func (t *tally) started() {
	t.mu.Lock()
	t.rep.Started++
	t.mu.Unlock()
}

func (t *tally) archived() {
	t.mu.Lock()
	t.rep.Archived++
	t.mu.Unlock()
}

func (t *tally) skipped(jobID, reason string) {
	t.mu.Lock()
	t.rep.Skipped++
	t.rep.Errors = append(t.rep.Errors, fmt.Sprintf("%s: skipped: %s", jobID, reason))
	t.mu.Unlock()
}

func (t *tally) fail(jobID, op string, err error) {
	t.mu.Lock()
	t.rep.Errors = append(t.rep.Errors, fmt.Sprintf("%s: %s: %v", jobID, op, err))
	t.mu.Unlock()
}

func (t *tally) report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	rep := t.rep
	rep.Errors = append([]string{}, t.rep.Errors...)
	return rep
}
