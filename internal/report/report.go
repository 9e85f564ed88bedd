// Package report holds the per-item results produced by pipeline stages and
// their aggregation into a batch report.
package report

import (
	"errors"
	"time"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Item is the outcome of processing one job, resume, candidate or shortlist row.
type Item struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func OK(id string) Item {
	return Item{ID: id, Status: StatusOK}
}

func Skipped(id, reason string) Item {
	return Item{ID: id, Status: StatusSkipped, Reason: reason}
}

func Failed(id string, err error) Item {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Item{ID: id, Status: StatusFailed, Reason: reason}
}

// Counts summarises items by status.
type Counts struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (c *Counts) add(other Counts) {
	c.Processed += other.Processed
	c.Succeeded += other.Succeeded
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// Step is the result of one stage.
type Step struct {
	Name     string         `json:"name"`
	Disabled bool           `json:"disabled,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Items    []Item         `json:"items,omitempty"`
	Metrics  map[string]int `json:"metrics,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (s *Step) Add(items ...Item) {
	s.Items = append(s.Items, items...)
}

// SetMetric records a stage specific number, such as the shortlisted count.
func (s *Step) SetMetric(name string, value int) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]int)
	}
	s.Metrics[name] = value
}

func (s Step) Counts() Counts {
	c := Counts{Processed: len(s.Items)}
	for _, item := range s.Items {
		switch item.Status {
		case StatusOK:
			c.Succeeded++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Failures returns the failed items of the step.
func (s Step) Failures() []Item {
	var failed []Item
	for _, item := range s.Items {
		if item.Status == StatusFailed {
			failed = append(failed, item)
		}
	}
	return failed
}

// Report aggregates the steps of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Steps      []Step    `json:"steps"`
	Totals     Counts    `json:"totals"`
	Error      string    `json:"error,omitempty"`
}

// Append adds step to the report and updates the totals.
func (r *Report) Append(step Step) {
	r.Steps = append(r.Steps, step)
	r.Totals.add(step.Counts())
}

// Step returns the step with name, if present.
func (r *Report) Step(name string) (Step, bool) {
	for _, step := range r.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return Step{}, false
}

// Fail records err as the reason the run stopped.
func (r *Report) Fail(err error) {
	if err == nil {
		return
	}
	r.Error = err.Error()
	var stepErr *StepError
	if errors.As(err, &stepErr) && len(r.Steps) > 0 && r.Steps[len(r.Steps)-1].Name == stepErr.Step {
		r.Steps[len(r.Steps)-1].Error = stepErr.Err.Error()
	}
}

// StepError is returned when a stage aborts.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }
