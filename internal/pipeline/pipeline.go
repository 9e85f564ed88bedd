// Package pipeline runs the recruitment stages in order and aggregates their
// per-item results into a batch report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/runlock"
)

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context) (report.Step, error)
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type statusProvider interface {
	Status() Status
}

// RunStore persists run reports.
type RunStore interface {
	StartRun(ctx context.Context, id string, startedAt time.Time) error
	FinishRun(ctx context.Context, id string, finishedAt time.Time, report any) error
}

// DisableByName marks the stage with the provided name as disabled while
// keeping it in the list. It reports whether such a stage exists.
func DisableByName(stages []Stage, name, reason string) bool {
	found := false
	for _, stage := range stages {
		if stage.Name() == name {
			stage.Disable(reason)
			found = true
		}
	}
	return found
}

// Describe returns status entries for the provided stages.
func Describe(stages []Stage) []Status {
	statuses := make([]Status, 0, len(stages))
	for _, stage := range stages {
		if reporter, ok := stage.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    stage.Name(),
			Enabled: stage.IsEnabled(),
		})
	}
	return statuses
}

type Pipeline struct {
	stages []Stage
	runs   RunStore
	locker runlock.Locker
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// New creates a pipeline. runs and locker may be nil.
func New(stages []Stage, runs RunStore, locker runlock.Locker, log *zap.Logger) *Pipeline {
	if locker == nil {
		locker = runlock.Noop{}
	}
	return &Pipeline{
		stages: stages,
		runs:   runs,
		locker: locker,
		logger: logger.OrNop(log),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run validates every enabled stage, then applies them in order. A stage
// error stops the run; the partial report is returned with it and, when a
// run store is configured, persisted.
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {
	for _, stage := range p.stages {
		if !stage.IsEnabled() {
			continue
		}
		if err := stage.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}
	}

	release, err := p.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("releasing pipeline lock failed", zap.Error(err))
		}
	}()

	rep := &report.Report{RunID: p.newID(), StartedAt: p.now().UTC()}
	log := p.logger.With(zap.String(logger.FieldRunID, rep.RunID))

	if p.runs != nil {
		if err := p.runs.StartRun(ctx, rep.RunID, rep.StartedAt); err != nil {
			return nil, err
		}
	}

	runErr := p.apply(ctx, log, rep)
	rep.Fail(runErr)
	rep.FinishedAt = p.now().UTC()

	if p.runs != nil {
		if err := p.runs.FinishRun(context.WithoutCancel(ctx), rep.RunID, rep.FinishedAt, rep); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	log.Info("pipeline finished",
		zap.Int("processed", rep.Totals.Processed),
		zap.Int("succeeded", rep.Totals.Succeeded),
		zap.Int("skipped", rep.Totals.Skipped),
		zap.Int("failed", rep.Totals.Failed),
		zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)),
	)

	return rep, runErr
}

func (p *Pipeline) apply(ctx context.Context, log *zap.Logger, rep *report.Report) error {
	for _, stage := range p.stages {
		if !stage.IsEnabled() {
			reason := ""
			if reporter, ok := stage.(statusProvider); ok {
				reason = reporter.Status().Reason
			}
			log.Info("stage disabled", zap.String(logger.FieldStage, stage.Name()), zap.String("reason", reason))
			rep.Append(report.Step{Name: stage.Name(), Disabled: true, Reason: reason})
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		step, err := stage.Apply(ctx)
		step.Name = stage.Name()
		rep.Append(step)

		counts := step.Counts()
		fields := []zap.Field{
			zap.String(logger.FieldStage, stage.Name()),
			zap.Int("processed", counts.Processed),
			zap.Int("succeeded", counts.Succeeded),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
		}
		for name, value := range step.Metrics {
			fields = append(fields, zap.Int(name, value))
		}
		log.Info("pipeline step", fields...)

		if err != nil {
			return &report.StepError{Step: stage.Name(), Err: err}
		}
	}
	return nil
}
