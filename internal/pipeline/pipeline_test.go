package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/runlock"
	"github.com/spigell/cv-matcher/internal/shortlist"
	"github.com/spigell/cv-matcher/internal/store"
)

type runnerFunc func(ctx context.Context) ([]report.Item, error)

func (f runnerFunc) Run(ctx context.Context) ([]report.Item, error) { return f(ctx) }

func items(list ...report.Item) runnerFunc {
	return func(context.Context) ([]report.Item, error) { return list, nil }
}

type fixedShortlister shortlist.Result

func (f fixedShortlister) Run(context.Context, float64) (shortlist.Result, error) {
	return shortlist.Result(f), nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context) (runlock.Release, error) { return nil, runlock.ErrLocked }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(store.Config{DSN: filepath.Join(t.TempDir(), "runs.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestRunAggregatesSteps(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	db := openStore(t)

	stages := []Stage{
		NewSummarizeJobs(items(report.OK("job 1"), report.Failed("job 2", errors.New("model unavailable")))),
		NewMatch(items(report.OK("candidate 1"), report.Skipped("candidate 2", "already scored"))),
		NewShortlist(fixedShortlister{Qualified: 3, Added: 1, Items: []report.Item{report.OK("candidate 1")}}, 70),
		NewNotify(items()),
	}
	require.True(t, DisableByName(stages, StageNotify, "skipped by flag"))
	assert.False(t, DisableByName(stages, "unknown", "x"))

	p := New(stages, db, nil, zap.New(core))
	p.newID = func() string { return "run-1" }

	rep, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.RunID)
	require.Len(t, rep.Steps, 4)
	assert.Equal(t, report.Counts{Processed: 5, Succeeded: 3, Skipped: 1, Failed: 1}, rep.Totals)

	step, ok := rep.Step(StageShortlist)
	require.True(t, ok)
	assert.Equal(t, 3, step.Metrics["shortlisted"])

	notify, ok := rep.Step(StageNotify)
	require.True(t, ok)
	assert.True(t, notify.Disabled)
	assert.Equal(t, "skipped by flag", notify.Reason)

	assert.Equal(t, 3, observed.FilterMessage("pipeline step").Len())
	assert.Equal(t, 1, observed.FilterMessage("stage disabled").Len())

	runs, err := db.LatestRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].FinishedAt)

	var stored report.Report
	require.NoError(t, json.Unmarshal(runs[0].Report, &stored))
	assert.Equal(t, rep.Totals, stored.Totals)
}

func TestRunStopsAtFailingStage(t *testing.T) {
	boom := errors.New("database is locked")
	reached := false

	stages := []Stage{
		NewSummarizeJobs(runnerFunc(func(context.Context) ([]report.Item, error) {
			return []report.Item{report.OK("job 1")}, boom
		})),
		NewMatch(runnerFunc(func(context.Context) ([]report.Item, error) {
			reached = true
			return nil, nil
		})),
	}

	db := openStore(t)
	rep, err := New(stages, db, nil, nil).Run(context.Background())
	require.ErrorIs(t, err, boom)

	var stepErr *report.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StageSummarizeJobs, stepErr.Step)
	assert.False(t, reached)

	require.Len(t, rep.Steps, 1)
	assert.Equal(t, boom.Error(), rep.Steps[0].Error)
	assert.NotEmpty(t, rep.Error)

	runs, err := db.LatestRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1, "partial reports are persisted")
}

func TestRunValidatesEnabledStagesOnly(t *testing.T) {
	stages := []Stage{NewLoadJobs(nil, ""), NewShortlist(fixedShortlister{}, 120)}

	_, err := New(stages, nil, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageLoadJobs)

	DisableByName(stages, StageLoadJobs, "no csv")
	_, err = New(stages, nil, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageShortlist)

	DisableByName(stages, StageShortlist, "not needed")
	rep, err := New(stages, nil, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Counts{}, rep.Totals)
}

func TestRunRespectsLock(t *testing.T) {
	called := false
	stages := []Stage{NewMatch(runnerFunc(func(context.Context) ([]report.Item, error) {
		called = true
		return nil, nil
	}))}

	_, err := New(stages, nil, busyLocker{}, nil).Run(context.Background())
	require.ErrorIs(t, err, runlock.ErrLocked)
	assert.False(t, called)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New([]Stage{NewMatch(items())}, nil, nil, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDescribe(t *testing.T) {
	stages := []Stage{NewLoadJobs(nil, "jobs.csv"), NewShortlist(fixedShortlister{}, 70), NewNotify(items())}
	DisableByName(stages, StageNotify, "dry run")

	statuses := Describe(stages)
	require.Len(t, statuses, 3)
	assert.Equal(t, "jobs.csv", statuses[0].Details["csv"])
	assert.Equal(t, "70.00", statuses[1].Details["threshold"])
	assert.Equal(t, Status{Name: StageNotify, Enabled: false, Reason: "dry run"}, statuses[2])
}
