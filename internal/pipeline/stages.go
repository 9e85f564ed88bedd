package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spigell/cv-matcher/internal/ingest"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/shortlist"
)

const (
	StageLoadJobs      = "load_jobs"
	StageIngestCVs     = "ingest_cvs"
	StageSummarizeJobs = "summarize_jobs"
	StageMatch         = "match"
	StageShortlist     = "shortlist"
	StageNotify        = "notify"
)

// StageNames lists the stages in execution order.
var StageNames = []string{StageLoadJobs, StageIngestCVs, StageSummarizeJobs, StageMatch, StageShortlist, StageNotify}

type base struct {
	name     string
	disabled bool
	reason   string
}

func (b *base) Name() string { return b.name }

func (b *base) Disable(reason string) {
	b.disabled = true
	b.reason = reason
}

func (b *base) IsEnabled() bool { return !b.disabled }

func (b *base) status(details map[string]string) Status {
	return Status{Name: b.name, Enabled: !b.disabled, Reason: b.reason, Details: details}
}

// ItemRunner is a component processing a batch of rows.
type ItemRunner interface {
	Run(ctx context.Context) ([]report.Item, error)
}

type runnerStage struct {
	base
	runner ItemRunner
}

// NewSummarizeJobs summarizes jobs without a summary.
func NewSummarizeJobs(runner ItemRunner) Stage {
	return &runnerStage{base: base{name: StageSummarizeJobs}, runner: runner}
}

// NewMatch scores candidates without a score.
func NewMatch(runner ItemRunner) Stage {
	return &runnerStage{base: base{name: StageMatch}, runner: runner}
}

// NewNotify emails shortlisted candidates not yet notified.
func NewNotify(runner ItemRunner) Stage {
	return &runnerStage{base: base{name: StageNotify}, runner: runner}
}

func (s *runnerStage) Validate() error {
	if s.runner == nil {
		return errors.New("stage is not configured")
	}
	return nil
}

func (s *runnerStage) Apply(ctx context.Context) (report.Step, error) {
	items, err := s.runner.Run(ctx)
	return report.Step{Items: items}, err
}

func (s *runnerStage) Status() Status { return s.status(nil) }

// JobFileLoader loads jobs from a CSV file.
type JobFileLoader interface {
	LoadFile(ctx context.Context, path string) ([]report.Item, error)
}

type loadJobsStage struct {
	base
	loader JobFileLoader
	path   string
}

func NewLoadJobs(loader JobFileLoader, path string) Stage {
	return &loadJobsStage{base: base{name: StageLoadJobs}, loader: loader, path: path}
}

func (s *loadJobsStage) Validate() error {
	if s.path == "" {
		return errors.New("jobs csv path is required")
	}
	return nil
}

func (s *loadJobsStage) Apply(ctx context.Context) (report.Step, error) {
	items, err := s.loader.LoadFile(ctx, s.path)
	return report.Step{Items: items}, err
}

func (s *loadJobsStage) Status() Status {
	return s.status(map[string]string{"csv": s.path})
}

// CVIngester stores resumes found in a source.
type CVIngester interface {
	Ingest(ctx context.Context, src ingest.Source) ([]report.Item, error)
}

type ingestCVsStage struct {
	base
	ingester CVIngester
	source   ingest.Source
}

func NewIngestCVs(ingester CVIngester, source ingest.Source) Stage {
	return &ingestCVsStage{base: base{name: StageIngestCVs}, ingester: ingester, source: source}
}

func (s *ingestCVsStage) Validate() error {
	if s.source == nil {
		return errors.New("resume source is required")
	}
	return nil
}

func (s *ingestCVsStage) Apply(ctx context.Context) (report.Step, error) {
	items, err := s.ingester.Ingest(ctx, s.source)
	return report.Step{Items: items}, err
}

func (s *ingestCVsStage) Status() Status {
	details := map[string]string{}
	if s.source != nil {
		details["source"] = s.source.String()
	}
	return s.status(details)
}

// Shortlister shortlists candidates at or above a threshold.
type Shortlister interface {
	Run(ctx context.Context, threshold float64) (shortlist.Result, error)
}

type shortlistStage struct {
	base
	shortlister Shortlister
	threshold   float64
}

func NewShortlist(shortlister Shortlister, threshold float64) Stage {
	return &shortlistStage{base: base{name: StageShortlist}, shortlister: shortlister, threshold: threshold}
}

func (s *shortlistStage) Validate() error {
	if s.threshold < 0 || s.threshold > 100 {
		return fmt.Errorf("threshold %.2f is outside [0, 100]", s.threshold)
	}
	return nil
}

func (s *shortlistStage) Apply(ctx context.Context) (report.Step, error) {
	result, err := s.shortlister.Run(ctx, s.threshold)

	step := report.Step{Items: result.Items}
	step.SetMetric("shortlisted", result.Qualified)
	step.SetMetric("added", result.Added)
	return step, err
}

func (s *shortlistStage) Status() Status {
	return s.status(map[string]string{"threshold": strconv.FormatFloat(s.threshold, 'f', 2, 64)})
}
