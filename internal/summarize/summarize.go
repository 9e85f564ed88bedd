package summarize

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
)

// DefaultCVSummary stands in for a CV summary the model failed to produce.
const DefaultCVSummary = "Skills: , Experience: 0"

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// Summarizer condenses job descriptions and resumes with a language model.
type Summarizer struct {
	generator ai.Generator
	logger    *zap.Logger
}

func New(generator ai.Generator, log *zap.Logger) *Summarizer {
	return &Summarizer{generator: generator, logger: logger.OrNop(log)}
}

// JobPrompt renders the job description prompt.
func JobPrompt(text string) (string, error) {
	return render("job.tmpl", text)
}

// CVPrompt renders the resume prompt.
func CVPrompt(text string) (string, error) {
	return render("cv.tmpl", text)
}

func render(name, text string) (string, error) {
	var builder strings.Builder
	if err := prompts.ExecuteTemplate(&builder, name, struct{ Text string }{Text: strings.TrimSpace(text)}); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return builder.String(), nil
}

// SummarizeJob returns the Skills/Experience/Qualifications summary of a job description.
func (s *Summarizer) SummarizeJob(ctx context.Context, text string) (string, error) {
	prompt, err := JobPrompt(text)
	if err != nil {
		return "", err
	}

	summary, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize job description: %w", err)
	}
	return summary, nil
}

// SummarizeCV returns the Skills/Experience summary of a resume. Model
// failures yield DefaultCVSummary.
func (s *Summarizer) SummarizeCV(ctx context.Context, text string) string {
	prompt, err := CVPrompt(text)
	if err == nil {
		var summary string
		summary, err = s.generator.GenerateContent(ctx, prompt)
		if err == nil {
			return summary
		}
	}

	s.logger.Warn("summarizing resume failed, using default summary",
		zap.String("default", DefaultCVSummary),
		zap.Error(err),
	)
	return DefaultCVSummary
}

// JobStore is the persistence JobRunner reads and updates.
type JobStore interface {
	JobsWithoutSummary(ctx context.Context) ([]store.Job, error)
	SetJobSummary(ctx context.Context, id uint, summary string) (bool, error)
}

// JobRunner fills in missing job summaries.
type JobRunner struct {
	store      JobStore
	summarizer *Summarizer
	logger     *zap.Logger
}

func NewJobRunner(store JobStore, summarizer *Summarizer, log *zap.Logger) *JobRunner {
	return &JobRunner{store: store, summarizer: summarizer, logger: logger.OrNop(log)}
}

// Run summarizes every job without a summary. A job whose summary could not
// be produced keeps an empty summary and is retried by the next run.
func (r *JobRunner) Run(ctx context.Context) ([]report.Item, error) {
	jobs, err := r.store.JobsWithoutSummary(ctx)
	if err != nil {
		return nil, err
	}

	r.logger.Info("summarizing jobs", zap.Int("count", len(jobs)))

	items := make([]report.Item, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		id := fmt.Sprintf("job %d", job.ID)

		summary, err := r.summarizer.SummarizeJob(ctx, job.Description)
		if err != nil {
			r.logger.Warn("job summary failed", logger.JobField(job.ID), zap.Error(err))
			items = append(items, report.Failed(id, err))
			continue
		}

		updated, err := r.store.SetJobSummary(ctx, job.ID, summary)
		if err != nil {
			return items, err
		}
		if !updated {
			items = append(items, report.Skipped(id, "already summarized"))
			continue
		}

		r.logger.Info("job summarized", logger.JobField(job.ID), zap.String("title", job.Title))
		items = append(items, report.OK(id))
	}

	return items, nil
}
