package matching

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
)

// TextEmbedder is satisfied by Embedder.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Scorer compares a job summary with a resume summary.
type Scorer struct {
	embedder TextEmbedder
}

func NewScorer(embedder TextEmbedder) *Scorer {
	return &Scorer{embedder: embedder}
}

// Score embeds both summaries and returns their similarity as a percentage
// rounded to two decimals, in [-100, 100].
func (s *Scorer) Score(ctx context.Context, jobSummary, cvSummary string) float64 {
	jobVector := s.embedder.Embed(ctx, jobSummary)
	cvVector := s.embedder.Embed(ctx, cvSummary)
	return Percent(CosineSimilarity(jobVector, cvVector))
}

// JobScorer scores one job summary against one resume summary.
type JobScorer interface {
	Score(ctx context.Context, jobSummary, cvSummary string) float64
}

// Match is the best job found for a resume. Job is nil when no job scored above zero.
type Match struct {
	Job   *store.Job
	Score float64
}

// BestMatch scores cvSummary against every summarized job in order and keeps
// the strictly highest score, starting from zero. Ties keep the earlier job.
// ok is false when there is no summarized job to compare with.
func BestMatch(ctx context.Context, scorer JobScorer, cvSummary string, jobs []store.Job) (match Match, ok bool) {
	for i := range jobs {
		job := &jobs[i]
		if !job.HasSummary() {
			continue
		}
		ok = true

		score := scorer.Score(ctx, *job.Summary, cvSummary)
		if score > match.Score {
			match = Match{Job: job, Score: score}
		}
	}
	return match, ok
}

// Store is the persistence Matcher reads and updates.
type Store interface {
	SummarizedJobs(ctx context.Context) ([]store.Job, error)
	UnscoredCandidates(ctx context.Context) ([]store.Candidate, error)
	SaveMatch(ctx context.Context, candidateID uint, jobID *uint, score float64) (bool, error)
}

// CVSummarizer condenses resume text; it must not fail.
type CVSummarizer interface {
	SummarizeCV(ctx context.Context, text string) string
}

// Matcher assigns every unscored candidate its best job.
type Matcher struct {
	store      Store
	summarizer CVSummarizer
	scorer     JobScorer
	logger     *zap.Logger
}

func NewMatcher(store Store, summarizer CVSummarizer, scorer JobScorer, log *zap.Logger) *Matcher {
	return &Matcher{store: store, summarizer: summarizer, scorer: scorer, logger: logger.OrNop(log)}
}

// Run matches candidates without a score. Candidates are left untouched when
// no job has a summary. Only storage errors abort the run.
func (m *Matcher) Run(ctx context.Context) ([]report.Item, error) {
	jobs, err := m.store.SummarizedJobs(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := m.store.UnscoredCandidates(ctx)
	if err != nil {
		return nil, err
	}

	m.logger.Info("matching candidates", zap.Int("candidates", len(candidates)), zap.Int("jobs", len(jobs)))

	items := make([]report.Item, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		item, err := m.matchOne(ctx, candidate, jobs)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}

	return items, nil
}

func (m *Matcher) matchOne(ctx context.Context, candidate store.Candidate, jobs []store.Job) (report.Item, error) {
	id := fmt.Sprintf("candidate %d", candidate.ID)
	log := m.logger.With(logger.CandidateFields(candidate.ID, "")...)

	if len(jobs) == 0 {
		log.Warn("no summarized jobs, candidate left unmatched")
		return report.Skipped(id, "no summarized jobs"), nil
	}

	summary := m.summarizer.SummarizeCV(ctx, candidate.CVText)

	match, ok := BestMatch(ctx, m.scorer, summary, jobs)
	if !ok {
		return report.Skipped(id, "no summarized jobs"), nil
	}

	// Scores computed while shutting down come from zero vectors; keep the candidate unscored.
	if err := ctx.Err(); err != nil {
		return report.Item{}, err
	}

	var jobID *uint
	if match.Job != nil {
		jobID = &match.Job.ID
	}

	saved, err := m.store.SaveMatch(ctx, candidate.ID, jobID, match.Score)
	if err != nil {
		return report.Item{}, err
	}
	if !saved {
		return report.Skipped(id, "already scored"), nil
	}

	if match.Job == nil {
		log.Info("no job scored above zero", zap.Float64("score", match.Score))
		return report.OK(id), nil
	}

	log.Info("candidate matched", logger.JobField(match.Job.ID), zap.String("title", match.Job.Title), zap.Float64("score", match.Score))
	return report.OK(id), nil
}
