package shortlist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
)

const (
	DefaultThreshold = 70.0

	// EventShortlisted is the routing key of events about new shortlist rows.
	EventShortlisted = "candidate.shortlisted"
)

// Store is the persistence Shortlister reads and writes.
type Store interface {
	QualifiedCandidates(ctx context.Context, threshold float64) ([]store.Candidate, error)
	AddToShortlist(ctx context.Context, entry *store.ShortlistEntry) (bool, error)
}

// Publisher delivers events about new shortlist rows.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Event describes a candidate newly shortlisted for a job.
type Event struct {
	CandidateID uint      `json:"candidate_id"`
	JobID       uint      `json:"job_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Score       float64   `json:"match_score"`
	At          time.Time `json:"shortlisted_at"`
}

// Result of a shortlist run. Qualified counts candidates meeting the
// threshold; Added counts rows that did not exist before.
type Result struct {
	Qualified int
	Added     int
	Items     []report.Item
}

// Shortlister copies qualifying matches into the shortlist.
type Shortlister struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Shortlister. publisher may be nil.
func New(store Store, publisher Publisher, log *zap.Logger) *Shortlister {
	return &Shortlister{store: store, publisher: publisher, logger: logger.OrNop(log), now: time.Now}
}

// Run shortlists every matched candidate whose score is at least threshold.
// Already shortlisted (candidate, job) pairs are left alone.
func (s *Shortlister) Run(ctx context.Context, threshold float64) (Result, error) {
	candidates, err := s.store.QualifiedCandidates(ctx, threshold)
	if err != nil {
		return Result{}, err
	}

	result := Result{Qualified: len(candidates), Items: make([]report.Item, 0, len(candidates))}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		id := fmt.Sprintf("candidate %d", c.ID)
		entry := &store.ShortlistEntry{
			CandidateID: c.ID,
			JobID:       *c.MatchedJobID,
			Name:        c.Name,
			MatchScore:  *c.MatchScore,
		}
		if c.Email != nil {
			entry.Email = *c.Email
		}

		added, err := s.store.AddToShortlist(ctx, entry)
		if err != nil {
			return result, err
		}
		if !added {
			result.Items = append(result.Items, report.Skipped(id, "already shortlisted"))
			continue
		}

		result.Added++
		result.Items = append(result.Items, report.OK(id))

		s.logger.Info("candidate shortlisted",
			append(logger.CandidateFields(c.ID, entry.Email), logger.JobField(entry.JobID), zap.Float64("score", entry.MatchScore))...,
		)

		s.publish(ctx, entry)
	}

	s.logger.Info("shortlisting finished",
		zap.Float64("threshold", threshold),
		zap.Int("qualified", result.Qualified),
		zap.Int("added", result.Added),
	)

	return result, nil
}

func (s *Shortlister) publish(ctx context.Context, entry *store.ShortlistEntry) {
	if s.publisher == nil {
		return
	}

	event := Event{
		CandidateID: entry.CandidateID,
		JobID:       entry.JobID,
		Name:        entry.Name,
		Email:       entry.Email,
		Score:       entry.MatchScore,
		At:          s.now().UTC(),
	}

	if err := s.publisher.Publish(ctx, EventShortlisted, event); err != nil {
		s.logger.Warn("publishing shortlist event failed", append(logger.CandidateFields(entry.CandidateID, ""), zap.Error(err))...)
	}
}
