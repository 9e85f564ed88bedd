package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// CreateCandidate inserts c unless a candidate with the same email exists.
// It reports whether a row was created.
func (s *Store) CreateCandidate(ctx context.Context, c *Candidate) (bool, error) {
	c.MatchScore = nil
	c.MatchedJobID = nil

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, fmt.Errorf("create candidate %q: %w", c.Name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UnscoredCandidates returns candidates that have not been matched yet, ordered by id.
func (s *Store) UnscoredCandidates(ctx context.Context) ([]Candidate, error) {
	var candidates []Candidate
	if err := s.db.WithContext(ctx).Where("match_score IS NULL").Order("id").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("list unscored candidates: %w", err)
	}
	return candidates, nil
}

// SaveMatch records the best match of a candidate. A nil jobID stores an
// unmatched candidate with its score. Already scored candidates are left as is;
// the return value reports whether the row changed.
func (s *Store) SaveMatch(ctx context.Context, candidateID uint, jobID *uint, score float64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Candidate{}).
		Where("id = ? AND match_score IS NULL", candidateID).
		Updates(map[string]interface{}{
			"matched_job_id": jobID,
			"match_score":    score,
		})
	if res.Error != nil {
		return false, fmt.Errorf("save match of candidate %d: %w", candidateID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ResetMatches clears the match of one candidate, or of all candidates when
// candidateID is zero, so the next matching run scores them again.
func (s *Store) ResetMatches(ctx context.Context, candidateID uint) (int64, error) {
	query := s.db.WithContext(ctx).Model(&Candidate{}).Where("match_score IS NOT NULL")
	if candidateID != 0 {
		query = query.Where("id = ?", candidateID)
	}

	res := query.Updates(map[string]interface{}{
		"matched_job_id": nil,
		"match_score":    nil,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("reset matches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// QualifiedCandidates returns matched candidates scoring at least threshold, ordered by id.
func (s *Store) QualifiedCandidates(ctx context.Context, threshold float64) ([]Candidate, error) {
	var candidates []Candidate
	err := s.db.WithContext(ctx).
		Where("match_score >= ? AND matched_job_id IS NOT NULL", threshold).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list candidates scoring at least %.2f: %w", threshold, err)
	}
	return candidates, nil
}
