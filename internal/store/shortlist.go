package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddToShortlist inserts entry unless the (candidate, job) pair is already shortlisted.
// It reports whether a row was created.
func (s *Store) AddToShortlist(ctx context.Context, entry *ShortlistEntry) (bool, error) {
	entry.EmailSent = false

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "candidate_id"}, {Name: "job_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("shortlist candidate %d for job %d: %w", entry.CandidateID, entry.JobID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) invitations(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("shortlisted_candidates AS s").
		Select("s.id AS entry_id, s.candidate_id, s.job_id, s.name, s.email, s.match_score, s.email_sent, j.job_title").
		Joins("JOIN jobs j ON j.id = s.job_id").
		Order("s.id")
}

// PendingInvitations returns shortlist rows that have not been emailed yet.
func (s *Store) PendingInvitations(ctx context.Context) ([]Invitation, error) {
	var out []Invitation
	if err := s.invitations(ctx).Where("s.email_sent = ?", false).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return out, nil
}

// Shortlist returns every shortlist row with its job title.
func (s *Store) Shortlist(ctx context.Context) (*Shortlist, error) {
	var out []Invitation
	if err := s.invitations(ctx).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list shortlist: %w", err)
	}

	list := &Shortlist{Items: make([]*Invitation, 0, len(out))}
	for i := range out {
		list.Items = append(list.Items, &out[i])
	}
	return list, nil
}

// MarkInvitationSent flags a shortlist row as notified.
func (s *Store) MarkInvitationSent(ctx context.Context, entryID uint) error {
	res := s.db.WithContext(ctx).Model(&ShortlistEntry{}).
		Where("id = ?", entryID).
		Update("email_sent", true)
	if res.Error != nil {
		return fmt.Errorf("mark invitation %d sent: %w", entryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark invitation %d sent: no such shortlist entry", entryID)
	}
	return nil
}
