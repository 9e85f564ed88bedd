package store

import (
	"context"
	"fmt"
)

// JobExists reports whether a job with the same title and description is stored.
func (s *Store) JobExists(ctx context.Context, title, description string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Job{}).
		Where("job_title = ? AND job_description = ?", title, description).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("look up job %q: %w", title, err)
	}
	return count > 0, nil
}

// CreateJob stores a new job with an empty summary.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	job.Summary = nil
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job %q: %w", job.Title, err)
	}
	return nil
}

// JobsWithoutSummary returns jobs still waiting for a summary, ordered by id.
func (s *Store) JobsWithoutSummary(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := s.db.WithContext(ctx).Where("jd_summary IS NULL").Order("id").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs without summary: %w", err)
	}
	return jobs, nil
}

// SummarizedJobs returns every job with a summary, ordered by id.
func (s *Store) SummarizedJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := s.db.WithContext(ctx).Where("jd_summary IS NOT NULL").Order("id").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list summarized jobs: %w", err)
	}
	return jobs, nil
}

// SetJobSummary stores the summary of a job unless one is already set.
// It reports whether the row was updated.
func (s *Store) SetJobSummary(ctx context.Context, id uint, summary string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND jd_summary IS NULL", id).
		Update("jd_summary", summary)
	if res.Error != nil {
		return false, fmt.Errorf("set summary of job %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
