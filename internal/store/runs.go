package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// StartRun records the beginning of a pipeline run.
func (s *Store) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	run := &PipelineRun{ID: id, StartedAt: startedAt, Report: datatypes.JSON("{}")}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the report of a pipeline run.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report of run %s: %w", id, err)
	}

	res := s.db.WithContext(ctx).Model(&PipelineRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"finished_at": finishedAt,
			"report":      datatypes.JSON(payload),
		})
	if res.Error != nil {
		return fmt.Errorf("finish run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish run %s: run was not started", id)
	}
	return nil
}

// LatestRuns returns up to limit runs, newest first.
func (s *Store) LatestRuns(ctx context.Context, limit int) ([]PipelineRun, error) {
	var runs []PipelineRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
