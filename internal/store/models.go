package store

import (
	"time"

	"gorm.io/datatypes"
)

// Job is a position loaded from the job description file.
type Job struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Title       string  `gorm:"column:job_title;size:255;not null" json:"job_title"`
	Description string  `gorm:"column:job_description;type:text;not null" json:"job_description"`
	Summary     *string `gorm:"column:jd_summary;type:text" json:"jd_summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Job) TableName() string { return "jobs" }

// HasSummary reports whether the job takes part in matching.
func (j *Job) HasSummary() bool {
	return j.Summary != nil
}

// Candidate is an ingested resume. MatchScore and MatchedJobID are written once by matching.
type Candidate struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	Name         string   `gorm:"size:255" json:"name"`
	Email        *string  `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	CVText       string   `gorm:"column:cv_text;type:text" json:"-"`
	MatchScore   *float64 `json:"match_score,omitempty"`
	MatchedJobID *uint    `gorm:"index" json:"matched_job_id,omitempty"`
	MatchedJob   *Job     `gorm:"foreignKey:MatchedJobID;constraint:OnDelete:SET NULL" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Candidate) TableName() string { return "candidates" }

// ShortlistEntry records a candidate selected for a job. One row per (candidate, job).
type ShortlistEntry struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	CandidateID uint    `gorm:"not null;uniqueIndex:idx_shortlist_candidate_job" json:"candidate_id"`
	JobID       uint    `gorm:"not null;uniqueIndex:idx_shortlist_candidate_job" json:"job_id"`
	Name        string  `gorm:"size:255" json:"name"`
	Email       string  `gorm:"size:255" json:"email"`
	MatchScore  float64 `json:"match_score"`
	EmailSent   bool    `gorm:"not null;default:false" json:"email_sent"`

	CreatedAt time.Time `json:"created_at"`
}

func (ShortlistEntry) TableName() string { return "shortlisted_candidates" }

// PipelineRun stores the batch report of one pipeline execution.
type PipelineRun struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Report     datatypes.JSON `json:"report"`
}

func (PipelineRun) TableName() string { return "pipeline_runs" }

// Invitation is a shortlist row joined with its job title, pending or sent.
type Invitation struct {
	EntryID     uint    `gorm:"column:entry_id" json:"entry_id"`
	CandidateID uint    `gorm:"column:candidate_id" json:"candidate_id"`
	JobID       uint    `gorm:"column:job_id" json:"job_id"`
	Name        string  `gorm:"column:name" json:"name"`
	Email       string  `gorm:"column:email" json:"email"`
	JobTitle    string  `gorm:"column:job_title" json:"job_title"`
	MatchScore  float64 `gorm:"column:match_score" json:"match_score"`
	EmailSent   bool    `gorm:"column:email_sent" json:"email_sent"`
}
