package store

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Schema snapshots. Migrations never reference the live models so that old
// versions keep producing the schema they produced when they were written.

type jobV1 struct {
	ID             uint    `gorm:"primaryKey"`
	JobTitle       string  `gorm:"size:255;not null"`
	JobDescription string  `gorm:"type:text;not null"`
	JDSummary      *string `gorm:"column:jd_summary;type:text"`
	CreatedAt      time.Time
}

func (jobV1) TableName() string { return "jobs" }

type candidateV1 struct {
	ID           uint     `gorm:"primaryKey"`
	Name         string   `gorm:"size:255"`
	Email        *string  `gorm:"size:255;uniqueIndex"`
	CVText       string   `gorm:"column:cv_text;type:text"`
	MatchScore   *float64
	MatchedJobID *uint  `gorm:"index"`
	MatchedJob   *jobV1 `gorm:"foreignKey:MatchedJobID;constraint:OnDelete:SET NULL"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (candidateV1) TableName() string { return "candidates" }

type shortlistV1 struct {
	ID          uint `gorm:"primaryKey"`
	CandidateID uint `gorm:"not null;uniqueIndex:idx_shortlist_candidate_job"`
	JobID       uint `gorm:"not null;uniqueIndex:idx_shortlist_candidate_job"`
	Name        string  `gorm:"size:255"`
	Email       string  `gorm:"size:255"`
	MatchScore  float64
	CreatedAt   time.Time
}

func (shortlistV1) TableName() string { return "shortlisted_candidates" }

type shortlistV2 struct {
	EmailSent bool `gorm:"not null;default:false"`
}

func (shortlistV2) TableName() string { return "shortlisted_candidates" }

type pipelineRunV1 struct {
	ID         string `gorm:"primaryKey;size:36"`
	StartedAt  time.Time
	FinishedAt *time.Time
	Report     datatypes.JSON
}

func (pipelineRunV1) TableName() string { return "pipeline_runs" }

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202610010001_create_jobs_and_candidates",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&jobV1{}, &candidateV1{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("candidates", "jobs")
			},
		},
		{
			ID: "202610010002_create_shortlisted_candidates",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&shortlistV1{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("shortlisted_candidates")
			},
		},
		{
			ID: "202610010003_add_shortlist_email_sent",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&shortlistV2{}, "EmailSent") {
					return nil
				}
				return tx.Migrator().AddColumn(&shortlistV2{}, "EmailSent")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&shortlistV2{}, "EmailSent")
			},
		},
		{
			ID: "202610010004_create_pipeline_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&pipelineRunV1{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("pipeline_runs")
			},
		},
	}
}

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, &gormigrate.Options{
		TableName:                 "schema_migrations",
		IDColumnName:              "id",
		IDColumnSize:              255,
		UseTransaction:            false,
		ValidateUnknownMigrations: true,
	}, migrations())
}
