package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "recruitment.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Migrate(context.Background()))

	for _, table := range []string{"jobs", "candidates", "shortlisted_candidates", "pipeline_runs", "schema_migrations"} {
		assert.True(t, s.db.Migrator().HasTable(table), table)
	}
	assert.True(t, s.db.Migrator().HasColumn(&ShortlistEntry{}, "EmailSent"))

	var applied int64
	require.NoError(t, s.db.Table("schema_migrations").Count(&applied).Error)
	assert.Equal(t, int64(len(migrations())), applied)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"}, nil)
	require.EqualError(t, err, "unsupported database driver: oracle")

	_, err = Open(Config{Driver: DriverPostgres}, nil)
	require.EqualError(t, err, "database dsn is required for postgres")
}

func TestWithSQLitePragmas(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withSQLitePragmas("a.db"))
	assert.Equal(t, "a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withSQLitePragmas("a.db?mode=rwc"))
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)", withSQLitePragmas("a.db?_pragma=journal_mode(WAL)"))
}

func TestJobSummaryIsSetOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &Job{Title: "Data Engineer", Description: "Build pipelines", Summary: strPtr("ignored on create")}
	require.NoError(t, s.CreateJob(ctx, job))

	exists, err := s.JobExists(ctx, "Data Engineer", "Build pipelines")
	require.NoError(t, err)
	assert.True(t, exists)

	pending, err := s.JobsWithoutSummary(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	updated, err := s.SetJobSummary(ctx, job.ID, "Skills: SQL")
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = s.SetJobSummary(ctx, job.ID, "Skills: something else")
	require.NoError(t, err)
	assert.False(t, updated)

	summarized, err := s.SummarizedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, summarized, 1)
	assert.Equal(t, job.ID, summarized[0].ID)
	require.NotNil(t, summarized[0].Summary)
	assert.Equal(t, "Skills: SQL", *summarized[0].Summary)
}

func TestCreateCandidateDeduplicatesByEmail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreateCandidate(ctx, &Candidate{Name: "Jane Doe", Email: strPtr("jane@example.com"), CVText: "first"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateCandidate(ctx, &Candidate{Name: "Jane D", Email: strPtr("jane@example.com"), CVText: "second"})
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, s.db.Model(&Candidate{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSaveMatchWritesOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &Job{Title: "Backend", Description: "Go"}
	require.NoError(t, s.CreateJob(ctx, job))
	c := &Candidate{Name: "Jane", Email: strPtr("jane@example.com")}
	_, err := s.CreateCandidate(ctx, c)
	require.NoError(t, err)

	changed, err := s.SaveMatch(ctx, c.ID, &job.ID, 83.75)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SaveMatch(ctx, c.ID, nil, 10)
	require.NoError(t, err)
	assert.False(t, changed)

	unscored, err := s.UnscoredCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, unscored)

	qualified, err := s.QualifiedCandidates(ctx, 70)
	require.NoError(t, err)
	require.Len(t, qualified, 1)
	assert.Equal(t, 83.75, *qualified[0].MatchScore)
	assert.Equal(t, job.ID, *qualified[0].MatchedJobID)

	reset, err := s.ResetMatches(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	unscored, err = s.UnscoredCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, unscored, 1)
}

func TestUnmatchedCandidateIsNotQualified(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := &Candidate{Name: "Jane", Email: strPtr("jane@example.com")}
	_, err := s.CreateCandidate(ctx, c)
	require.NoError(t, err)

	_, err = s.SaveMatch(ctx, c.ID, nil, 0)
	require.NoError(t, err)

	qualified, err := s.QualifiedCandidates(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, qualified)
}

func TestShortlistIsIdempotentAndTracksNotifications(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &Job{Title: "Backend", Description: "Go"}
	require.NoError(t, s.CreateJob(ctx, job))
	c := &Candidate{Name: "Jane", Email: strPtr("jane@example.com")}
	_, err := s.CreateCandidate(ctx, c)
	require.NoError(t, err)

	entry := ShortlistEntry{CandidateID: c.ID, JobID: job.ID, Name: c.Name, Email: *c.Email, MatchScore: 90}
	first := entry
	created, err := s.AddToShortlist(ctx, &first)
	require.NoError(t, err)
	assert.True(t, created)

	second := entry
	created, err = s.AddToShortlist(ctx, &second)
	require.NoError(t, err)
	assert.False(t, created)

	pending, err := s.PendingInvitations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Backend", pending[0].JobTitle)
	assert.Equal(t, "jane@example.com", pending[0].Email)

	require.NoError(t, s.MarkInvitationSent(ctx, pending[0].EntryID))

	pending, err = s.PendingInvitations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	list, err := s.Shortlist(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.True(t, list.Items[0].EmailSent)
	assert.Empty(t, list.Pending())

	require.Error(t, s.MarkInvitationSent(ctx, 999))
}

func TestRunReportIsStored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	started := time.Now().UTC()
	require.NoError(t, s.StartRun(ctx, "run-1", started))
	require.NoError(t, s.FinishRun(ctx, "run-1", started.Add(time.Second), map[string]int{"matched": 3}))

	runs, err := s.LatestRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].FinishedAt)

	var report map[string]int
	require.NoError(t, json.Unmarshal(runs[0].Report, &report))
	assert.Equal(t, 3, report["matched"])

	require.Error(t, s.FinishRun(ctx, "missing", started, nil))
}

func TestShortlistReportByJob(t *testing.T) {
	list := &Shortlist{Items: []*Invitation{
		{JobID: 1, JobTitle: "Backend", Name: "Low", Email: "low@example.com", MatchScore: 71},
		{JobID: 2, JobTitle: "Data", Name: "Only", Email: "only@example.com", MatchScore: 80, EmailSent: true},
		{JobID: 1, JobTitle: "Backend", Name: "High", Email: "high@example.com", MatchScore: 95.5},
	}}

	report := list.ReportByJob()
	require.Len(t, report, 2)
	require.Len(t, report["Backend (1)"], 2)
	assert.Equal(t, "High", report["Backend (1)"][0]["name"])
	assert.Equal(t, "95.50", report["Backend (1)"][0]["score"])
	assert.Equal(t, "true", report["Data (2)"][0]["email sent"])
	assert.Len(t, list.Pending(), 2)

	filename, err := list.DumpToTmpFile()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(filename) })

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "high@example.com")
}
