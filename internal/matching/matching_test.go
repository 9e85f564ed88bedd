package matching

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
)

type stubModel struct {
	dims    int
	dimsErr error
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubModel) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func (s *stubModel) Dimensions(context.Context) (int, error) { return s.dims, s.dimsErr }

func (s *stubModel) Model() string { return "stub-embed" }

type tableScorer map[string]float64

func (t tableScorer) Score(_ context.Context, jobSummary, _ string) float64 {
	return t[jobSummary]
}

func summary(s string) *string { return &s }

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: -1},
		{name: "zero norm left", a: []float32{0, 0, 0, 0}, b: []float32{1, 2, 3, 4}, want: 0},
		{name: "zero norm right", a: []float32{5}, b: []float32{0}, want: 0},
		{name: "both zero", a: make([]float32, 4096), b: make([]float32, 4096), want: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, got, CosineSimilarity(tt.b, tt.a), 1e-12, "similarity must be symmetric")
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 83.75, Percent(0.8375))
	assert.Equal(t, 72.0, Percent(0.72))
	assert.Equal(t, 0.0, Percent(0))
	assert.Equal(t, -100.0, Percent(-1))
	assert.Equal(t, 33.33, Percent(1.0/3))

	// values just below a half after scaling stay below it
	assert.Equal(t, 72.34, Percent(0.72345))
	assert.Equal(t, 56.78, Percent(0.56785))
	assert.Equal(t, 0.12, Percent(0.00125))
}

func TestNewEmbedderResolvesDimensions(t *testing.T) {
	assert.Equal(t, 8, NewEmbedder(context.Background(), &stubModel{dims: 768}, EmbedderConfig{Dimensions: 8}, nil).Dimensions())
	assert.Equal(t, 768, NewEmbedder(context.Background(), &stubModel{dims: 768}, EmbedderConfig{}, nil).Dimensions())

	core, observed := observer.New(zapcore.WarnLevel)
	e := NewEmbedder(context.Background(), &stubModel{dimsErr: errors.New("show failed")}, EmbedderConfig{FallbackDimensions: 16}, zap.New(core))
	assert.Equal(t, 16, e.Dimensions())
	assert.Equal(t, 1, observed.FilterMessage("embedding dimensions unknown, using fallback").Len())

	assert.Equal(t, DefaultFallbackDimensions, NewEmbedder(context.Background(), &stubModel{}, EmbedderConfig{}, nil).Dimensions())
}

func TestEmbedNeverFails(t *testing.T) {
	model := &stubModel{vectors: map[string][]float32{
		"Skills: Go":  {0.1, 0.2, 0.3},
		"wrong shape": {0.1, 0.2},
	}}
	core, observed := observer.New(zapcore.WarnLevel)
	e := NewEmbedder(context.Background(), model, EmbedderConfig{Dimensions: 3}, zap.New(core))

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, e.Embed(context.Background(), "Skills: Go"))

	for _, text := range []string{"unknown", "wrong shape", "   ", ""} {
		got := e.Embed(context.Background(), text)
		require.NotNil(t, got, text)
		assert.Equal(t, []float32{0, 0, 0}, got, text)
	}

	assert.Equal(t, 3, model.calls, "blank text must not reach the model")
	assert.Equal(t, 2, observed.FilterMessage("embedding failed, using zero vector").Len())

	model.err = context.DeadlineExceeded
	assert.Len(t, e.Embed(context.Background(), "Skills: Go"), 3)
}

func TestScorer(t *testing.T) {
	model := &stubModel{vectors: map[string][]float32{
		"job": {1, 0},
		"cv":  {0.8375, 0},
		"far": {0, 1},
	}}
	scorer := NewScorer(NewEmbedder(context.Background(), model, EmbedderConfig{Dimensions: 2}, nil))

	assert.Equal(t, 100.0, scorer.Score(context.Background(), "job", "cv"))
	assert.Equal(t, 0.0, scorer.Score(context.Background(), "job", "far"))

	model.err = errors.New("model down")
	assert.Equal(t, 0.0, scorer.Score(context.Background(), "job", "cv"), "zero vectors score zero")
}

func TestBestMatch(t *testing.T) {
	scorer := tableScorer{"j1": 40, "j2": 72, "j3": 72, "neg": -12}

	t.Run("first of tied maxima wins", func(t *testing.T) {
		jobs := []store.Job{
			{ID: 1, Summary: summary("j1")},
			{ID: 2, Summary: summary("j2")},
			{ID: 3, Summary: summary("j3")},
		}
		match, ok := BestMatch(context.Background(), scorer, "cv", jobs)
		require.True(t, ok)
		require.NotNil(t, match.Job)
		assert.Equal(t, uint(2), match.Job.ID)
		assert.Equal(t, 72.0, match.Score)
	})

	t.Run("jobs without summary are ignored", func(t *testing.T) {
		match, ok := BestMatch(context.Background(), scorer, "cv", []store.Job{{ID: 1}, {ID: 2, Summary: summary("j1")}})
		require.True(t, ok)
		assert.Equal(t, uint(2), match.Job.ID)

		_, ok = BestMatch(context.Background(), scorer, "cv", []store.Job{{ID: 1}})
		assert.False(t, ok)
	})

	t.Run("non positive scores leave the candidate unmatched", func(t *testing.T) {
		match, ok := BestMatch(context.Background(), scorer, "cv", []store.Job{{ID: 1, Summary: summary("neg")}, {ID: 2, Summary: summary("zero")}})
		require.True(t, ok)
		assert.Nil(t, match.Job)
		assert.Equal(t, 0.0, match.Score)
	})
}

type fakeStore struct {
	jobs       []store.Job
	candidates []store.Candidate
	saved      map[uint]savedMatch
}

type savedMatch struct {
	jobID *uint
	score float64
}

func (f *fakeStore) SummarizedJobs(context.Context) ([]store.Job, error) { return f.jobs, nil }

func (f *fakeStore) UnscoredCandidates(context.Context) ([]store.Candidate, error) {
	var out []store.Candidate
	for _, c := range f.candidates {
		if _, ok := f.saved[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveMatch(_ context.Context, id uint, jobID *uint, score float64) (bool, error) {
	if f.saved == nil {
		f.saved = make(map[uint]savedMatch)
	}
	f.saved[id] = savedMatch{jobID: jobID, score: score}
	return true, nil
}

type fixedSummarizer string

func (f fixedSummarizer) SummarizeCV(context.Context, string) string { return string(f) }

func TestMatcherRun(t *testing.T) {
	st := &fakeStore{
		jobs:       []store.Job{{ID: 10, Title: "Backend", Summary: summary("j2")}, {ID: 11, Summary: summary("j1")}},
		candidates: []store.Candidate{{ID: 1}, {ID: 2}},
	}
	m := NewMatcher(st, fixedSummarizer("Skills: Go"), tableScorer{"j1": 40, "j2": 72}, nil)

	items, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []report.Item{report.OK("candidate 1"), report.OK("candidate 2")}, items)
	require.NotNil(t, st.saved[1].jobID)
	assert.Equal(t, uint(10), *st.saved[1].jobID)
	assert.Equal(t, 72.0, st.saved[1].score)

	items, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMatcherWithoutSummarizedJobsIsNoop(t *testing.T) {
	st := &fakeStore{candidates: []store.Candidate{{ID: 1}}}

	items, err := NewMatcher(st, fixedSummarizer("x"), tableScorer{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []report.Item{report.Skipped("candidate 1", "no summarized jobs")}, items)
	assert.Empty(t, st.saved)
}

func TestMatcherAgainstDatabaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(store.Config{DSN: filepath.Join(t.TempDir(), "match.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	for _, title := range []string{"j1", "j2", "j3"} {
		job := &store.Job{Title: title, Description: title}
		require.NoError(t, db.CreateJob(ctx, job))
		_, err := db.SetJobSummary(ctx, job.ID, title)
		require.NoError(t, err)
	}
	email := "jane@example.com"
	candidate := &store.Candidate{Name: "Jane", Email: &email, CVText: "cv"}
	_, err = db.CreateCandidate(ctx, candidate)
	require.NoError(t, err)

	m := NewMatcher(db, fixedSummarizer("Skills: Go"), tableScorer{"j1": 40, "j2": 72, "j3": 72}, nil)

	_, err = m.Run(ctx)
	require.NoError(t, err)

	qualified, err := db.QualifiedCandidates(ctx, 70)
	require.NoError(t, err)
	require.Len(t, qualified, 1)
	assert.Equal(t, 72.0, *qualified[0].MatchScore)
	assert.Equal(t, uint(2), *qualified[0].MatchedJobID)

	m = NewMatcher(db, fixedSummarizer("Skills: Go"), tableScorer{"j1": 99}, nil)
	items, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	qualified, err = db.QualifiedCandidates(ctx, 70)
	require.NoError(t, err)
	assert.Equal(t, uint(2), *qualified[0].MatchedJobID, "a second run must not rescore")
}
