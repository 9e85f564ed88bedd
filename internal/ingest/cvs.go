package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
)

var ErrNoEmail = errors.New("no email address found")

// CandidateStore is the persistence CVIngester writes to.
type CandidateStore interface {
	CreateCandidate(ctx context.Context, c *store.Candidate) (bool, error)
}

// CVIngester creates candidates from resume files.
type CVIngester struct {
	store  CandidateStore
	logger *zap.Logger
}

func NewCVIngester(store CandidateStore, log *zap.Logger) *CVIngester {
	return &CVIngester{store: store, logger: logger.OrNop(log)}
}

// Ingest reads every resume of src. Unreadable files, files without text and
// files without an email address are skipped; a candidate whose email is
// already stored is skipped as a duplicate. Only storage errors abort.
func (i *CVIngester) Ingest(ctx context.Context, src Source) ([]report.Item, error) {
	names, err := src.List(ctx)
	if err != nil {
		return nil, err
	}

	i.logger.Info("ingesting resumes", zap.String("source", src.String()), zap.Int("files", len(names)))

	items := make([]report.Item, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		item, err := i.ingestOne(ctx, src, name)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}

	return items, nil
}

func (i *CVIngester) ingestOne(ctx context.Context, src Source, name string) (report.Item, error) {
	log := i.logger.With(zap.String("file", name))

	if !Supported(name) {
		log.Warn("skipping file", zap.Error(ErrUnsupportedFile))
		return report.Skipped(name, ErrUnsupportedFile.Error()), nil
	}

	data, err := src.Read(ctx, name)
	if err != nil {
		log.Warn("skipping unreadable file", zap.Error(err))
		return report.Skipped(name, err.Error()), nil
	}

	text, err := ExtractText(name, data)
	if err != nil {
		log.Warn("skipping file without extractable text", zap.Error(err))
		return report.Skipped(name, err.Error()), nil
	}

	email := ExtractEmail(text)
	if email == "" {
		log.Warn("skipping resume", zap.Error(ErrNoEmail))
		return report.Skipped(name, ErrNoEmail.Error()), nil
	}

	candidate := &store.Candidate{
		Name:   CandidateName(name),
		Email:  &email,
		CVText: text,
	}

	created, err := i.store.CreateCandidate(ctx, candidate)
	if err != nil {
		return report.Item{}, err
	}

	if !created {
		log.Info("candidate already exists", zap.String(logger.FieldEmail, email))
		return report.Skipped(name, "duplicate email"), nil
	}

	log.Info("candidate added", logger.CandidateFields(candidate.ID, email)...)
	return report.OK(name), nil
}
