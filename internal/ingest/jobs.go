package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
)

const (
	ColumnTitle       = "Job Title"
	ColumnDescription = "Job Description"
)

var (
	ErrMissingColumns = errors.New("missing required columns")

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// JobRow is one data row of the job description file. Line is 1-based and
// counts the header.
type JobRow struct {
	Line        int
	Title       string
	Description string
}

// ParseJobs reads a delimited job file. Input is UTF-8, optionally with a BOM;
// anything that is not valid UTF-8 is decoded as Windows-1252.
func ParseJobs(r io.Reader) ([]JobRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s, %s", ErrMissingColumns, ColumnTitle, ColumnDescription)
	}
	if err != nil {
		return nil, fmt.Errorf("read job file header: %w", err)
	}

	titleIdx, descIdx := -1, -1
	for i, column := range header {
		switch strings.TrimSpace(column) {
		case ColumnTitle:
			titleIdx = i
		case ColumnDescription:
			descIdx = i
		}
	}

	var missing []string
	if titleIdx < 0 {
		missing = append(missing, ColumnTitle)
	}
	if descIdx < 0 {
		missing = append(missing, ColumnDescription)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var rows []JobRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read job file: %w", err)
		}

		line, _ := reader.FieldPos(0)
		rows = append(rows, JobRow{
			Line:        line,
			Title:       cell(record, titleIdx),
			Description: cell(record, descIdx),
		})
	}

	return rows, nil
}

func cell(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode job file as windows-1252: %w", err)
	}
	return string(decoded), nil
}

// JobStore is the persistence JobLoader writes to.
type JobStore interface {
	JobExists(ctx context.Context, title, description string) (bool, error)
	CreateJob(ctx context.Context, job *store.Job) error
}

// JobLoader turns job file rows into jobs awaiting a summary.
type JobLoader struct {
	store  JobStore
	logger *zap.Logger
}

func NewJobLoader(store JobStore, log *zap.Logger) *JobLoader {
	return &JobLoader{store: store, logger: logger.OrNop(log)}
}

// LoadFile loads the job file at path.
func (l *JobLoader) LoadFile(ctx context.Context, path string) ([]report.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}
	defer file.Close()

	return l.Load(ctx, file)
}

// Load stores every valid row of r. Rows without a title or description and
// rows identical to a stored job are skipped.
func (l *JobLoader) Load(ctx context.Context, r io.Reader) ([]report.Item, error) {
	rows, err := ParseJobs(r)
	if err != nil {
		return nil, err
	}

	items := make([]report.Item, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		id := fmt.Sprintf("row %d", row.Line)

		if row.Title == "" || row.Description == "" {
			l.logger.Warn("skipping job row without title or description", zap.Int("line", row.Line))
			items = append(items, report.Skipped(id, "empty title or description"))
			continue
		}

		exists, err := l.store.JobExists(ctx, row.Title, row.Description)
		if err != nil {
			return items, err
		}
		if exists {
			l.logger.Debug("job already loaded", zap.Int("line", row.Line), zap.String("title", row.Title))
			items = append(items, report.Skipped(id, "already loaded"))
			continue
		}

		job := &store.Job{Title: row.Title, Description: row.Description}
		if err := l.store.CreateJob(ctx, job); err != nil {
			return items, err
		}

		l.logger.Info("job loaded", logger.JobField(job.ID), zap.String("title", job.Title))
		items = append(items, report.OK(id))
	}

	return items, nil
}
