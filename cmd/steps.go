package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ingest"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Run: func(_ *cobra.Command, _ []string) {
		e, done := setup("migrate")
		defer done()

		e.logger.Info("database is up to date", zap.String("driver", e.config.Database.Driver))
	},
}

var loadJobsCmd = &cobra.Command{
	Use:   "load-jobs",
	Short: "Load job descriptions from a CSV file",
	Run: func(cmd *cobra.Command, _ []string) {
		e, done := setup("load-jobs")
		defer done()

		path := e.config.Jobs.CSV
		if flag, _ := cmd.Flags().GetString("csv"); flag != "" {
			path = flag
		}

		err := e.withLock(func() error {
			items, err := ingest.NewJobLoader(e.store, e.logger).LoadFile(e.ctx, path)
			logItems(e.logger, "load_jobs", items)
			return err
		})
		if err != nil {
			e.logger.Fatal("loading jobs", zap.String("path", path), zap.Error(err))
		}
	},
}

var ingestCVsCmd = &cobra.Command{
	Use:   "ingest-cvs",
	Short: "Extract resumes (pdf, docx) into candidates",
	Run: func(cmd *cobra.Command, _ []string) {
		e, done := setup("ingest-cvs")
		defer done()

		dir, _ := cmd.Flags().GetString("dir")
		src, err := e.source(dir)
		if err != nil {
			e.logger.Fatal("preparing the resume source", zap.Error(err))
		}

		err = e.withLock(func() error {
			items, err := ingest.NewCVIngester(e.store, e.logger).Ingest(e.ctx, src)
			logItems(e.logger, "ingest_cvs", items)
			return err
		})
		if err != nil {
			e.logger.Fatal("ingesting resumes", zap.String("source", src.String()), zap.Error(err))
		}
	},
}

var summarizeJobsCmd = &cobra.Command{
	Use:   "summarize-jobs",
	Short: "Summarize job descriptions that have no summary yet",
	Run: func(_ *cobra.Command, _ []string) {
		e, done := setup("summarize-jobs")
		defer done()

		runner, err := e.jobRunner()
		if err != nil {
			e.logger.Fatal("preparing the summarizer", zap.Error(err))
		}

		err = e.withLock(func() error {
			items, err := runner.Run(e.ctx)
			logItems(e.logger, "summarize_jobs", items)
			return err
		})
		if err != nil {
			e.logger.Fatal("summarizing jobs", zap.Error(err))
		}
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score unscored candidates against every summarized job",
	Run: func(_ *cobra.Command, _ []string) {
		e, done := setup("match")
		defer done()

		matcher, err := e.matcher()
		if err != nil {
			e.logger.Fatal("preparing the matcher", zap.Error(err))
		}

		err = e.withLock(func() error {
			items, err := matcher.Run(e.ctx)
			logItems(e.logger, "match", items)
			return err
		})
		if err != nil {
			e.logger.Fatal("matching candidates", zap.Error(err))
		}
	},
}

var shortlistCmd = &cobra.Command{
	Use:   "shortlist",
	Short: "Shortlist candidates whose match score reaches the threshold",
	Run: func(cmd *cobra.Command, _ []string) {
		e, done := setup("shortlist")
		defer done()

		threshold := e.config.Shortlist.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold, _ = cmd.Flags().GetFloat64("threshold")
		}

		err := e.withLock(func() error {
			result, err := e.shortlister().Run(e.ctx, threshold)
			logItems(e.logger, "shortlist", result.Items)
			if err == nil {
				e.logger.Info("candidates shortlisted", zap.Int("count", result.Qualified), zap.Int("added", result.Added))
			}
			return err
		})
		if err != nil {
			e.logger.Fatal("shortlisting candidates", zap.Error(err))
		}
	},
}

var resetMatchesCmd = &cobra.Command{
	Use:   "reset-matches",
	Short: "Clear match scores so candidates are matched again",
	Run: func(cmd *cobra.Command, _ []string) {
		e, done := setup("reset-matches")
		defer done()

		candidate, _ := cmd.Flags().GetUint("candidate")

		err := e.withLock(func() error {
			n, err := e.store.ResetMatches(e.ctx, candidate)
			if err == nil {
				e.logger.Info("matches reset", zap.Int64("candidates", n))
			}
			return err
		})
		if err != nil {
			e.logger.Fatal("resetting matches", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, loadJobsCmd, ingestCVsCmd, summarizeJobsCmd, matchCmd, shortlistCmd, resetMatchesCmd)

	loadJobsCmd.Flags().String("csv", "", "job descriptions csv. Default is jobs.csv from the config")
	ingestCVsCmd.Flags().String("dir", "", "directory with resumes. Overrides cvs.dir and cvs.s3")
	shortlistCmd.Flags().Float64("threshold", 70, "minimum match score")
	resetMatchesCmd.Flags().Uint("candidate", 0, "reset a single candidate. Default is all")
}

// logItems logs one line per failed or skipped item and a summary.
func logItems(log *zap.Logger, name string, items []report.Item) {
	step := report.Step{Name: name}
	step.Add(items...)

	log = log.With(zap.String(logger.FieldStage, name))
	for _, item := range step.Items {
		switch item.Status {
		case report.StatusFailed:
			log.Warn("item failed", zap.String("id", item.ID), zap.String("reason", item.Reason))
		case report.StatusSkipped:
			log.Debug("item skipped", zap.String("id", item.ID), zap.String("reason", item.Reason))
		}
	}

	counts := step.Counts()
	log.Info("step finished",
		zap.Int("processed", counts.Processed),
		zap.Int("succeeded", counts.Succeeded),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)
}
