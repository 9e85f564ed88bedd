package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ingest"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/report"
)

const (
	PromptYes         = "Yes"
	PromptNo          = "No"
	PromptReportByJob = "Report by job"
	PromptDumpToFile  = "Dump shortlist to file"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Send interview invitations?",
	Items: []string{PromptYes, PromptNo, PromptReportByJob, PromptDumpToFile},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage: load jobs, ingest resumes, summarize, match, shortlist and notify",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending invitations")
	runCmd.Flags().StringSlice("skip", nil, "stages to skip: "+strings.Join(pipeline.StageNames, ","))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	e, done := setup("run")
	defer done()

	skip, _ := cmd.Flags().GetStringSlice("skip")
	for _, name := range skip {
		if !slices.Contains(pipeline.StageNames, name) {
			e.logger.Fatal("unknown stage", zap.String(logger.FieldStage, name), zap.Strings("stages", pipeline.StageNames))
		}
	}

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	stages, err := prepareStages(e, skip, autoApprove)
	if err != nil {
		e.logger.Fatal("preparing stages", zap.Error(err))
	}

	for _, status := range pipeline.Describe(stages) {
		e.logger.Info("stage", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled), zap.String("reason", status.Reason), zap.Any("details", status.Details))
	}

	locker, err := e.locker()
	if err != nil {
		e.logger.Fatal("preparing the pipeline lock", zap.Error(err))
	}

	rep, err := pipeline.New(stages, e.store, locker, e.logger).Run(e.ctx)
	if rep != nil {
		logFailures(e.logger, rep)
	}
	if err != nil {
		e.logger.Fatal("pipeline failed", zap.Error(err))
	}
}

func prepareStages(e *env, skip []string, autoApprove bool) ([]pipeline.Stage, error) {
	skipped := func(name string) bool { return slices.Contains(skip, name) }

	var (
		jobs     = pipeline.NewLoadJobs(nil, "")
		cvs      = pipeline.NewIngestCVs(nil, nil)
		summary  = pipeline.NewSummarizeJobs(nil)
		match    = pipeline.NewMatch(nil)
		short    = pipeline.NewShortlist(nil, e.config.Shortlist.Threshold)
		invitees = pipeline.NewNotify(nil)
	)

	if !skipped(pipeline.StageLoadJobs) {
		jobs = pipeline.NewLoadJobs(ingest.NewJobLoader(e.store, e.logger), e.config.Jobs.CSV)
	}

	if !skipped(pipeline.StageIngestCVs) {
		src, err := e.source("")
		if err != nil {
			return nil, err
		}
		cvs = pipeline.NewIngestCVs(ingest.NewCVIngester(e.store, e.logger), src)
	}

	if !skipped(pipeline.StageSummarizeJobs) {
		runner, err := e.jobRunner()
		if err != nil {
			return nil, err
		}
		summary = pipeline.NewSummarizeJobs(runner)
	}

	if !skipped(pipeline.StageMatch) {
		matcher, err := e.matcher()
		if err != nil {
			return nil, err
		}
		match = pipeline.NewMatch(matcher)
	}

	if !skipped(pipeline.StageShortlist) {
		short = pipeline.NewShortlist(e.shortlister(), e.config.Shortlist.Threshold)
	}

	if !skipped(pipeline.StageNotify) {
		notifier, err := e.notifier()
		if err != nil {
			return nil, err
		}
		invitees = pipeline.NewNotify(&confirmedRunner{
			runner:  notifier,
			confirm: func(context.Context) (bool, error) { return confirmInvitations(e, autoApprove) },
			logger:  e.logger,
		})
	}

	stages := []pipeline.Stage{jobs, cvs, summary, match, short, invitees}
	for _, name := range skip {
		pipeline.DisableByName(stages, name, "skip requested via flag")
	}
	return stages, nil
}

// confirmedRunner asks before running the wrapped stage.
type confirmedRunner struct {
	runner  pipeline.ItemRunner
	confirm func(ctx context.Context) (bool, error)
	logger  *zap.Logger
}

func (c *confirmedRunner) Run(ctx context.Context) ([]report.Item, error) {
	ok, err := c.confirm(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return nil, nil
	}
	return c.runner.Run(ctx)
}

// confirmInvitations loops over the prompt until the user answers yes or no.
func confirmInvitations(e *env, autoApprove bool) (bool, error) {
	if autoApprove {
		return true, nil
	}

	for {
		list, err := e.store.Shortlist(e.ctx)
		if err != nil {
			return false, err
		}

		pending := len(list.Pending())
		if pending == 0 {
			e.logger.Info("all shortlisted candidates have already received interview emails")
			return false, nil
		}

		e.logger.Info("current list of pending invitations", zap.Int("count", pending))

		_, action, err := prompt.Run()
		if err != nil {
			return false, err
		}

		if err := handleAction(action, e.logger, list); err != nil {
			if errors.Is(err, errExit) {
				return false, nil
			}
			return false, err
		}

		if action == PromptYes {
			return true, nil
		}
	}
}

type shortlistView interface {
	Len() int
	ReportByJob() map[string][]map[string]string
	DumpToTmpFile() (string, error)
}

func handleAction(action string, logger *zap.Logger, list shortlistView) error {
	switch action {
	case PromptYes:
		return nil
	case PromptNo:
		return errExit
	case PromptReportByJob:
		pretty, _ := json.MarshalIndent(list.ReportByJob(), "", "  ")
		logger.Info(string(pretty), zap.Int("shortlisted count", list.Len()))
		return nil
	case PromptDumpToFile:
		filename, err := list.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump shortlist to file: %w", err)
		}
		logger.Info("dumping shortlist to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func logFailures(log *zap.Logger, rep *report.Report) {
	for _, step := range rep.Steps {
		for _, item := range step.Failures() {
			log.Warn("item failed", zap.String(logger.FieldStage, step.Name), zap.String("id", item.ID), zap.String("reason", item.Reason))
		}
	}

	if step, ok := rep.Step(pipeline.StageShortlist); ok && !step.Disabled {
		log.Info("candidates shortlisted", zap.Int("count", step.Metrics["shortlisted"]), zap.Int("added", step.Metrics["added"]))
	}

	log.Info("run report",
		zap.String("run_id", rep.RunID),
		zap.Int("processed", rep.Totals.Processed),
		zap.Int("succeeded", rep.Totals.Succeeded),
		zap.Int("skipped", rep.Totals.Skipped),
		zap.Int("failed", rep.Totals.Failed),
	)
}
