package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Email interview invitations to shortlisted candidates not notified yet",
	Run: func(cmd *cobra.Command, _ []string) {
		e, done := setup("notify")
		defer done()

		notifier, err := e.notifier()
		if err != nil {
			e.logger.Fatal("preparing the mailer", zap.Error(err))
		}

		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		ok, err := confirmInvitations(e, autoApprove)
		if err != nil {
			e.logger.Fatal("exiting", zap.Error(err))
		}
		if !ok {
			return
		}

		err = e.withLock(func() error {
			items, err := notifier.Run(e.ctx)
			logItems(e.logger, "notify", items)
			return err
		})
		if err != nil {
			e.logger.Fatal("sending invitations", zap.Error(err))
		}
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the shortlist grouped by job",
	Run: func(cmd *cobra.Command, _ []string) {
		e, done := setup("report")
		defer done()

		list, err := e.store.Shortlist(e.ctx)
		if err != nil {
			e.logger.Fatal("reading the shortlist", zap.Error(err))
		}

		action := PromptReportByJob
		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			action = PromptDumpToFile
		}

		if err := handleAction(action, e.logger, list); err != nil {
			e.logger.Fatal("reporting", zap.Error(err))
		}

		runs, err := e.store.LatestRuns(e.ctx, 1)
		if err != nil {
			e.logger.Fatal("reading pipeline runs", zap.Error(err))
		}
		for _, r := range runs {
			e.logger.Info("last pipeline run", zap.String("run_id", r.ID), zap.Time("started_at", r.StartedAt), zap.ByteString("report", r.Report))
		}
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd, reportCmd)

	notifyCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending invitations")
	reportCmd.Flags().Bool("dump", false, "dump the shortlist to a temporary file")
}
