package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/track"
)

var (
	syncRunType string
	syncNotes   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch all documents and record a tracking run",
	Long: `Fetch every document from the service, classify each one against the
tracking store (new, changed, unchanged), soft-delete documents that
disappeared, and record the run with its counts.

Examples:
  papertrail sync                                # regular sync run
  papertrail sync --run-type bootstrap           # first run against a service
  papertrail sync --run-type ocr-rerun --notes "post llm batch"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch syncRunType {
		case track.RunTypeBootstrap, track.RunTypeSync, track.RunTypeOCRRerun:
		default:
			return usagef("invalid --run-type %q: must be %s, %s, or %s",
				syncRunType, track.RunTypeBootstrap, track.RunTypeSync, track.RunTypeOCRRerun)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		client, err := a.apiClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		a.logger.Info("fetching documents", "url", client.BaseURL())
		docs, err := client.FetchAll(ctx)
		if err != nil {
			return err
		}

		store, err := track.Open(a.home.TrackingDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err := store.RunSync(ctx, track.RunMeta{
			RunType:    syncRunType,
			APIBaseURL: client.BaseURL(),
			Notes:      syncNotes,
		}, docs, time.Now().UTC())
		if err != nil {
			return err
		}

		a.logger.Info("sync run complete", "run_id", summary.RunID)
		fmt.Printf("run %d (%s): %d documents, %d new, %d changed, %d unchanged, %d missing\n",
			summary.RunID, syncRunType, summary.Total,
			summary.New, summary.Changed, summary.Unchanged, summary.Missing)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncRunType, "run-type", track.RunTypeSync,
		"run classification: bootstrap, sync, or ocr-rerun")
	syncCmd.Flags().StringVar(&syncNotes, "notes", "", "free-text note stored on the run row")
}
