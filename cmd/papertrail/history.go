package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/history"
	"github.com/jackzampolin/papertrail/internal/track"
)

var (
	historyStatus string
	historyLimit  int
	historyRuns   bool
	eventsLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show processing history",
	Long: `Print the per-document processing history rows. With --runs the sync
run records from the tracking store are shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if historyRuns {
			return printRuns(cmd, a)
		}

		switch historyStatus {
		case "all", "success", "failed":
		default:
			return usagef("invalid --status %q: must be all, success, or failed", historyStatus)
		}

		success, failed, err := history.NewLog(a.home.HistoryLogPath()).Load()
		if err != nil {
			return err
		}

		var rows []history.Row
		switch historyStatus {
		case "success":
			rows = success
		case "failed":
			rows = failed
		default:
			rows = append(success, failed...)
		}
		if historyLimit > 0 && len(rows) > historyLimit {
			rows = rows[len(rows)-historyLimit:]
		}

		fmt.Printf("%d history row(s)\n", len(rows))
		for _, r := range rows {
			detail := r.Detail
			if detail == "" {
				detail = "-"
			}
			fmt.Printf("  %s  %6d  %-7s  %+6d chars  %s\n",
				r.RunTS, r.ID, r.Status, r.ContentDelta, detail)
		}
		return nil
	},
}

func printRuns(cmd *cobra.Command, a *app) error {
	store, err := track.Open(a.home.TrackingDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	limit := historyLimit
	if limit <= 0 {
		limit = 20
	}
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	fmt.Printf("%d run(s)\n", len(runs))
	for _, r := range runs {
		fmt.Printf("  %4d  %-10s  %s  total=%d new=%d changed=%d unchanged=%d missing=%d\n",
			r.ID, r.RunType, r.StartedAt,
			r.Total, r.New, r.Changed, r.Unchanged, r.Missing)
	}
	return nil
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent pipeline events and a per-engine summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		store, err := export.OpenEvents(a.home.PipelineDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.List(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}

		ov := export.Summarize(events)
		fmt.Printf("%d event(s): %d success, %d failed; %s\n",
			ov.Events, ov.Success, ov.Failed, ov.EngineSummary())
		for _, ev := range events {
			note := ev.Note
			if note == "" {
				note = "-"
			}
			fmt.Printf("  %s  %6d  %-18s  %-22s  %-8s  %s\n",
				ev.EventTS, ev.DocID, ev.Action, ev.Engine, ev.Status, note)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "all", "filter rows: all, success, or failed")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the newest N entries")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "show sync run records instead of document rows")

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "show the newest N events")
}
