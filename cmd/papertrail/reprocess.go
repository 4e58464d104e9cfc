package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/history"
	"github.com/jackzampolin/papertrail/internal/paperless"
	"github.com/jackzampolin/papertrail/internal/reconcile"
)

var (
	reprocessID             int
	reprocessIDs            string
	reprocessAll            bool
	reprocessMissingArchive bool
	reprocessBatchSize      int
	reprocessExcludeRecent  int
	reprocessSample         int
	reprocessDryRun         bool
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Submit documents for service-side reprocessing and reconcile outcomes",
	Long: `Select documents, submit each one for reprocessing, and drive every id
to a terminal success or failure: poll task ids when the API returns them,
fall back to watching for document diffs when it does not, and refetch each
document for the final report. One history row is appended per document.

Examples:
  papertrail reprocess --all                       # candidate selection over everything
  papertrail reprocess --ids 12,31 --dry-run       # show what would be submitted
  papertrail reprocess --missing-archive --sample 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		modes := 0
		if reprocessID > 0 {
			modes++
		}
		if reprocessIDs != "" {
			modes++
		}
		if reprocessAll {
			modes++
		}
		if reprocessMissingArchive {
			modes++
		}
		if modes != 1 {
			return usagef("pick exactly one of --id, --ids, --all, or --missing-archive")
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
		now := time.Now()

		a.logger.Info("fetching documents", "url", client.BaseURL())
		docs, err := client.FetchAll(ctx)
		if err != nil {
			return err
		}

		log := history.NewLog(a.home.HistoryLogPath())
		processed, err := log.Rows()
		if err != nil {
			return err
		}

		selected, err := selectForReprocess(a, docs, processed, now)
		if err != nil {
			return err
		}
		if reprocessSample > 0 && reprocessSample < len(selected) {
			selected = selected[:reprocessSample]
		}
		if len(selected) == 0 {
			fmt.Println("nothing to reprocess")
			return nil
		}

		if reprocessDryRun {
			fmt.Printf("would reprocess %d document(s):\n", len(selected))
			for _, d := range selected {
				fmt.Printf("  %6d  %8d chars  %s\n", d.ID, d.ContentLength, d.Title)
			}
			return nil
		}

		events, err := export.OpenEvents(a.home.PipelineDBPath())
		if err != nil {
			return err
		}
		defer events.Close()

		engine := reconcile.New(client, reconcile.Config{
			TaskPollInterval: time.Duration(a.cfg.Reconcile.TaskPollIntervalSeconds) * time.Second,
			DiffPollInterval: time.Duration(a.cfg.Reconcile.DiffPollIntervalSeconds) * time.Second,
			DiffMaxWait:      time.Duration(a.cfg.Reconcile.DiffMaxWaitSeconds) * time.Second,
		}, a.logger, reconcile.WithEventHook(func(ev reconcile.Event) {
			rerr := events.Record(ctx, export.Event{
				DocID:  ev.DocID,
				Title:  ev.Title,
				Action: ev.Action,
				Engine: ev.Engine,
				Status: ev.Status,
				Note:   ev.Note,
			})
			if rerr != nil {
				a.logger.Warn("pipeline event not recorded", "id", ev.DocID, "error", rerr)
			}
		}))

		runTS := now.Format(history.RunTimestampLayout)
		result := engine.Run(ctx, selected, runTS)

		if err := log.Append(result.Rows); err != nil {
			return err
		}

		fmt.Printf("reprocessed %d document(s): %d success, %d failed\n",
			len(selected), result.Success, result.Failed)
		if result.AcceptedNoTask > 0 {
			fmt.Printf("accepted without task id: %d (%d observed diff, %d no diff observed)\n",
				result.AcceptedNoTask, result.ObservedDiff, result.NoObservedDiff)
		}
		return nil
	},
}

// selectForReprocess resolves the selection flags to an ordered batch.
// Explicit ids bypass candidate selection; --all and --missing-archive go
// through exclusion, ordering, and batch truncation.
func selectForReprocess(a *app, docs []paperless.Document, processed []history.Row, now time.Time) ([]paperless.Document, error) {
	if reprocessID > 0 || reprocessIDs != "" {
		ids, err := parseIDList(reprocessID, reprocessIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[int]paperless.Document, len(docs))
		for _, d := range docs {
			byID[d.ID] = d
		}
		var selected []paperless.Document
		for _, id := range ids {
			d, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("document %d not found in the service listing", id)
			}
			selected = append(selected, d)
		}
		return selected, nil
	}

	pool := docs
	if reprocessMissingArchive {
		pool = nil
		for _, d := range docs {
			if d.ArchiveFilename == "" {
				pool = append(pool, d)
			}
		}
	}

	batchSize := a.cfg.Candidates.BatchSize
	if reprocessBatchSize > 0 {
		batchSize = reprocessBatchSize
	}
	recentDays := a.cfg.Candidates.ExcludeRecentDays
	if reprocessExcludeRecent >= 0 {
		recentDays = reprocessExcludeRecent
	}

	sel := history.SelectCandidates(pool, processed, batchSize, recentDays, now)
	a.logger.Info("candidates selected",
		"selected", len(sel.Selected), "pool", sel.TotalDocuments, "excluded_recent", sel.ExcludedRecent)
	return sel.Selected, nil
}

// parseIDList merges --id and --ids into one ordered, deduplicated list.
func parseIDList(single int, csv string) ([]int, error) {
	var ids []int
	seen := make(map[int]bool)
	add := func(id int) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if single > 0 {
		add(single)
	}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, usagef("invalid document id %q", part)
		}
		add(id)
	}
	return ids, nil
}

func init() {
	reprocessCmd.Flags().IntVar(&reprocessID, "id", 0, "reprocess a single document id")
	reprocessCmd.Flags().StringVar(&reprocessIDs, "ids", "", "comma-separated document ids")
	reprocessCmd.Flags().BoolVar(&reprocessAll, "all", false, "run candidate selection over all documents")
	reprocessCmd.Flags().BoolVar(&reprocessMissingArchive, "missing-archive", false,
		"run candidate selection over documents without an archive file")
	reprocessCmd.Flags().IntVar(&reprocessBatchSize, "batch-size", 0, "batch size (overrides config)")
	reprocessCmd.Flags().IntVar(&reprocessExcludeRecent, "exclude-recent-days", -1,
		"skip documents processed within N days (overrides config)")
	reprocessCmd.Flags().IntVar(&reprocessSample, "sample", 0, "cap the batch at N documents")
	reprocessCmd.Flags().BoolVar(&reprocessDryRun, "dry-run", false, "print the selection without submitting")
}
