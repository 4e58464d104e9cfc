package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/history"
)

var (
	candidatesBatchSize     int
	candidatesExcludeRecent int
	prospectiveThreshold    int
	prospectiveRecent       int
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the documents the next reprocess batch would pick",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		docs, processed, err := a.listingInputs(cmd.Context())
		if err != nil {
			return err
		}

		batchSize := a.cfg.Candidates.BatchSize
		if candidatesBatchSize > 0 {
			batchSize = candidatesBatchSize
		}
		recentDays := a.cfg.Candidates.ExcludeRecentDays
		if candidatesExcludeRecent >= 0 {
			recentDays = candidatesExcludeRecent
		}

		sel := history.SelectCandidates(docs, processed, batchSize, recentDays, time.Now())
		fmt.Printf("%d candidate(s) of %d documents (%d excluded as recently processed)\n",
			len(sel.Selected), sel.TotalDocuments, sel.ExcludedRecent)
		for _, d := range sel.Selected {
			fmt.Printf("  %6d  %8d chars  %s\n", d.ID, d.ContentLength, d.Title)
		}
		return nil
	},
}

var prospectiveCmd = &cobra.Command{
	Use:   "prospective",
	Short: "List documents that look like they need OCR attention",
	Long: `Flag documents whose extracted text is shorter than the threshold, whose
archive file is missing, or whose PDF yielded no text at all, with the reason
and when each was last processed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		docs, processed, err := a.listingInputs(cmd.Context())
		if err != nil {
			return err
		}

		threshold := a.cfg.Candidates.ProspectiveThreshold
		if prospectiveThreshold > 0 {
			threshold = prospectiveThreshold
		}
		recentDays := a.cfg.Candidates.ExcludeRecentDays
		if prospectiveRecent >= 0 {
			recentDays = prospectiveRecent
		}

		rows := history.SelectProspective(docs, processed, threshold, recentDays, time.Now())
		fmt.Printf("%d prospective document(s)\n", len(rows))
		for _, p := range rows {
			title := p.Title
			if title == "" {
				title = fmt.Sprintf("Document %d", p.ID)
			}
			fmt.Printf("  %6d  %8d chars  %-40s  %s  (last: %s)\n",
				p.ID, p.ContentLength, truncate(title, 40), p.Reason(), p.LastProcessed)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-3]) + "..."
}

func init() {
	candidatesCmd.Flags().IntVar(&candidatesBatchSize, "batch-size", 0, "batch size (overrides config)")
	candidatesCmd.Flags().IntVar(&candidatesExcludeRecent, "exclude-recent-days", -1,
		"skip documents processed within N days (overrides config)")

	prospectiveCmd.Flags().IntVar(&prospectiveThreshold, "threshold", 0,
		"minimum extracted characters before a document is flagged (overrides config)")
	prospectiveCmd.Flags().IntVar(&prospectiveRecent, "exclude-recent-days", -1,
		"skip documents processed within N days (overrides config)")
}
