package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/history"
)

var (
	searchQuery           string
	searchModifiedLike    string
	searchMissingArchive  bool
	searchExcludeRecent   int
	searchMinChars        int
	searchMaxChars        int
	searchMinPages        int
	searchMaxPages        int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the document listing with local filters",
	Long: `Filter the fetched document set by substring, modified timestamp,
missing archive file, text length, and page count. All filtering happens
locally over the listing; no search endpoint is required on the service.

Examples:
  papertrail search --query invoice
  papertrail search --missing-archive --max-chars 200
  papertrail search --modified-contains 2026-08 --min-pages 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		docs, processed, err := a.listingInputs(cmd.Context())
		if err != nil {
			return err
		}

		filter := history.SearchFilter{
			Query:              searchQuery,
			ModifiedContains:   searchModifiedLike,
			MissingArchiveOnly: searchMissingArchive,
			ExcludeRecentDays:  searchExcludeRecent,
			MinChars:           optionalInt(cmd, "min-chars", searchMinChars),
			MaxChars:           optionalInt(cmd, "max-chars", searchMaxChars),
			MinPages:           optionalInt(cmd, "min-pages", searchMinPages),
			MaxPages:           optionalInt(cmd, "max-pages", searchMaxPages),
		}

		matches, err := history.Search(docs, processed, filter, time.Now())
		if err != nil {
			return usagef("%v", err)
		}

		fmt.Printf("%d match(es) of %d documents\n", len(matches), len(docs))
		for _, d := range matches {
			pages := "-"
			if d.PageCount != nil {
				pages = fmt.Sprintf("%d", *d.PageCount)
			}
			fmt.Printf("  %6d  %8d chars  %4s pages  %s\n", d.ID, d.ContentLength, pages, d.Title)
		}
		return nil
	},
}

// optionalInt maps an unset flag to nil so zero stays a usable bound.
func optionalInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func init() {
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "substring match over id, title, filenames, and modified")
	searchCmd.Flags().StringVar(&searchModifiedLike, "modified-contains", "", "substring match over the modified timestamp")
	searchCmd.Flags().BoolVar(&searchMissingArchive, "missing-archive", false, "only documents without an archive file")
	searchCmd.Flags().IntVar(&searchExcludeRecent, "exclude-recent-days", 0, "skip documents processed within N days")
	searchCmd.Flags().IntVar(&searchMinChars, "min-chars", 0, "minimum extracted characters")
	searchCmd.Flags().IntVar(&searchMaxChars, "max-chars", 0, "maximum extracted characters")
	searchCmd.Flags().IntVar(&searchMinPages, "min-pages", 0, "minimum page count")
	searchCmd.Flags().IntVar(&searchMaxPages, "max-pages", 0, "maximum page count")
}
