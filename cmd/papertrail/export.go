package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/ocr"
	"github.com/jackzampolin/papertrail/internal/reconcile"
	"github.com/jackzampolin/papertrail/internal/runner"
)

var (
	exportID     int
	exportIDs    string
	exportSource string
	exportFormat string
	exportRoot   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export document text for retrieval pipelines",
	Long: `Write per-document markdown and JSON files under the exports directory,
one timestamped pair per run. --source service uses the text the document
service itself extracted; --source llm reuses the most recent successful
LLM OCR output recorded in the pipeline events.

Examples:
  papertrail export --ids 12,31
  papertrail export --id 12 --source llm --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDList(exportID, exportIDs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return usagef("pass --id or --ids to choose documents")
		}

		var engine string
		switch exportSource {
		case "service":
			engine = reconcile.EnginePaperless
		case "llm":
			engine = ocr.EngineLLM
		default:
			return usagef("invalid --source %q: must be service or llm", exportSource)
		}

		format := ""
		switch exportFormat {
		case "both":
			format = export.FormatBoth
		case "json":
			format = export.FormatJSON
		case "md":
			format = export.FormatMarkdown
		case "":
			// falls back to the configured format below
		default:
			return usagef("invalid --format %q: must be both, json, or md", exportFormat)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		if format == "" {
			format = a.cfg.Export.Format
		}
		client, err := a.apiClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		root := exportRoot
		if root == "" {
			root = a.cfg.Export.Root
		}
		if root == "" {
			root = a.home.ExportsDir()
		}
		writer, err := export.NewWriter(root, format)
		if err != nil {
			return err
		}
		events, err := export.OpenEvents(a.home.PipelineDBPath())
		if err != nil {
			return err
		}
		defer events.Close()

		session := runner.NewSession()
		runCtx, err := session.Begin(ctx, "rag_export")
		if err != nil {
			return err
		}
		defer session.End()

		run := &runner.RAGExportRun{
			Source:  client,
			Writer:  writer,
			Events:  events,
			Logger:  a.logger,
			Session: session,
			Engine:  engine,
			Format:  format,
		}
		summary := run.Run(runCtx, ids)

		fmt.Printf("exported %d of %d document(s) to %s (%d failed)\n",
			summary.Success, summary.Total, root, summary.Failed)
		if summary.Failed > 0 {
			return fmt.Errorf("%d export(s) failed", summary.Failed)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportID, "id", 0, "export a single document id")
	exportCmd.Flags().StringVar(&exportIDs, "ids", "", "comma-separated document ids")
	exportCmd.Flags().StringVar(&exportSource, "source", "service", "text source: service or llm")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "output files: both, json, or md (default from config)")
	exportCmd.Flags().StringVar(&exportRoot, "root", "", "export root directory (default from config or home)")
}
