package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/config"
	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/history"
	"github.com/jackzampolin/papertrail/internal/ocr"
	"github.com/jackzampolin/papertrail/internal/paperless"
	"github.com/jackzampolin/papertrail/internal/runner"
	"github.com/jackzampolin/papertrail/internal/secrets"
)

var (
	ocrID           int
	ocrIDs          string
	ocrModel        string
	ocrMode         string
	ocrUpdateSource bool
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Re-extract document text through the external LLM OCR provider",
	Long: `Download each document's PDF, send it to the configured OpenAI-compatible
provider for text extraction, export the result for retrieval, and record a
pipeline event. With --update-source the extracted text is also written back
to the document service.

Examples:
  papertrail ocr --ids 12,31
  papertrail ocr --id 12 --update-source
  papertrail ocr --ids 12,31 --model gpt-4.1 --mode chat_completions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDList(ocrID, ocrIDs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return usagef("pass --id or --ids to choose documents")
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

		llmCfg := a.cfg.LLM
		if ocrModel != "" {
			llmCfg.Model = ocrModel
		}
		if ocrMode != "" {
			llmCfg.Mode = ocrMode
		}
		if cmd.Flags().Changed("update-source") {
			llmCfg.UpdateService = ocrUpdateSource
		}

		keyFile := llmCfg.KeyFile
		if keyFile == "" {
			keyFile = a.home.LLMKeyFilePath()
		}
		key, err := secrets.ResolveLLMKey(config.ResolveEnvVars(llmCfg.APIKey), keyFile)
		if err != nil {
			return err
		}

		llm, err := ocr.NewLLMClient(ocr.LLMOptions{
			BaseURL:       llmCfg.BaseURL,
			APIKey:        key,
			Model:         llmCfg.Model,
			Mode:          llmCfg.Mode,
			Prompt:        llmCfg.Prompt,
			Timeout:       time.Duration(llmCfg.TimeoutSeconds) * time.Second,
			RetryAttempts: llmCfg.RetryAttempts,
		}, a.logger)
		if err != nil {
			return err
		}

		docs := make([]paperless.Document, 0, len(ids))
		for _, id := range ids {
			doc, gerr := client.Get(ctx, id)
			if gerr != nil {
				return fmt.Errorf("fetch document %d: %w", id, gerr)
			}
			docs = append(docs, doc)
		}

		root := a.cfg.Export.Root
		if root == "" {
			root = a.home.ExportsDir()
		}
		writer, err := export.NewWriter(root, a.cfg.Export.Format)
		if err != nil {
			return err
		}
		events, err := export.OpenEvents(a.home.PipelineDBPath())
		if err != nil {
			return err
		}
		defer events.Close()

		session := runner.NewSession()
		runCtx, err := session.Begin(ctx, "llm_ocr")
		if err != nil {
			return err
		}
		defer session.End()

		run := &runner.LLMRun{
			Source:       client,
			OCR:          llm,
			Writer:       writer,
			Events:       events,
			Logger:       a.logger,
			Session:      session,
			UpdateSource: llmCfg.UpdateService,
			Provider:     "openai_compatible",
			Model:        llmCfg.Model,
		}

		runTS := time.Now().Format(history.RunTimestampLayout)
		rows, summary := run.Run(runCtx, docs, runTS)

		log := history.NewLog(a.home.HistoryLogPath())
		if err := log.Append(rows); err != nil {
			return err
		}

		fmt.Printf("ocr complete: %d success, %d failed of %d\n",
			summary.Success, summary.Failed, summary.Total)
		return nil
	},
}

func init() {
	ocrCmd.Flags().IntVar(&ocrID, "id", 0, "process a single document id")
	ocrCmd.Flags().StringVar(&ocrIDs, "ids", "", "comma-separated document ids")
	ocrCmd.Flags().StringVar(&ocrModel, "model", "", "LLM model (overrides config)")
	ocrCmd.Flags().StringVar(&ocrMode, "mode", "", "request shape: responses or chat_completions (overrides config)")
	ocrCmd.Flags().BoolVar(&ocrUpdateSource, "update-source", false,
		"write the extracted text back to the document service")
}
