package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papertrail/internal/config"
	"github.com/jackzampolin/papertrail/internal/history"
	"github.com/jackzampolin/papertrail/internal/home"
	"github.com/jackzampolin/papertrail/internal/paperless"
	"github.com/jackzampolin/papertrail/internal/secrets"
	"github.com/jackzampolin/papertrail/version"
)

var (
	cfgFile      string
	homeDir      string
	logLevel     string
	apiURL       string
	apiToken     string
	apiTokenFile string
	apiPageSize  int
	apiTimeout   int
)

var rootCmd = &cobra.Command{
	Use:   "papertrail",
	Short: "Operational toolkit for a document-management service",
	Long: `Papertrail tracks the documents of a Paperless-style document service,
drives re-OCR and reprocessing jobs against it, and exports extracted text
for downstream retrieval pipelines.

The toolkit includes:
  - Fingerprint-based document change tracking (sync runs)
  - Bulk reprocess submission with task reconciliation and diff fallback
  - External LLM OCR with service write-back
  - Per-document retrieval exports (markdown + JSON)`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.papertrail/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "papertrail home directory (default: ~/.papertrail)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn, or error",
	)
	rootCmd.PersistentFlags().StringVar(
		&apiURL, "api-url", "", "document service base URL (overrides config)",
	)
	rootCmd.PersistentFlags().StringVar(
		&apiToken, "api-token", "", "document service API token (overrides config and env)",
	)
	rootCmd.PersistentFlags().StringVar(
		&apiTokenFile, "api-token-file", "", "file containing the API token",
	)
	rootCmd.PersistentFlags().IntVar(
		&apiPageSize, "page-size", 0, "listing page size (overrides config)",
	)
	rootCmd.PersistentFlags().IntVar(
		&apiTimeout, "timeout", 0, "per-request HTTP timeout in seconds (overrides config)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(prospectiveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}

// app bundles the per-invocation wiring every command needs.
type app struct {
	home   *home.Dir
	cfg    *config.Config
	logger *slog.Logger
}

func newApp() (*app, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))

	return &app{home: h, cfg: cfg, logger: logger}, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// apiClient resolves auth and builds the document service client.
// Flags win over config, config wins over the home-dir token file.
func (a *app) apiClient() (*paperless.Client, error) {
	baseURL := a.cfg.API.BaseURL
	if apiURL != "" {
		baseURL = apiURL
	}

	tokenFile := a.cfg.API.TokenFile
	if apiTokenFile != "" {
		tokenFile = apiTokenFile
	}
	if tokenFile == "" {
		tokenFile = a.home.TokenFilePath()
	}

	explicit := apiToken
	if explicit == "" {
		explicit = config.ResolveEnvVars(a.cfg.API.Token)
	}
	token, err := secrets.ResolveAPIToken(explicit, tokenFile)
	if err != nil {
		return nil, err
	}

	pageSize := a.cfg.API.PageSize
	if apiPageSize > 0 {
		pageSize = apiPageSize
	}
	timeout := a.cfg.API.TimeoutSeconds
	if apiTimeout > 0 {
		timeout = apiTimeout
	}

	return paperless.NewClient(baseURL, secrets.AuthorizationHeader(token),
		paperless.WithPageSize(pageSize),
		paperless.WithTimeout(time.Duration(timeout)*time.Second),
		paperless.WithProgress(func(page, totalDocs int) {
			a.logger.Debug("fetched listing page", "page", page, "docs", totalDocs)
		}),
	), nil
}

// listingInputs gathers what every read-only listing needs: the full
// document set and the successful history rows.
func (a *app) listingInputs(ctx context.Context) ([]paperless.Document, []history.Row, error) {
	client, err := a.apiClient()
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("fetching documents", "url", client.BaseURL())
	docs, err := client.FetchAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	processed, err := history.NewLog(a.home.HistoryLogPath()).Rows()
	if err != nil {
		return nil, nil, err
	}
	return docs, processed, nil
}

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}
