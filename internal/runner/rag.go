package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/ocr"
	"github.com/jackzampolin/papertrail/internal/paperless"
	"github.com/jackzampolin/papertrail/internal/reconcile"
)

// RAGExportRun exports document text as RAG-ready files. The source is
// either the document service's current content or the latest local LLM
// OCR output.
type RAGExportRun struct {
	Source  DocumentSource
	Writer  *export.Writer
	Events  *export.EventStore
	Logger  *slog.Logger
	Session *Session
	Engine  string // reconcile.EnginePaperless or ocr.EngineLLM
	Format  string
	Now     func() time.Time
}

func (r *RAGExportRun) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run exports each document in order. Cancelling ctx stops before the next
// document.
func (r *RAGExportRun) Run(ctx context.Context, ids []int) Summary {
	summary := Summary{Total: len(ids)}
	r.Logger.Info("rag export started", "source", r.Engine, "docs", len(ids))

	for i, id := range ids {
		if ctx.Err() != nil {
			r.Logger.Warn("export loop stopped", "remaining", len(ids)-i)
			break
		}
		r.emit(Progress{Kind: EventDocStarted, DocID: id, Completed: i, Total: len(ids)})

		if err := r.exportOne(ctx, id); err != nil {
			summary.Failed++
			r.Logger.Error("export failed", "id", id, "error", err)
		} else {
			summary.Success++
		}
		r.emit(Progress{Kind: EventDocResolved, DocID: id, Completed: i + 1, Total: len(ids)})
	}

	r.Logger.Info("rag export summary", "success", summary.Success, "failed", summary.Failed, "total", summary.Total)
	r.emit(Progress{Kind: EventRunSummary, Completed: summary.Success + summary.Failed, Total: summary.Total})
	return summary
}

func (r *RAGExportRun) exportOne(ctx context.Context, id int) error {
	title := fmt.Sprintf("Document %d", id)

	text, gotTitle, metadata, err := r.loadText(ctx, id, title)
	if err != nil {
		r.recordEvent(ctx, id, title, "failed", err.Error(), export.Files{}, "")
		return err
	}
	title = gotTitle

	files, err := r.Writer.Write(id, title, r.Engine, text, metadata, r.now())
	if err != nil {
		r.recordEvent(ctx, id, title, "failed", err.Error(), export.Files{}, "")
		return err
	}

	r.recordEvent(ctx, id, title, "success", "export_format="+r.Format, files, export.TextSHA256(text))
	r.Logger.Info("exported", "id", id, "md", orDash(files.MarkdownPath), "json", orDash(files.JSONPath))
	return nil
}

func (r *RAGExportRun) loadText(ctx context.Context, id int, fallbackTitle string) (text, title string, metadata map[string]any, err error) {
	if r.Engine == ocr.EngineLLM {
		latest, found, err := r.Events.LatestLLMOCR(ctx, id, ocr.EngineLLM)
		if !found || err != nil {
			if err == nil {
				err = fmt.Errorf("no successful LLM OCR output recorded for document %d; run OCR with engine %s first, or export from source %s",
					id, ocr.EngineLLM, reconcile.EnginePaperless)
			}
			return "", "", nil, err
		}
		text, title, meta, err := export.LoadJSON(latest.JSONPath)
		if err != nil {
			return "", "", nil, err
		}
		if title == "" {
			title = latest.Title
		}
		if title == "" {
			title = fallbackTitle
		}
		if strings.TrimSpace(text) == "" {
			return "", "", nil, fmt.Errorf("latest LLM OCR output for document %d exists but text is empty", id)
		}
		if meta == nil {
			meta = map[string]any{}
		}
		meta["source_mode"] = ocr.EngineLLM
		return text, title, meta, nil
	}

	raw, err := r.Source.GetRaw(ctx, id)
	if err != nil {
		return "", "", nil, fmt.Errorf("fetch document: %w", err)
	}
	doc, err := paperless.Normalize(raw)
	if err != nil {
		return "", "", nil, fmt.Errorf("normalize document: %w", err)
	}
	title = doc.Title
	if title == "" {
		title = fallbackTitle
	}
	text = paperless.ContentText(raw)
	if strings.TrimSpace(text) == "" {
		return "", "", nil, fmt.Errorf("document %d has no extracted content to export", id)
	}
	metadata = map[string]any{
		"source_mode":       reconcile.EnginePaperless,
		"modified":          doc.Modified,
		"mime_type":         doc.MimeType,
		"archive_filename":  doc.ArchiveFilename,
		"original_filename": doc.OriginalFilename,
	}
	return text, title, metadata, nil
}

func (r *RAGExportRun) recordEvent(ctx context.Context, id int, title, status, note string, files export.Files, sha string) {
	if r.Events == nil {
		return
	}
	ev := export.Event{
		DocID:           id,
		Title:           title,
		Action:          "rag_export",
		Engine:          r.Engine,
		Status:          status,
		Note:            note,
		RAGMarkdownPath: files.MarkdownPath,
		RAGJSONPath:     files.JSONPath,
		TextSHA256:      sha,
	}
	if err := r.Events.Record(ctx, ev); err != nil {
		r.Logger.Warn("pipeline event not recorded", "id", id, "error", err)
	}
}

func (r *RAGExportRun) emit(p Progress) {
	if r.Session != nil {
		r.Session.Emit(p)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
