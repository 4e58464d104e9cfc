package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/history"
	"github.com/jackzampolin/papertrail/internal/ocr"
	"github.com/jackzampolin/papertrail/internal/paperless"
)

// DocumentSource is the document service surface the workers need.
type DocumentSource interface {
	GetRaw(ctx context.Context, id int) (map[string]any, error)
	Download(ctx context.Context, id int) ([]byte, error)
	PatchContent(ctx context.Context, id int, content string) error
}

// PDFOCR extracts text from a PDF.
type PDFOCR interface {
	OCRPDF(ctx context.Context, pdf []byte, filename string) (string, error)
}

// Summary counts per-document outcomes of a worker run.
type Summary struct {
	Success int
	Failed  int
	Total   int
}

// LLMRun re-extracts document text through the LLM engine, exports each
// result for RAG, records pipeline events, and optionally writes the text
// back to the document service.
type LLMRun struct {
	Source       DocumentSource
	OCR          PDFOCR
	Writer       *export.Writer
	Events       *export.EventStore
	Logger       *slog.Logger
	Session      *Session
	UpdateSource bool
	Provider     string
	Model        string
	Now          func() time.Time
}

func (r *LLMRun) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run processes documents in order, one history row per document reached.
// Cancelling ctx stops before the next document; documents never started
// get no row.
func (r *LLMRun) Run(ctx context.Context, docs []paperless.Document, runTS string) ([]history.Row, Summary) {
	var rows []history.Row
	summary := Summary{Total: len(docs)}

	for i, doc := range docs {
		if ctx.Err() != nil {
			r.Logger.Warn("llm ocr loop stopped", "remaining", len(docs)-i)
			break
		}
		r.emit(Progress{Kind: EventDocStarted, DocID: doc.ID, Completed: i, Total: len(docs)})
		r.Logger.Info("llm ocr started", "id", doc.ID)

		row := r.processOne(ctx, doc, runTS)
		rows = append(rows, row)
		if row.Status == "success" {
			summary.Success++
		} else {
			summary.Failed++
		}
		r.emit(Progress{Kind: EventDocResolved, DocID: doc.ID, Completed: i + 1, Total: len(docs)})
	}

	r.Logger.Info("llm ocr summary", "success", summary.Success, "failed", summary.Failed, "total", summary.Total)
	r.emit(Progress{Kind: EventRunSummary, Completed: summary.Success + summary.Failed, Total: summary.Total})
	return rows, summary
}

func (r *LLMRun) processOne(ctx context.Context, doc paperless.Document, runTS string) history.Row {
	title := doc.Title
	if title == "" {
		title = fmt.Sprintf("Document %d", doc.ID)
	}

	text, files, updateStatus, err := r.ocrOne(ctx, doc, &title, runTS)

	status := "success"
	detail := "llm_ocr_completed"
	postLen := len(text)
	if err != nil {
		status = "failed"
		detail = err.Error()
		r.Logger.Error("llm ocr failed", "id", doc.ID, "error", err)
	} else {
		r.Logger.Info("llm ocr completed", "id", doc.ID, "text_len", postLen)
	}

	if r.Events != nil {
		sha := ""
		if text != "" {
			sha = export.TextSHA256(text)
		}
		ev := export.Event{
			DocID:              doc.ID,
			Title:              title,
			Action:             "llm_ocr",
			Engine:             ocr.EngineLLM,
			Status:             status,
			Note:               detail,
			RAGMarkdownPath:    files.MarkdownPath,
			RAGJSONPath:        files.JSONPath,
			TextSHA256:         sha,
			LLMProvider:        r.Provider,
			LLMModel:           r.Model,
			SourceUpdateStatus: updateStatus,
		}
		if err := r.Events.Record(ctx, ev); err != nil {
			r.Logger.Warn("pipeline event not recorded", "id", doc.ID, "error", err)
		}
	}

	return history.Row{
		RunTS:             runTS,
		ID:                doc.ID,
		Title:             title,
		PreContentLength:  doc.ContentLength,
		PostContentLength: postLen,
		ContentDelta:      postLen - doc.ContentLength,
		Status:            status,
		Detail:            detail,
		Source:            history.SourceLLM,
	}
}

// ocrOne runs the fetch, download, OCR, export and optional write-back for
// one document.
func (r *LLMRun) ocrOne(ctx context.Context, doc paperless.Document, title *string, runTS string) (text string, files export.Files, updateStatus string, err error) {
	raw, err := r.Source.GetRaw(ctx, doc.ID)
	if err != nil {
		return "", export.Files{}, "", fmt.Errorf("fetch document: %w", err)
	}
	latest, err := paperless.Normalize(raw)
	if err != nil {
		return "", export.Files{}, "", fmt.Errorf("normalize document: %w", err)
	}
	if latest.Title != "" {
		*title = latest.Title
	}
	filename := latest.ArchiveFilename
	if filename == "" {
		filename = latest.OriginalFilename
	}
	if filename == "" {
		filename = fmt.Sprintf("%d.pdf", doc.ID)
	}

	pdf, err := r.Source.Download(ctx, doc.ID)
	if err != nil {
		return "", export.Files{}, "", fmt.Errorf("download pdf: %w", err)
	}

	metadata := map[string]any{
		"source_mode": ocr.EngineLLM,
		"run_ts":      runTS,
		"filename":    filename,
	}
	if pages, err := ocr.PDFPageCount(pdf); err == nil {
		metadata["page_count"] = pages
		r.Logger.Info("sending pdf to llm", "id", doc.ID, "bytes", len(pdf), "pages", pages)
	} else {
		r.Logger.Info("sending pdf to llm", "id", doc.ID, "bytes", len(pdf))
	}

	text, err = r.OCR.OCRPDF(ctx, pdf, filename)
	if err != nil {
		return "", export.Files{}, "", err
	}

	files, err = r.Writer.Write(doc.ID, *title, ocr.EngineLLM, text, metadata, r.now())
	if err != nil {
		return text, export.Files{}, "", err
	}

	if r.UpdateSource {
		if err := r.Source.PatchContent(ctx, doc.ID, text); err != nil {
			updateStatus = fmt.Sprintf("failed:%v", err)
			r.Logger.Warn("content write-back failed", "id", doc.ID, "error", err)
		} else {
			updateStatus = "updated"
		}
	}
	return text, files, updateStatus, nil
}

func (r *LLMRun) emit(p Progress) {
	if r.Session != nil {
		r.Session.Emit(p)
	}
}
