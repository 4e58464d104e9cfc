package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/papertrail/internal/export"
	"github.com/jackzampolin/papertrail/internal/ocr"
	"github.com/jackzampolin/papertrail/internal/reconcile"
)

func TestRAGExportFromSourceContent(t *testing.T) {
	source := &fakeSource{
		raw: map[int]map[string]any{
			4: {
				"id": float64(4), "title": "Lease", "content": "full lease text",
				"mime_type": "application/pdf", "archive_filename": "lease.pdf",
			},
			5: {"id": float64(5), "title": "Empty", "content": "   "},
		},
	}
	events := testEvents(t)
	run := &RAGExportRun{
		Source: source,
		Writer: testWriter(t),
		Events: events,
		Logger: testLogger(),
		Engine: reconcile.EnginePaperless,
		Format: export.FormatBoth,
	}

	summary := run.Run(context.Background(), []int{4, 5})
	if summary.Success != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want empty-content doc to fail", summary)
	}

	recorded, err := events.List(context.Background(), 10)
	if err != nil || len(recorded) != 2 {
		t.Fatalf("events = %v, %v", recorded, err)
	}
	byDoc := make(map[int]export.Event)
	for _, ev := range recorded {
		byDoc[ev.DocID] = ev
	}
	if byDoc[4].Status != "success" || byDoc[4].Note != "export_format=both" {
		t.Errorf("doc 4 event = %+v", byDoc[4])
	}
	if byDoc[4].RAGJSONPath == "" {
		t.Error("doc 4 event missing json path")
	}
	if byDoc[5].Status != "failed" || !strings.Contains(byDoc[5].Note, "no extracted content") {
		t.Errorf("doc 5 event = %+v", byDoc[5])
	}

	text, title, metadata, err := export.LoadJSON(byDoc[4].RAGJSONPath)
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if text != "full lease text" || title != "Lease" {
		t.Errorf("export = %q / %q", text, title)
	}
	if metadata["source_mode"] != reconcile.EnginePaperless {
		t.Errorf("metadata = %v", metadata)
	}
}

func TestRAGExportFromLatestLLMOutput(t *testing.T) {
	events := testEvents(t)
	writer := testWriter(t)

	// Seed a prior successful LLM OCR with its JSON export on disk.
	files, err := writer.Write(9, "Scanned Letter", ocr.EngineLLM, "llm extracted text",
		map[string]any{"filename": "letter.pdf"}, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("seed Write() error = %v", err)
	}
	if err := events.Record(context.Background(), export.Event{
		EventTS: "2026-08-29T10:00:00Z", DocID: 9, Action: "llm_ocr", Engine: ocr.EngineLLM,
		Status: "success", RAGJSONPath: files.JSONPath, Title: "Scanned Letter",
	}); err != nil {
		t.Fatalf("seed Record() error = %v", err)
	}

	run := &RAGExportRun{
		Source: &fakeSource{},
		Writer: writer,
		Events: events,
		Logger: testLogger(),
		Engine: ocr.EngineLLM,
		Format: export.FormatJSON,
	}

	summary := run.Run(context.Background(), []int{9})
	if summary.Success != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	// Doc without prior LLM output fails with guidance.
	summary = run.Run(context.Background(), []int{10})
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want failure for missing llm output", summary)
	}
	recorded, _ := events.List(context.Background(), 10)
	var failNote string
	for _, ev := range recorded {
		if ev.DocID == 10 && ev.Status == "failed" {
			failNote = ev.Note
		}
	}
	if !strings.Contains(failNote, "no successful LLM OCR output") {
		t.Errorf("failure note = %q", failNote)
	}
}
