package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriterBothFormats(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, FormatBoth)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	now := time.Date(2026, 8, 30, 14, 30, 5, 0, time.UTC)
	files, err := w.Write(42, "Utility Bill", "llm_openai_compatible", "extracted text body",
		map[string]any{"run_ts": "2026-08-30_143005"}, now)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	wantDir := filepath.Join(root, "llm_openai_compatible", "42")
	if filepath.Dir(files.MarkdownPath) != wantDir || filepath.Dir(files.JSONPath) != wantDir {
		t.Errorf("export dir = %s / %s, want %s", files.MarkdownPath, files.JSONPath, wantDir)
	}
	if filepath.Base(files.MarkdownPath) != "20260830_143005.md" {
		t.Errorf("markdown name = %s", filepath.Base(files.MarkdownPath))
	}

	md, err := os.ReadFile(files.MarkdownPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(md), "# Utility Bill\n") {
		t.Errorf("markdown header missing: %q", string(md)[:40])
	}

	text, title, metadata, err := LoadJSON(files.JSONPath)
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if text != "extracted text body" || title != "Utility Bill" {
		t.Errorf("round trip = %q / %q", text, title)
	}
	if metadata["run_ts"] != "2026-08-30_143005" {
		t.Errorf("metadata = %v", metadata)
	}
}

func TestWriterMarkdownOnly(t *testing.T) {
	w, err := NewWriter(t.TempDir(), FormatMarkdown)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	files, err := w.Write(1, "", "paperless_internal", "text", nil, time.Now())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if files.JSONPath != "" {
		t.Errorf("JSONPath = %q, want empty in md_only mode", files.JSONPath)
	}
	md, _ := os.ReadFile(files.MarkdownPath)
	if !strings.HasPrefix(string(md), "# Document 1\n") {
		t.Errorf("fallback heading missing: %q", string(md))
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter(t.TempDir(), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestSafeEngineDirName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"llm_openai_compatible", "llm_openai_compatible"},
		{"Weird Engine/Name!", "weird_engine_name"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		if got := safeEngineDirName(tt.in); got != tt.want {
			t.Errorf("safeEngineDirName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEventStoreRecordAndList(t *testing.T) {
	store, err := OpenEvents(filepath.Join(t.TempDir(), "pipeline.sqlite3"))
	if err != nil {
		t.Fatalf("OpenEvents() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	events := []Event{
		{EventTS: "2026-08-30T10:00:00Z", DocID: 1, Action: "llm_ocr", Engine: "llm_openai_compatible", Status: "success", RAGJSONPath: "/tmp/a.json"},
		{EventTS: "2026-08-30T11:00:00Z", DocID: 1, Action: "llm_ocr", Engine: "llm_openai_compatible", Status: "success", RAGJSONPath: "/tmp/b.json", Title: "latest"},
		{EventTS: "2026-08-30T12:00:00Z", DocID: 2, Action: "rag_export", Engine: "paperless_internal", Status: "failed", Note: "empty content"},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(got))
	}
	if got[0].DocID != 2 {
		t.Errorf("newest event doc = %d, want 2", got[0].DocID)
	}

	ov := Summarize(got)
	if ov.Events != 3 || ov.Success != 2 || ov.Failed != 1 {
		t.Errorf("overview = %+v", ov)
	}
	if s := ov.EngineSummary(); s != "llm_openai_compatible:2, paperless_internal:1" {
		t.Errorf("EngineSummary() = %q", s)
	}
}

func TestLatestLLMOCR(t *testing.T) {
	store, err := OpenEvents(filepath.Join(t.TempDir(), "pipeline.sqlite3"))
	if err != nil {
		t.Fatalf("OpenEvents() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	const engine = "llm_openai_compatible"
	for _, ev := range []Event{
		{EventTS: "2026-08-30T10:00:00Z", DocID: 5, Action: "llm_ocr", Engine: engine, Status: "success", RAGJSONPath: "/exports/old.json", Title: "old"},
		{EventTS: "2026-08-30T11:00:00Z", DocID: 5, Action: "llm_ocr", Engine: engine, Status: "failed", RAGJSONPath: "/exports/bad.json"},
		{EventTS: "2026-08-30T12:00:00Z", DocID: 5, Action: "llm_ocr", Engine: engine, Status: "success", RAGJSONPath: "/exports/new.json", Title: "new"},
		{EventTS: "2026-08-30T13:00:00Z", DocID: 5, Action: "rag_export", Engine: engine, Status: "success", RAGJSONPath: "/exports/exp.json"},
	} {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	res, found, err := store.LatestLLMOCR(ctx, 5, engine)
	if err != nil || !found {
		t.Fatalf("LatestLLMOCR() = %v, found=%v", err, found)
	}
	if res.JSONPath != "/exports/new.json" || res.Title != "new" {
		t.Errorf("result = %+v, want newest successful llm_ocr", res)
	}

	if _, found, err := store.LatestLLMOCR(ctx, 99, engine); err != nil || found {
		t.Errorf("unknown doc: found=%v err=%v, want absent", found, err)
	}
}
