package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndLoadPartitions(t *testing.T) {
	log := NewLog(filepath.Join(t.TempDir(), "data", "history.jsonl"))

	rows := []Row{
		{RunTS: "2026-08-30_120000", ID: 1, Title: "ok", Status: "success", Source: SourceBulkReprocess},
		{RunTS: "2026-08-30_120000", ID: 2, Title: "bad", Status: "failed", Detail: "task_state=FAILURE", Source: SourceBulkReprocess},
		{RunTS: "2026-08-30_120000", ID: 3, Title: "odd", Status: "stopped"},
	}
	if err := log.Append(rows); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	success, failed, err := log.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(success) != 1 || success[0].ID != 1 {
		t.Errorf("success = %+v, want doc 1", success)
	}
	if len(failed) != 2 {
		t.Errorf("len(failed) = %d, want 2", len(failed))
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"run_ts":"2026-08-30_120000","id":1,"status":"SUCCESS"}
not json at all

[1,2,3]
{"run_ts":"2026-08-30_130000","id":"2","status":"failed","pre_content_length":"17"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	log := NewLog(path)
	success, failed, err := log.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(success) != 1 || success[0].ID != 1 {
		t.Errorf("success = %+v, want doc 1 (case-insensitive status)", success)
	}
	if len(failed) != 1 || failed[0].ID != 2 || failed[0].PreContentLength != 17 {
		t.Errorf("failed = %+v, want doc 2 with string-coerced fields", failed)
	}
}

func TestLoadMissingFile(t *testing.T) {
	log := NewLog(filepath.Join(t.TempDir(), "absent.jsonl"))
	success, failed, err := log.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if success != nil || failed != nil {
		t.Errorf("missing file should yield empty history, got %v / %v", success, failed)
	}
}

func TestRecentIDs(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{RunTS: now.AddDate(0, 0, -2).Format(RunTimestampLayout), ID: 1},
		{RunTS: now.AddDate(0, 0, -30).Format(RunTimestampLayout), ID: 2},
		{RunTS: "garbage", ID: 3},
		{RunTS: now.Format(RunTimestampLayout), ID: 0},
	}
	ids := RecentIDs(rows, 14, now)
	if !ids[1] {
		t.Error("doc 1 processed 2 days ago should be recent")
	}
	if ids[2] {
		t.Error("doc 2 processed 30 days ago should not be recent")
	}
	if ids[3] {
		t.Error("unparseable run_ts should be ignored")
	}
	if len(ids) != 1 {
		t.Errorf("len(ids) = %d, want 1", len(ids))
	}
}

func TestLastProcessedKeepsNewest(t *testing.T) {
	rows := []Row{
		{RunTS: "2026-08-01_090000", ID: 5},
		{RunTS: "2026-08-20_090000", ID: 5},
		{RunTS: "2026-08-10_090000", ID: 5},
	}
	last := LastProcessed(rows)
	want := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	if !last[5].Equal(want) {
		t.Errorf("last[5] = %v, want %v", last[5], want)
	}
}
