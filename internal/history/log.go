// Package history maintains the append-only JSONL log of per-document
// reprocessing outcomes and derives candidate selections from it.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RunTimestampLayout is the wall-clock format stamped on every history row.
// Rows from one batch run share a single timestamp.
const RunTimestampLayout = "2006-01-02_150405"

// Processing engines recorded in the source field.
const (
	SourceBulkReprocess = "api_bulk_reprocess"
	SourceLLM           = "llm_openai_compatible"
)

// Row is one per-document outcome in the history log.
type Row struct {
	RunTS             string `json:"run_ts"`
	ID                int    `json:"id"`
	Title             string `json:"title"`
	PreContentLength  int    `json:"pre_content_length"`
	PostContentLength int    `json:"post_content_length"`
	ContentDelta      int    `json:"content_delta"`
	Status            string `json:"status"`
	Detail            string `json:"detail"`
	Source            string `json:"source,omitempty"`
}

// Log is an append-only JSONL file. Appends are serialized; corrupt or
// foreign lines are skipped on load so one bad writer cannot poison the
// whole history.
type Log struct {
	mu   sync.Mutex
	path string
}

func NewLog(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string { return l.path }

// Append writes rows to the end of the log, creating parent directories as
// needed. A nil or empty slice is a no-op.
func (l *Log) Append(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode history row for doc %d: %w", row.ID, err)
		}
		w.Write(raw)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write history log: %w", err)
	}
	return nil
}

// Load reads the whole log, partitioning rows by outcome. Status compares
// case-insensitively; anything that is not success counts as failed. Blank
// lines, invalid JSON and non-object lines are skipped. A missing file is
// an empty history, not an error.
func (l *Log) Load() (success, failed []Row, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		row := rowFromRaw(raw)
		if strings.EqualFold(row.Status, "success") {
			success = append(success, row)
		} else {
			failed = append(failed, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read history log: %w", err)
	}
	return success, failed, nil
}

// Rows loads the whole log regardless of outcome. Recency exclusion and
// last-processed lookups count failed attempts the same as successes, so
// selection callers want this, not just the success partition.
func (l *Log) Rows() ([]Row, error) {
	success, failed, err := l.Load()
	if err != nil {
		return nil, err
	}
	return append(success, failed...), nil
}

// rowFromRaw tolerates ids and lengths written as either numbers or strings
// by earlier tooling.
func rowFromRaw(raw map[string]any) Row {
	return Row{
		RunTS:             asString(raw["run_ts"]),
		ID:                asInt(raw["id"]),
		Title:             asString(raw["title"]),
		PreContentLength:  asInt(raw["pre_content_length"]),
		PostContentLength: asInt(raw["post_content_length"]),
		ContentDelta:      asInt(raw["content_delta"]),
		Status:            asString(raw["status"]),
		Detail:            asString(raw["detail"]),
		Source:            asString(raw["source"]),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// ParseRunTimestamp parses a run_ts value, reporting false for anything
// not in the expected layout.
func ParseRunTimestamp(ts string) (time.Time, bool) {
	t, err := time.Parse(RunTimestampLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RecentIDs collects document ids processed within the given number of days
// before now. Rows with unparseable timestamps or ids are ignored.
func RecentIDs(rows []Row, withinDays int, now time.Time) map[int]bool {
	cutoff := now.AddDate(0, 0, -withinDays)
	ids := make(map[int]bool)
	for _, row := range rows {
		ts, ok := ParseRunTimestamp(row.RunTS)
		if !ok || ts.Before(cutoff) {
			continue
		}
		if row.ID > 0 {
			ids[row.ID] = true
		}
	}
	return ids
}

// LastProcessed maps each document id to its most recent run timestamp.
func LastProcessed(rows []Row) map[int]time.Time {
	last := make(map[int]time.Time)
	for _, row := range rows {
		ts, ok := ParseRunTimestamp(row.RunTS)
		if !ok || row.ID <= 0 {
			continue
		}
		if prev, seen := last[row.ID]; !seen || ts.After(prev) {
			last[row.ID] = ts
		}
	}
	return last
}
