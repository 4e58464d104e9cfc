// Package export writes RAG-ready document exports and records pipeline
// events in a local sqlite database.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS pipeline_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_ts TEXT NOT NULL,
	doc_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	engine TEXT NOT NULL,
	status TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	rag_md_path TEXT,
	rag_json_path TEXT,
	text_sha256 TEXT,
	llm_provider TEXT,
	llm_model TEXT,
	paperless_update_status TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_pipeline_events_doc ON pipeline_events(doc_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_events_ts ON pipeline_events(event_ts);
`

// Event is one recorded pipeline action against a document.
type Event struct {
	EventTS            string
	DocID              int
	Title              string
	Action             string
	Engine             string
	Status             string
	Note               string
	RAGMarkdownPath    string
	RAGJSONPath        string
	TextSHA256         string
	LLMProvider        string
	LLMModel           string
	SourceUpdateStatus string
}

// EventStore persists pipeline events.
type EventStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenEvents opens (creating if needed) the pipeline event database.
func OpenEvents(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pipeline db: %w", err)
	}
	if _, err := db.Exec(eventsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create pipeline schema: %w", err)
	}
	return &EventStore{db: db}, nil
}

func (s *EventStore) Close() error {
	return s.db.Close()
}

// Record appends an event, stamping it with the current time when EventTS
// is unset.
func (s *EventStore) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := ev.EventTS
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_events (
			event_ts, doc_id, title, action, engine, status, note,
			rag_md_path, rag_json_path, text_sha256,
			llm_provider, llm_model, paperless_update_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, ev.DocID, ev.Title, ev.Action, ev.Engine, ev.Status, ev.Note,
		ev.RAGMarkdownPath, ev.RAGJSONPath, ev.TextSHA256,
		ev.LLMProvider, ev.LLMModel, ev.SourceUpdateStatus)
	if err != nil {
		return fmt.Errorf("record pipeline event for doc %d: %w", ev.DocID, err)
	}
	return nil
}

// List returns the most recent events, newest first.
func (s *EventStore) List(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_ts, doc_id, title, action, engine, status, note,
		       rag_md_path, rag_json_path, text_sha256,
		       llm_provider, llm_model, paperless_update_status
		FROM pipeline_events
		ORDER BY event_ts DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			mdPath   sql.NullString
			jsonPath sql.NullString
			sha      sql.NullString
			provider sql.NullString
			model    sql.NullString
		)
		if err := rows.Scan(&ev.EventTS, &ev.DocID, &ev.Title, &ev.Action, &ev.Engine, &ev.Status, &ev.Note,
			&mdPath, &jsonPath, &sha, &provider, &model, &ev.SourceUpdateStatus); err != nil {
			return nil, err
		}
		ev.RAGMarkdownPath = mdPath.String
		ev.RAGJSONPath = jsonPath.String
		ev.TextSHA256 = sha.String
		ev.LLMProvider = provider.String
		ev.LLMModel = model.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LatestOCRResult points at the most recent successful LLM OCR export for
// a document.
type LatestOCRResult struct {
	Title    string
	JSONPath string
}

// LatestLLMOCR returns the newest successful llm_ocr event carrying a JSON
// export path for the document, or false if none exists.
func (s *EventStore) LatestLLMOCR(ctx context.Context, docID int, engine string) (LatestOCRResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT rag_json_path, title
		FROM pipeline_events
		WHERE doc_id = ?
		  AND engine = ?
		  AND status = 'success'
		  AND action = 'llm_ocr'
		  AND rag_json_path IS NOT NULL
		  AND rag_json_path != ''
		ORDER BY event_ts DESC, id DESC
		LIMIT 1`, docID, engine)

	var res LatestOCRResult
	err := row.Scan(&res.JSONPath, &res.Title)
	if err == sql.ErrNoRows {
		return LatestOCRResult{}, false, nil
	}
	if err != nil {
		return LatestOCRResult{}, false, fmt.Errorf("load latest llm ocr for doc %d: %w", docID, err)
	}
	return res, true, nil
}

// Overview aggregates the event history for display.
type Overview struct {
	Events  int
	Success int
	Failed  int
	Engines map[string]int
}

// Summarize builds an overview of the given events.
func Summarize(events []Event) Overview {
	ov := Overview{Engines: make(map[string]int)}
	for _, ev := range events {
		ov.Events++
		ov.Engines[ev.Engine]++
		switch ev.Status {
		case "success":
			ov.Success++
		case "failed":
			ov.Failed++
		}
	}
	return ov
}

// EngineSummary renders engine counts as "name:count" pairs sorted by name.
func (ov Overview) EngineSummary() string {
	if len(ov.Engines) == 0 {
		return "none"
	}
	names := make([]string, 0, len(ov.Engines))
	for name := range ov.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s:%d", name, ov.Engines[name]))
	}
	return strings.Join(parts, ", ")
}
