package track

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Run classifications recorded for auditing.
const (
	RunTypeBootstrap = "bootstrap"
	RunTypeSync      = "sync"
	RunTypeOCRRerun  = "ocr-rerun"
)

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	run_type TEXT NOT NULL,
	api_base_url TEXT NOT NULL DEFAULT '',
	auth_mode TEXT NOT NULL DEFAULT 'token',
	ocr_engines_json TEXT,
	ocr_provider TEXT,
	ocr_model TEXT,
	notes TEXT,
	total_documents INTEGER NOT NULL DEFAULT 0,
	new_documents INTEGER NOT NULL DEFAULT 0,
	changed_documents INTEGER NOT NULL DEFAULT 0,
	unchanged_documents INTEGER NOT NULL DEFAULT 0,
	missing_documents INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tracked_documents (
	doc_id INTEGER PRIMARY KEY,
	first_seen_run_id INTEGER NOT NULL,
	last_seen_run_id INTEGER NOT NULL,
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	deleted_at TEXT,
	deleted_in_run_id INTEGER,
	title TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	original_filename TEXT NOT NULL DEFAULT '',
	archive_filename TEXT NOT NULL DEFAULT '',
	page_count INTEGER,
	modified TEXT,
	content_length INTEGER NOT NULL DEFAULT 0,
	current_fingerprint TEXT NOT NULL,
	FOREIGN KEY(first_seen_run_id) REFERENCES runs(id),
	FOREIGN KEY(last_seen_run_id) REFERENCES runs(id),
	FOREIGN KEY(deleted_in_run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS document_classifications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL,
	doc_id INTEGER NOT NULL,
	observed_at TEXT NOT NULL,
	classification TEXT NOT NULL,
	changed_fields_json TEXT,
	previous_fingerprint TEXT,
	new_fingerprint TEXT,
	title TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	original_filename TEXT NOT NULL DEFAULT '',
	archive_filename TEXT NOT NULL DEFAULT '',
	page_count INTEGER,
	modified TEXT,
	content_length INTEGER NOT NULL DEFAULT 0,
	UNIQUE(run_id, doc_id),
	FOREIGN KEY(run_id) REFERENCES runs(id),
	FOREIGN KEY(doc_id) REFERENCES tracked_documents(doc_id)
);

CREATE INDEX IF NOT EXISTS idx_classifications_doc_id ON document_classifications(doc_id);
CREATE INDEX IF NOT EXISTS idx_classifications_run_id ON document_classifications(run_id);
`

// Store holds the tracking database. All mutating operations run inside a
// single transaction so a failed sync leaves no partial state behind.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the tracking database at path and brings
// its schema up to date. Safe to call repeatedly against the same file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tracking schema: %w", err)
	}
	if err := ensureEvolution(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureEvolution adds columns introduced after the first schema version.
// Checks are additive only so older databases keep working in place.
func ensureEvolution(db *sql.DB) error {
	evolutions := []struct {
		table  string
		column string
		ddl    string
	}{
		{"runs", "api_base_url", "ALTER TABLE runs ADD COLUMN api_base_url TEXT NOT NULL DEFAULT ''"},
		{"runs", "auth_mode", "ALTER TABLE runs ADD COLUMN auth_mode TEXT NOT NULL DEFAULT 'token'"},
		{"tracked_documents", "deleted_at", "ALTER TABLE tracked_documents ADD COLUMN deleted_at TEXT"},
		{"tracked_documents", "deleted_in_run_id", "ALTER TABLE tracked_documents ADD COLUMN deleted_in_run_id INTEGER"},
	}
	for _, ev := range evolutions {
		ok, err := hasColumn(db, ev.table, ev.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := db.Exec(ev.ddl); err != nil {
			return fmt.Errorf("evolve %s.%s: %w", ev.table, ev.column, err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// RunMeta records what a sync run was and how it talked to the service.
type RunMeta struct {
	RunType     string
	APIBaseURL  string
	AuthMode    string
	OCREngines  []string
	OCRProvider string
	OCRModel    string
	Notes       string
}

// RunSummary reports the classification counts of a completed sync run.
// Total always equals New + Changed + Unchanged.
type RunSummary struct {
	RunID     int64
	Total     int
	New       int
	Changed   int
	Unchanged int
	Missing   int
}

// TrackedDocument is the persisted per-document tracking state.
type TrackedDocument struct {
	ID               int
	FirstSeenRunID   int64
	LastSeenRunID    int64
	FirstSeenAt      string
	LastSeenAt       string
	Active           bool
	DeletedAt        string
	DeletedInRunID   *int64
	Title            string
	MimeType         string
	OriginalFilename string
	ArchiveFilename  string
	PageCount        *int
	Modified         string
	ContentLength    int
	Fingerprint      string
}

// Classification is one per-run observation of a document.
type Classification struct {
	RunID               int64
	DocID               int
	ObservedAt          string
	Kind                string
	ChangedFields       []string
	PreviousFingerprint string
	NewFingerprint      string
}

// trackedRow is the field subset loaded for change detection.
type trackedRow struct {
	Title            string
	MimeType         string
	OriginalFilename string
	ArchiveFilename  string
	PageCount        *int
	Modified         string
	ContentLength    int
	Fingerprint      string
}

// GetTracked returns the tracking row for a document id, reporting whether
// the document has ever been observed.
func (s *Store) GetTracked(ctx context.Context, id int) (TrackedDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, first_seen_run_id, last_seen_run_id, first_seen_at, last_seen_at,
		       is_active, deleted_at, deleted_in_run_id,
		       title, mime_type, original_filename, archive_filename,
		       page_count, modified, content_length, current_fingerprint
		FROM tracked_documents WHERE doc_id = ?`, id)

	var (
		doc        TrackedDocument
		active     int
		deletedAt  sql.NullString
		deletedRun sql.NullInt64
		pageCount  sql.NullInt64
		modified   sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.FirstSeenRunID, &doc.LastSeenRunID, &doc.FirstSeenAt, &doc.LastSeenAt,
		&active, &deletedAt, &deletedRun,
		&doc.Title, &doc.MimeType, &doc.OriginalFilename, &doc.ArchiveFilename,
		&pageCount, &modified, &doc.ContentLength, &doc.Fingerprint,
	)
	if err == sql.ErrNoRows {
		return TrackedDocument{}, false, nil
	}
	if err != nil {
		return TrackedDocument{}, false, fmt.Errorf("load tracked document %d: %w", id, err)
	}
	doc.Active = active != 0
	doc.DeletedAt = deletedAt.String
	if deletedRun.Valid {
		v := deletedRun.Int64
		doc.DeletedInRunID = &v
	}
	if pageCount.Valid {
		v := int(pageCount.Int64)
		doc.PageCount = &v
	}
	doc.Modified = modified.String
	return doc, true, nil
}

// RunClassifications returns every classification recorded for a run,
// ordered by document id.
func (s *Store) RunClassifications(ctx context.Context, runID int64) ([]Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, doc_id, observed_at, classification,
		       changed_fields_json, previous_fingerprint, new_fingerprint
		FROM document_classifications WHERE run_id = ? ORDER BY doc_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load classifications for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []Classification
	for rows.Next() {
		var (
			c           Classification
			changedJSON sql.NullString
			prevFP      sql.NullString
			newFP       sql.NullString
		)
		if err := rows.Scan(&c.RunID, &c.DocID, &c.ObservedAt, &c.Kind, &changedJSON, &prevFP, &newFP); err != nil {
			return nil, err
		}
		if changedJSON.Valid && changedJSON.String != "" {
			if err := json.Unmarshal([]byte(changedJSON.String), &c.ChangedFields); err != nil {
				return nil, fmt.Errorf("decode changed fields for doc %d: %w", c.DocID, err)
			}
		}
		c.PreviousFingerprint = prevFP.String
		c.NewFingerprint = newFP.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// RunRecord is a completed (or in-flight) run row.
type RunRecord struct {
	ID          int64
	StartedAt   string
	CompletedAt string
	RunType     string
	APIBaseURL  string
	Notes       string
	Total       int
	New         int
	Changed     int
	Unchanged   int
	Missing     int
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, run_type, api_base_url, notes,
		       total_documents, new_documents, changed_documents, unchanged_documents, missing_documents
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r           RunRecord
			completedAt sql.NullString
			notes       sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &completedAt, &r.RunType, &r.APIBaseURL, &notes,
			&r.Total, &r.New, &r.Changed, &r.Unchanged, &r.Missing); err != nil {
			return nil, err
		}
		r.CompletedAt = completedAt.String
		r.Notes = notes.String
		out = append(out, r)
	}
	return out, rows.Err()
}
