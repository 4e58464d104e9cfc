package track

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackzampolin/papertrail/internal/paperless"
)

// RunSync records one complete observation of the document population.
// It opens a run, classifies every observed document as new, changed or
// unchanged, soft-deletes tracked documents that were not observed, and
// closes the run with its counters. The entire run is one transaction:
// any failure rolls back everything including the run row itself.
func (s *Store) RunSync(ctx context.Context, meta RunMeta, docs []paperless.Document, now time.Time) (RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunSummary{}, fmt.Errorf("begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	nowISO := now.UTC().Format(time.RFC3339)

	runID, err := insertRun(ctx, tx, meta, nowISO)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{RunID: runID, Total: len(docs)}
	if err := syncDocuments(ctx, tx, runID, docs, nowISO, &summary); err != nil {
		return RunSummary{}, err
	}

	observed := make(map[int]bool, len(docs))
	for _, doc := range docs {
		observed[doc.ID] = true
	}
	missing, err := markMissing(ctx, tx, runID, observed, nowISO)
	if err != nil {
		return RunSummary{}, err
	}
	summary.Missing = missing

	if err := completeRun(ctx, tx, runID, summary, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return RunSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return RunSummary{}, fmt.Errorf("commit sync run: %w", err)
	}
	return summary, nil
}

func insertRun(ctx context.Context, tx *sql.Tx, meta RunMeta, startedAt string) (int64, error) {
	runType := meta.RunType
	if runType == "" {
		runType = RunTypeSync
	}
	authMode := meta.AuthMode
	if authMode == "" {
		authMode = "token"
	}
	enginesJSON, _ := json.Marshal(meta.OCREngines)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, run_type, api_base_url, auth_mode,
		                  ocr_engines_json, ocr_provider, ocr_model, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		startedAt, runType, meta.APIBaseURL, authMode,
		string(enginesJSON), nullIfEmpty(meta.OCRProvider), nullIfEmpty(meta.OCRModel), nullIfEmpty(meta.Notes))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}
	return runID, nil
}

func syncDocuments(ctx context.Context, tx *sql.Tx, runID int64, docs []paperless.Document, observedAt string, summary *RunSummary) error {
	for _, doc := range docs {
		fingerprint := Fingerprint(doc)

		prev, found, err := loadTrackedRow(ctx, tx, doc.ID)
		if err != nil {
			return err
		}

		if !found {
			summary.New++
			if err := insertTracked(ctx, tx, runID, doc, fingerprint, observedAt); err != nil {
				return err
			}
			// A new document counts every tracked field as changed.
			if err := insertClassification(ctx, tx, runID, doc, classificationRow{
				Kind:           "new",
				ChangedFields:  trackedFields,
				NewFingerprint: fingerprint,
				ObservedAt:     observedAt,
			}); err != nil {
				return err
			}
			continue
		}

		kind := "unchanged"
		if prev.Fingerprint != fingerprint {
			kind = "changed"
			summary.Changed++
		} else {
			summary.Unchanged++
		}

		if err := updateTracked(ctx, tx, runID, doc, fingerprint, observedAt); err != nil {
			return err
		}
		if err := insertClassification(ctx, tx, runID, doc, classificationRow{
			Kind:                kind,
			ChangedFields:       changedFields(prev, doc),
			PreviousFingerprint: prev.Fingerprint,
			NewFingerprint:      fingerprint,
			ObservedAt:          observedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// markMissing soft-deletes active tracked documents absent from the observed
// set and records a missing classification for each. Rows are never removed;
// a later observation reactivates the document.
func markMissing(ctx context.Context, tx *sql.Tx, runID int64, observed map[int]bool, nowISO string) (int, error) {
	rows, err := tx.QueryContext(ctx, "SELECT doc_id FROM tracked_documents WHERE is_active = 1")
	if err != nil {
		return 0, fmt.Errorf("load active documents: %w", err)
	}
	var missingIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if !observed[id] {
			missingIDs = append(missingIDs, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	sort.Ints(missingIDs)

	for _, id := range missingIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tracked_documents
			SET is_active = 0, deleted_at = ?, deleted_in_run_id = ?
			WHERE doc_id = ?`, nowISO, runID, id); err != nil {
			return 0, fmt.Errorf("soft delete document %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO document_classifications (
				run_id, doc_id, observed_at, classification, changed_fields_json,
				previous_fingerprint, new_fingerprint,
				title, mime_type, original_filename, archive_filename,
				page_count, modified, content_length)
			VALUES (?, ?, ?, 'missing', '[]', NULL, NULL, '', '', '', '', NULL, NULL, 0)`,
			runID, id, nowISO); err != nil {
			return 0, fmt.Errorf("record missing document %d: %w", id, err)
		}
	}
	return len(missingIDs), nil
}

func completeRun(ctx context.Context, tx *sql.Tx, runID int64, summary RunSummary, completedAt string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET completed_at = ?, total_documents = ?, new_documents = ?,
		    changed_documents = ?, unchanged_documents = ?, missing_documents = ?
		WHERE id = ?`,
		completedAt, summary.Total, summary.New, summary.Changed, summary.Unchanged, summary.Missing, runID)
	if err != nil {
		return fmt.Errorf("complete run %d: %w", runID, err)
	}
	return nil
}

func loadTrackedRow(ctx context.Context, tx *sql.Tx, id int) (trackedRow, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT title, mime_type, original_filename, archive_filename,
		       page_count, modified, content_length, current_fingerprint
		FROM tracked_documents WHERE doc_id = ?`, id)

	var (
		prev      trackedRow
		pageCount sql.NullInt64
		modified  sql.NullString
	)
	err := row.Scan(&prev.Title, &prev.MimeType, &prev.OriginalFilename, &prev.ArchiveFilename,
		&pageCount, &modified, &prev.ContentLength, &prev.Fingerprint)
	if err == sql.ErrNoRows {
		return trackedRow{}, false, nil
	}
	if err != nil {
		return trackedRow{}, false, fmt.Errorf("load tracked row %d: %w", id, err)
	}
	if pageCount.Valid {
		v := int(pageCount.Int64)
		prev.PageCount = &v
	}
	prev.Modified = modified.String
	return prev, true, nil
}

func insertTracked(ctx context.Context, tx *sql.Tx, runID int64, doc paperless.Document, fingerprint, observedAt string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tracked_documents (
			doc_id, first_seen_run_id, last_seen_run_id, first_seen_at, last_seen_at,
			is_active, deleted_at, deleted_in_run_id,
			title, mime_type, original_filename, archive_filename,
			page_count, modified, content_length, current_fingerprint)
		VALUES (?, ?, ?, ?, ?, 1, NULL, NULL, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, runID, runID, observedAt, observedAt,
		doc.Title, doc.MimeType, doc.OriginalFilename, doc.ArchiveFilename,
		nullableInt(doc.PageCount), nullIfEmpty(doc.Modified), doc.ContentLength, fingerprint)
	if err != nil {
		return fmt.Errorf("insert tracked document %d: %w", doc.ID, err)
	}
	return nil
}

// updateTracked refreshes the tracked row and reactivates it if it had been
// marked missing.
func updateTracked(ctx context.Context, tx *sql.Tx, runID int64, doc paperless.Document, fingerprint, observedAt string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tracked_documents
		SET last_seen_run_id = ?, last_seen_at = ?,
		    is_active = 1, deleted_at = NULL, deleted_in_run_id = NULL,
		    title = ?, mime_type = ?, original_filename = ?, archive_filename = ?,
		    page_count = ?, modified = ?, content_length = ?, current_fingerprint = ?
		WHERE doc_id = ?`,
		runID, observedAt,
		doc.Title, doc.MimeType, doc.OriginalFilename, doc.ArchiveFilename,
		nullableInt(doc.PageCount), nullIfEmpty(doc.Modified), doc.ContentLength, fingerprint,
		doc.ID)
	if err != nil {
		return fmt.Errorf("update tracked document %d: %w", doc.ID, err)
	}
	return nil
}

type classificationRow struct {
	Kind                string
	ChangedFields       []string
	PreviousFingerprint string
	NewFingerprint      string
	ObservedAt          string
}

func insertClassification(ctx context.Context, tx *sql.Tx, runID int64, doc paperless.Document, c classificationRow) error {
	changed := c.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	changedJSON, _ := json.Marshal(changed)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO document_classifications (
			run_id, doc_id, observed_at, classification, changed_fields_json,
			previous_fingerprint, new_fingerprint,
			title, mime_type, original_filename, archive_filename,
			page_count, modified, content_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, doc.ID, c.ObservedAt, c.Kind, string(changedJSON),
		nullIfEmpty(c.PreviousFingerprint), c.NewFingerprint,
		doc.Title, doc.MimeType, doc.OriginalFilename, doc.ArchiveFilename,
		nullableInt(doc.PageCount), nullIfEmpty(doc.Modified), doc.ContentLength)
	if err != nil {
		return fmt.Errorf("classify document %d: %w", doc.ID, err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
