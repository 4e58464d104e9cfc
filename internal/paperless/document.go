package paperless

// Document is the normalized per-run view of a document service record.
// Only ID is guaranteed; every other field defaults to its zero value when
// the source payload omits it.
type Document struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	MimeType         string `json:"mime_type"`
	OriginalFilename string `json:"original_filename"`
	ArchiveFilename  string `json:"archive_filename"`
	PageCount        *int   `json:"page_count,omitempty"`
	Modified         string `json:"modified,omitempty"`
	ContentLength    int    `json:"content_length"`
}

// Snapshot is the four-field subset compared by the diff-observation
// fallback when a reprocess job has no pollable task id.
type Snapshot struct {
	Modified        string
	ContentLength   int
	ArchiveFilename string
	PageCount       *int
}

// Snapshot extracts the diff baseline from a document.
func (d Document) Snapshot() Snapshot {
	return Snapshot{
		Modified:        d.Modified,
		ContentLength:   d.ContentLength,
		ArchiveFilename: d.ArchiveFilename,
		PageCount:       d.PageCount,
	}
}

// Diff returns the names of snapshot fields whose values differ, in a fixed
// order, with old/new renderings for logging.
func (s Snapshot) Diff(after Snapshot) []FieldChange {
	var changed []FieldChange
	if s.Modified != after.Modified {
		changed = append(changed, FieldChange{"modified", s.Modified, after.Modified})
	}
	if s.ContentLength != after.ContentLength {
		changed = append(changed, FieldChange{"content_length", itoa(s.ContentLength), itoa(after.ContentLength)})
	}
	if s.ArchiveFilename != after.ArchiveFilename {
		changed = append(changed, FieldChange{"archive_filename", s.ArchiveFilename, after.ArchiveFilename})
	}
	if !intPtrEqual(s.PageCount, after.PageCount) {
		changed = append(changed, FieldChange{"page_count", renderIntPtr(s.PageCount), renderIntPtr(after.PageCount)})
	}
	return changed
}

// FieldChange records one observed field difference.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func renderIntPtr(v *int) string {
	if v == nil {
		return "none"
	}
	return itoa(*v)
}
