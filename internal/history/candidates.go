package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/papertrail/internal/paperless"
)

// Selection is the result of building a run candidate set.
type Selection struct {
	Selected       []paperless.Document
	TotalDocuments int
	ExcludedRecent int
}

// SelectCandidates builds the next reprocessing batch: documents processed
// within recentDays are excluded, the rest are ordered smallest extracted
// text first (ties by id) and truncated to batchSize.
func SelectCandidates(docs []paperless.Document, processed []Row, batchSize, recentDays int, now time.Time) Selection {
	recent := RecentIDs(processed, recentDays, now)

	candidates := make([]paperless.Document, 0, len(docs))
	for _, d := range docs {
		if recent[d.ID] {
			continue
		}
		candidates = append(candidates, d)
	}
	sortByContentLength(candidates)

	if batchSize >= 0 && len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}
	return Selection{
		Selected:       candidates,
		TotalDocuments: len(docs),
		ExcludedRecent: len(recent),
	}
}

// Prospective is a document flagged as likely to benefit from reprocessing,
// with the reasons it was flagged.
type Prospective struct {
	ID            int
	Title         string
	ContentLength int
	Reasons       []string
	LastProcessed string
}

// Reason renders the reason list the way the history log records it.
func (p Prospective) Reason() string {
	return strings.Join(p.Reasons, ",")
}

// SelectProspective flags documents whose extracted text looks deficient:
// below the character threshold, missing an archive file, or a PDF with no
// text at all. Documents processed within recentDays are skipped. Results
// are ordered smallest text first with ties by id.
func SelectProspective(docs []paperless.Document, processed []Row, threshold, recentDays int, now time.Time) []Prospective {
	recent := RecentIDs(processed, recentDays, now)
	last := LastProcessed(processed)

	var out []Prospective
	for _, d := range docs {
		if recent[d.ID] {
			continue
		}
		var reasons []string
		if d.ContentLength < threshold {
			reasons = append(reasons, fmt.Sprintf("low_text<%d", threshold))
		}
		if strings.TrimSpace(d.ArchiveFilename) == "" {
			reasons = append(reasons, "missing_archive")
		}
		if strings.EqualFold(d.MimeType, "application/pdf") && d.ContentLength == 0 {
			reasons = append(reasons, "pdf_zero_text")
		}
		if len(reasons) == 0 {
			continue
		}
		out = append(out, Prospective{
			ID:            d.ID,
			Title:         d.Title,
			ContentLength: d.ContentLength,
			Reasons:       reasons,
			LastProcessed: renderLastProcessed(last, d.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContentLength != out[j].ContentLength {
			return out[i].ContentLength < out[j].ContentLength
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortByContentLength(docs []paperless.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].ContentLength != docs[j].ContentLength {
			return docs[i].ContentLength < docs[j].ContentLength
		}
		return docs[i].ID < docs[j].ID
	})
}

func renderLastProcessed(last map[int]time.Time, id int) string {
	ts, ok := last[id]
	if !ok {
		return "never"
	}
	return ts.Format("2006-01-02 15:04:05")
}
