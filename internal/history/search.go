package history

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackzampolin/papertrail/internal/paperless"
)

// SearchFilter narrows the loaded document set. Zero values mean the
// corresponding criterion is not applied; nil range bounds are open.
type SearchFilter struct {
	Query              string
	ModifiedContains   string
	MissingArchiveOnly bool
	ExcludeRecentDays  int
	MinChars           *int
	MaxChars           *int
	MinPages           *int
	MaxPages           *int
}

// Validate rejects inverted range bounds.
func (f SearchFilter) Validate() error {
	if f.MinChars != nil && f.MaxChars != nil && *f.MaxChars < *f.MinChars {
		return errors.New("chars max must be >= chars min")
	}
	if f.MinPages != nil && f.MaxPages != nil && *f.MaxPages < *f.MinPages {
		return errors.New("pages max must be >= pages min")
	}
	return nil
}

// Search filters documents by free-text query, modified substring, archive
// presence, character and page ranges, and recent-processing exclusion.
// The query matches case-insensitively against id, title, both filenames
// and the modified string. Page bounds exclude documents with no known
// page count. Results come back ordered smallest text first, ties by id.
func Search(docs []paperless.Document, processed []Row, f SearchFilter, now time.Time) ([]paperless.Document, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var recent map[int]bool
	if f.ExcludeRecentDays > 0 {
		recent = RecentIDs(processed, f.ExcludeRecentDays, now)
	}

	query := strings.ToLower(strings.TrimSpace(f.Query))
	modifiedContains := strings.ToLower(strings.TrimSpace(f.ModifiedContains))

	var out []paperless.Document
	for _, d := range docs {
		if recent != nil && recent[d.ID] {
			continue
		}
		if query != "" {
			haystack := strings.ToLower(strings.Join([]string{
				strconv.Itoa(d.ID),
				d.Title,
				d.ArchiveFilename,
				d.OriginalFilename,
				d.Modified,
			}, " "))
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		if modifiedContains != "" && !strings.Contains(strings.ToLower(d.Modified), modifiedContains) {
			continue
		}
		if f.MissingArchiveOnly && strings.TrimSpace(d.ArchiveFilename) != "" {
			continue
		}
		if f.MinChars != nil && d.ContentLength < *f.MinChars {
			continue
		}
		if f.MaxChars != nil && d.ContentLength > *f.MaxChars {
			continue
		}
		if f.MinPages != nil && (d.PageCount == nil || *d.PageCount < *f.MinPages) {
			continue
		}
		if f.MaxPages != nil && (d.PageCount == nil || *d.PageCount > *f.MaxPages) {
			continue
		}
		out = append(out, d)
	}
	sortByContentLength(out)
	return out, nil
}
