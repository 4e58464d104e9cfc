package paperless

import (
	"fmt"
	"strconv"
	"strings"
)

// aliasRule maps one logical document field to the ordered list of source
// keys that may carry it across service versions. The first present non-null
// value wins; coerce turns the raw JSON value into the field's type.
type aliasRule struct {
	field  string
	keys   []string
	assign func(d *Document, v any)
}

// aliasTable is the normalization table for string-like fields. Keeping it
// declarative makes the key fallbacks unit-testable in isolation.
var aliasTable = []aliasRule{
	{
		field:  "title",
		keys:   []string{"title"},
		assign: func(d *Document, v any) { d.Title = coerceString(v) },
	},
	{
		field:  "mime_type",
		keys:   []string{"mime_type", "mime"},
		assign: func(d *Document, v any) { d.MimeType = coerceString(v) },
	},
	{
		field:  "original_filename",
		keys:   []string{"original_filename", "original_file_name", "original_file", "filename"},
		assign: func(d *Document, v any) { d.OriginalFilename = coerceString(v) },
	},
	{
		field:  "archive_filename",
		keys:   []string{"archive_filename", "archived_file_name", "archive_file_name", "archive_file"},
		assign: func(d *Document, v any) { d.ArchiveFilename = coerceString(v) },
	},
	{
		field:  "modified",
		keys:   []string{"modified", "updated", "created"},
		assign: func(d *Document, v any) { d.Modified = coerceString(v) },
	},
}

// Normalize converts a raw API payload into a Document. A missing or
// non-numeric id is a hard failure for the record; everything else falls
// back to the alias table defaults.
func Normalize(raw map[string]any) (Document, error) {
	idRaw, ok := firstPresent(raw, "id")
	if !ok {
		return Document{}, fmt.Errorf("document payload missing 'id'")
	}
	id, ok := coerceInt(idRaw)
	if !ok {
		return Document{}, fmt.Errorf("document payload has non-numeric 'id': %v", idRaw)
	}

	doc := Document{ID: id}
	for _, rule := range aliasTable {
		if v, present := firstPresent(raw, rule.keys...); present {
			rule.assign(&doc, v)
		}
	}

	content := ""
	if v, present := firstPresent(raw, "content", "text"); present {
		content = coerceString(v)
	}
	doc.ContentLength = len(content)
	if v, present := firstPresent(raw, "content_length"); present {
		if n, numeric := coerceInt(v); numeric {
			doc.ContentLength = n
		}
	}

	if v, present := firstPresent(raw, "page_count", "pages"); present {
		if n, numeric := coerceInt(v); numeric {
			doc.PageCount = &n
		}
	}

	return doc, nil
}

// ContentText returns the raw extracted text of a document payload, or ""
// when the payload carries none.
func ContentText(raw map[string]any) string {
	if v, present := firstPresent(raw, "content", "text"); present {
		return coerceString(v)
	}
	return ""
}

// firstPresent returns the first non-null value among the given keys.
func firstPresent(raw map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatJSONNumber(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// coerceInt accepts JSON numbers and numeric strings.
func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// formatJSONNumber renders whole floats without a trailing ".0".
func formatJSONNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
