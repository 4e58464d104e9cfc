package track

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/jackzampolin/papertrail/internal/paperless"
)

// fingerprintPayload fixes the field subset and key order hashed for change
// detection. Field order matches sorted JSON keys so the serialization is
// stable across runs.
type fingerprintPayload struct {
	ArchiveFilename  string  `json:"archive_filename"`
	ContentLength    int     `json:"content_length"`
	MimeType         string  `json:"mime_type"`
	Modified         *string `json:"modified"`
	OriginalFilename string  `json:"original_filename"`
	PageCount        *int    `json:"page_count"`
	Title            string  `json:"title"`
}

// Fingerprint computes a stable content fingerprint over the seven tracked
// document fields. Equal field tuples produce equal fingerprints; the hash
// is used purely for change detection, never for identity.
func Fingerprint(doc paperless.Document) string {
	payload := fingerprintPayload{
		ArchiveFilename:  doc.ArchiveFilename,
		ContentLength:    doc.ContentLength,
		MimeType:         doc.MimeType,
		OriginalFilename: doc.OriginalFilename,
		PageCount:        doc.PageCount,
		Title:            doc.Title,
	}
	if doc.Modified != "" {
		payload.Modified = &doc.Modified
	}

	// Marshal of a fixed struct cannot fail.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// trackedFields lists the fingerprinted field names in classification order.
var trackedFields = []string{
	"title",
	"mime_type",
	"original_filename",
	"archive_filename",
	"page_count",
	"modified",
	"content_length",
}

// changedFields compares a previously tracked row against the current
// document field by field. The comparison is independent of the fingerprint
// so classifications can name exactly what moved.
func changedFields(prev trackedRow, doc paperless.Document) []string {
	var changed []string
	if prev.Title != doc.Title {
		changed = append(changed, "title")
	}
	if prev.MimeType != doc.MimeType {
		changed = append(changed, "mime_type")
	}
	if prev.OriginalFilename != doc.OriginalFilename {
		changed = append(changed, "original_filename")
	}
	if prev.ArchiveFilename != doc.ArchiveFilename {
		changed = append(changed, "archive_filename")
	}
	if !intPtrEqual(prev.PageCount, doc.PageCount) {
		changed = append(changed, "page_count")
	}
	if prev.Modified != doc.Modified {
		changed = append(changed, "modified")
	}
	if prev.ContentLength != doc.ContentLength {
		changed = append(changed, "content_length")
	}
	return changed
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
