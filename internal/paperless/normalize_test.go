package paperless

import (
	"reflect"
	"testing"
)

func TestNormalize_AliasFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Document
	}{
		{
			name: "canonical keys",
			raw: map[string]any{
				"id":                float64(7),
				"title":             "Invoice",
				"mime_type":         "application/pdf",
				"original_filename": "inv.pdf",
				"archive_filename":  "inv-arch.pdf",
				"page_count":        float64(3),
				"modified":          "2026-01-02T03:04:05Z",
				"content_length":    float64(120),
			},
			want: Document{
				ID: 7, Title: "Invoice", MimeType: "application/pdf",
				OriginalFilename: "inv.pdf", ArchiveFilename: "inv-arch.pdf",
				PageCount: intPtr(3), Modified: "2026-01-02T03:04:05Z", ContentLength: 120,
			},
		},
		{
			name: "legacy aliases",
			raw: map[string]any{
				"id":                 float64(8),
				"mime":               "image/png",
				"original_file_name": "scan.png",
				"archived_file_name": "scan-arch.png",
				"pages":              float64(1),
				"updated":            "2025-12-31",
			},
			want: Document{
				ID: 8, MimeType: "image/png",
				OriginalFilename: "scan.png", ArchiveFilename: "scan-arch.png",
				PageCount: intPtr(1), Modified: "2025-12-31",
			},
		},
		{
			name: "content length derived from content",
			raw: map[string]any{
				"id":      float64(9),
				"content": "hello world",
			},
			want: Document{ID: 9, ContentLength: 11},
		},
		{
			name: "non-numeric content_length falls back to content",
			raw: map[string]any{
				"id":             float64(10),
				"content":        "abc",
				"content_length": "not-a-number",
			},
			want: Document{ID: 10, ContentLength: 3},
		},
		{
			name: "unparseable page count stays nil",
			raw: map[string]any{
				"id":         float64(11),
				"page_count": "many",
			},
			want: Document{ID: 11},
		},
		{
			name: "null values skipped in alias order",
			raw: map[string]any{
				"id":       float64(12),
				"modified": nil,
				"created":  "2025-01-01",
			},
			want: Document{ID: 12, Modified: "2025-01-01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_MissingID(t *testing.T) {
	if _, err := Normalize(map[string]any{"title": "no id"}); err == nil {
		t.Error("expected error for payload without id")
	}
	if _, err := Normalize(map[string]any{"id": "abc"}); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestSnapshotDiff(t *testing.T) {
	before := Snapshot{Modified: "t1", ContentLength: 50, ArchiveFilename: "a.pdf", PageCount: intPtr(2)}

	t.Run("no change", func(t *testing.T) {
		if diff := before.Diff(before); len(diff) != 0 {
			t.Errorf("expected empty diff, got %v", diff)
		}
	})

	t.Run("content length change", func(t *testing.T) {
		after := before
		after.ContentLength = 500
		diff := before.Diff(after)
		if len(diff) != 1 || diff[0].Field != "content_length" {
			t.Fatalf("diff = %v, want single content_length change", diff)
		}
		if diff[0].Old != "50" || diff[0].New != "500" {
			t.Errorf("diff values = %s -> %s, want 50 -> 500", diff[0].Old, diff[0].New)
		}
	})

	t.Run("page count nil vs set", func(t *testing.T) {
		after := before
		after.PageCount = nil
		diff := before.Diff(after)
		if len(diff) != 1 || diff[0].Field != "page_count" {
			t.Fatalf("diff = %v, want single page_count change", diff)
		}
	})
}

func intPtr(n int) *int { return &n }
