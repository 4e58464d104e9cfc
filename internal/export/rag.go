package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Export format modes.
const (
	FormatBoth     = "both"
	FormatMarkdown = "md_only"
	FormatJSON     = "json_only"
)

// Writer lays out RAG exports as <root>/<engine>/<doc_id>/<timestamp>.{md,json}.
type Writer struct {
	root   string
	format string
}

func NewWriter(root, format string) (*Writer, error) {
	switch format {
	case FormatBoth, FormatMarkdown, FormatJSON:
	case "":
		format = FormatBoth
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	return &Writer{root: root, format: format}, nil
}

// Files is the pair of paths written for one export. A path is empty when
// the format mode skipped it.
type Files struct {
	MarkdownPath string
	JSONPath     string
}

// jsonPayload is the sidecar structure consumed by downstream RAG loaders.
type jsonPayload struct {
	DocID      int            `json:"doc_id"`
	Title      string         `json:"title"`
	Engine     string         `json:"engine"`
	ExportedAt string         `json:"exported_at"`
	TextSHA256 string         `json:"text_sha256"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
}

// Write exports one document's text under the engine directory, stamped
// with now.
func (w *Writer) Write(docID int, title, engine, text string, metadata map[string]any, now time.Time) (Files, error) {
	docDir := filepath.Join(w.root, safeEngineDirName(engine), strconv.Itoa(docID))
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create export dir: %w", err)
	}
	base := filepath.Join(docDir, now.Format("20060102_150405"))

	var files Files
	if w.format == FormatBoth || w.format == FormatMarkdown {
		heading := title
		if heading == "" {
			heading = fmt.Sprintf("Document %d", docID)
		}
		md := strings.Join([]string{
			"# " + heading,
			"",
			fmt.Sprintf("- doc_id: %d", docID),
			"- engine: " + engine,
			"- exported_at: " + now.UTC().Format(time.RFC3339),
			"",
			strings.TrimSpace(text),
			"",
		}, "\n")
		files.MarkdownPath = base + ".md"
		if err := os.WriteFile(files.MarkdownPath, []byte(md), 0o644); err != nil {
			return Files{}, fmt.Errorf("write markdown export: %w", err)
		}
	}
	if w.format == FormatBoth || w.format == FormatJSON {
		payload := jsonPayload{
			DocID:      docID,
			Title:      title,
			Engine:     engine,
			ExportedAt: now.UTC().Format(time.RFC3339),
			TextSHA256: TextSHA256(text),
			Text:       text,
			Metadata:   metadata,
		}
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return Files{}, fmt.Errorf("encode json export: %w", err)
		}
		files.JSONPath = base + ".json"
		if err := os.WriteFile(files.JSONPath, raw, 0o644); err != nil {
			return Files{}, fmt.Errorf("write json export: %w", err)
		}
	}
	return files, nil
}

// LoadJSON reads a JSON export back, returning its text, title and
// metadata.
func LoadJSON(path string) (text, title string, metadata map[string]any, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", nil, fmt.Errorf("read json export: %w", err)
	}
	var payload jsonPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", "", nil, fmt.Errorf("decode json export %s: %w", path, err)
	}
	return payload.Text, payload.Title, payload.Metadata, nil
}

// TextSHA256 is the hex digest recorded alongside exported text.
func TextSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var engineDirRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// safeEngineDirName flattens an engine name into a filesystem-safe
// directory component.
func safeEngineDirName(engine string) string {
	raw := strings.ToLower(strings.TrimSpace(engine))
	if raw == "" {
		raw = "unknown"
	}
	cleaned := strings.Trim(engineDirRe.ReplaceAllString(raw, "_"), "_")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
