package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ProgressFunc receives one notification per fetched listing page with the
// running document total.
type ProgressFunc func(page, totalDocs int)

// Client is an HTTP client for the document service REST API.
type Client struct {
	baseURL    string
	authHeader string
	pageSize   int
	httpClient *http.Client
	onPage     ProgressFunc
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets the listing page size (default 200).
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithProgress registers a per-page progress callback for FetchAll.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) { c.onPage = fn }
}

// NewClient creates a new document service client. authHeader must already
// be a complete Authorization header value (see secrets.AuthorizationHeader).
func NewClient(baseURL, authHeader string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: authHeader,
		pageSize:   200,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// getJSON performs a GET request against an absolute URL and decodes the
// response into an untyped JSON value.
func (c *Client) getJSON(ctx context.Context, rawURL string) (any, error) {
	return c.doJSON(ctx, http.MethodGet, rawURL, nil)
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, body any) (any, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d) for %s: %s", resp.StatusCode, rawURL, strings.TrimSpace(string(respBody)))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return map[string]any{}, nil
	}

	var payload any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("non-JSON response for %s: %w", rawURL, err)
	}
	return payload, nil
}

// getBinary performs a GET request and returns the raw response body.
func (c *Client) getBinary(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d) for %s", resp.StatusCode, rawURL)
	}
	return body, nil
}

// Preflight probes page 1 of the document listing and reports whether the
// API is reachable with the configured credentials.
func (c *Client) Preflight(ctx context.Context) (string, error) {
	probeSize := c.pageSize
	if probeSize > 5 {
		probeSize = 5
	}
	payload, err := c.getJSON(ctx, fmt.Sprintf("%s/api/documents/?page=1&page_size=%d", c.baseURL, probeSize))
	if err != nil {
		return "", err
	}
	switch t := payload.(type) {
	case map[string]any:
		if _, ok := t["results"]; ok {
			return fmt.Sprintf("API reachable (documents_count=%v)", t["count"]), nil
		}
		return "", fmt.Errorf("unexpected preflight response shape: object without 'results'")
	case []any:
		return "API reachable (non-paginated list response)", nil
	default:
		return "", fmt.Errorf("unexpected preflight response type: %T", payload)
	}
}

// FetchAll retrieves the complete document listing, following server
// pagination links until exhausted, and returns normalized documents sorted
// ascending by id. Items that are not JSON objects are skipped; objects
// without a usable id are rejected individually without aborting the fetch.
func (c *Client) FetchAll(ctx context.Context) ([]Document, error) {
	nextURL := fmt.Sprintf("%s/api/documents/?page=1&page_size=%d", c.baseURL, c.pageSize)
	var docs []Document
	page := 0

	for nextURL != "" {
		page++
		payload, err := c.getJSON(ctx, nextURL)
		if err != nil {
			return nil, err
		}

		switch t := payload.(type) {
		case map[string]any:
			results, ok := t["results"].([]any)
			if !ok {
				return nil, fmt.Errorf("unexpected paginated response shape from /api/documents/ (missing list 'results')")
			}
			docs = append(docs, normalizeItems(results)...)
			nextURL = ""
			if next, ok := t["next"].(string); ok && strings.TrimSpace(next) != "" {
				resolved, err := c.resolveNext(next)
				if err != nil {
					return nil, err
				}
				nextURL = resolved
			}
		case []any:
			docs = append(docs, normalizeItems(t)...)
			nextURL = ""
		default:
			return nil, fmt.Errorf("unexpected response type from /api/documents/: %T", payload)
		}

		if c.onPage != nil {
			c.onPage(page, len(docs))
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func normalizeItems(items []any) []Document {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		doc, err := Normalize(obj)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// resolveNext resolves a server-provided "next" link, which may be relative
// or carry a different host from a reverse proxy, against the base URL.
func (c *Client) resolveNext(next string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("invalid pagination link %q: %w", next, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// GetRaw fetches a single document's raw payload.
func (c *Client) GetRaw(ctx context.Context, id int) (map[string]any, error) {
	payload, err := c.getJSON(ctx, fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id))
	if err != nil {
		return nil, err
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected document payload type for id=%d: %T", id, payload)
	}
	return obj, nil
}

// Get fetches and normalizes a single document.
func (c *Client) Get(ctx context.Context, id int) (Document, error) {
	raw, err := c.GetRaw(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return Normalize(raw)
}

// Download retrieves the document's binary content (archived version when
// available, original otherwise).
func (c *Client) Download(ctx context.Context, id int) ([]byte, error) {
	return c.getBinary(ctx, fmt.Sprintf("%s/api/documents/%d/download/", c.baseURL, id))
}

// Reprocess submits a bulk reprocess job for the given ids and returns the
// raw response payload. Response shape varies across service versions, so
// interpretation is left to the caller.
func (c *Client) Reprocess(ctx context.Context, ids []int) (any, error) {
	body := map[string]any{
		"documents": ids,
		"method":    "reprocess",
	}
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/documents/bulk_edit/", body)
}

// PatchContent overwrites a document's extracted text content.
func (c *Client) PatchContent(ctx context.Context, id int, content string) error {
	_, err := c.doJSON(ctx, http.MethodPatch,
		fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id),
		map[string]any{"content": content})
	return err
}

// TaskState polls a task by id and extracts its state token plus free-text
// detail. The task object may arrive in a results[0] envelope, a flat
// object, or a bare list; the state token may live under status, state, or
// task_status. Anything unrecognizable reports as PENDING.
func (c *Client) TaskState(ctx context.Context, taskID string) (string, string, error) {
	payload, err := c.getJSON(ctx, fmt.Sprintf("%s/api/tasks/?task_id=%s", c.baseURL, url.QueryEscape(taskID)))
	if err != nil {
		return "", "", err
	}
	state, detail := taskStateFromPayload(payload)
	return state, detail, nil
}

func taskStateFromPayload(payload any) (string, string) {
	var task map[string]any
	switch t := payload.(type) {
	case map[string]any:
		if results, ok := t["results"].([]any); ok && len(results) > 0 {
			task, _ = results[0].(map[string]any)
		} else if _, hasID := t["id"]; hasID {
			if _, hasStatus := t["status"]; hasStatus {
				task = t
			}
		}
	case []any:
		if len(t) > 0 {
			task, _ = t[0].(map[string]any)
		}
	}
	if task == nil {
		return "PENDING", "Task metadata not available yet"
	}

	state := "PENDING"
	for _, key := range []string{"status", "state", "task_status"} {
		if v, ok := task[key].(string); ok && strings.TrimSpace(v) != "" {
			state = strings.ToUpper(strings.TrimSpace(v))
			break
		}
	}

	var detailParts []string
	for _, key := range []string{"result", "message", "traceback"} {
		if v, ok := task[key].(string); ok && strings.TrimSpace(v) != "" {
			detailParts = append(detailParts, key+"="+strings.TrimSpace(v))
		}
	}
	return state, strings.Join(detailParts, " | ")
}
