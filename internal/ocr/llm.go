// Package ocr re-extracts document text through an OpenAI-compatible API
// and inspects source PDFs.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// EngineLLM names the LLM OCR engine in events and summaries.
const EngineLLM = "llm_openai_compatible"

// Request body shapes.
const (
	ModeResponses = "responses"
	ModeChat      = "chat_completions"
)

const retryBackoffBase = 2 * time.Second

// LLMClient drives OCR through an OpenAI-compatible endpoint. Two request
// shapes are supported: the responses API with an inline PDF file, and
// plain chat completions with the PDF embedded as a base64 data URL.
type LLMClient struct {
	baseURL       string
	apiKey        string
	model         string
	mode          string
	prompt        string
	retryAttempts int
	retryBackoff  time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

type LLMOptions struct {
	BaseURL       string
	APIKey        string
	Model         string
	Mode          string
	Prompt        string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

func NewLLMClient(opts LLMOptions, logger *slog.Logger) (*LLMClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("llm model is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeResponses
	}
	if mode != ModeResponses && mode != ModeChat {
		return nil, fmt.Errorf("unknown llm mode %q", mode)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = retryBackoffBase
	}
	return &LLMClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		model:         opts.Model,
		mode:          mode,
		prompt:        opts.Prompt,
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  backoff,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}, nil
}

// OCRPDF sends the PDF through the configured endpoint and returns the
// extracted text.
func (c *LLMClient) OCRPDF(ctx context.Context, pdf []byte, filename string) (string, error) {
	dataURL := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)

	var url string
	var payload any
	if c.mode == ModeChat {
		url = c.baseURL + "/v1/chat/completions"
		payload = map[string]any{
			"model": c.model,
			"messages": []any{
				map[string]any{"role": "system", "content": "You are a high-fidelity OCR assistant."},
				map[string]any{
					"role":    "user",
					"content": fmt.Sprintf("%s\n\nFilename: %s\nPDF base64 data URL:\n%s", c.prompt, filename, dataURL),
				},
			},
			"temperature": 0,
		}
	} else {
		url = c.baseURL + "/v1/responses"
		payload = map[string]any{
			"model": c.model,
			"input": []any{
				map[string]any{
					"role": "user",
					"content": []any{
						map[string]any{"type": "input_text", "text": c.prompt},
						map[string]any{"type": "input_file", "filename": filename, "file_data": dataURL},
					},
				},
			},
		}
	}

	raw, err := c.postJSON(ctx, url, payload)
	if err != nil {
		return "", err
	}
	return ExtractText(raw)
}

// retryableError marks server-side and transport failures worth retrying.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// postJSON posts with linear backoff on 5xx and transport errors. Client
// errors and malformed responses fail immediately.
func (c *LLMClient) postJSON(ctx context.Context, url string, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode llm request: %w", err)
	}

	var result any
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return &retryableError{err}
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return &retryableError{err}
			}
			if resp.StatusCode >= 500 {
				return &retryableError{fmt.Errorf("HTTP %d for %s: %s", resp.StatusCode, url, strings.TrimSpace(string(raw)))}
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d for %s: %s", resp.StatusCode, url, strings.TrimSpace(string(raw))))
			}
			if len(bytes.TrimSpace(raw)) == 0 {
				result = map[string]any{}
				return nil
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				return retry.Unrecoverable(fmt.Errorf("llm returned non-JSON response for %s", url))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.retryAttempts+1)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// Linear backoff: base delay times the attempt number.
			return c.retryBackoff * time.Duration(n+1)
		}),
		retry.RetryIf(func(err error) bool {
			var re *retryableError
			return errors.As(err, &re)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("llm request failed, retrying", "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExtractText pulls OCR text from a response payload, trying the shapes in
// order: a top-level output_text string, responses-API output content
// blocks joined with blank lines, then the first chat completion choice.
func ExtractText(payload any) (string, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", errors.New("could not extract OCR text from LLM response payload")
	}

	if direct, ok := obj["output_text"].(string); ok && strings.TrimSpace(direct) != "" {
		return strings.TrimSpace(direct), nil
	}

	if output, ok := obj["output"].([]any); ok {
		var texts []string
		for _, item := range output {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			contents, ok := block["content"].([]any)
			if !ok {
				continue
			}
			for _, content := range contents {
				entry, ok := content.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := entry["text"].(string); ok && strings.TrimSpace(text) != "" {
					texts = append(texts, strings.TrimSpace(text))
				}
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n\n"), nil
		}
	}

	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if message, ok := first["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok && strings.TrimSpace(content) != "" {
					return strings.TrimSpace(content), nil
				}
			}
		}
	}

	return "", errors.New("could not extract OCR text from LLM response payload")
}
