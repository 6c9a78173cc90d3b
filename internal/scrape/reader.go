package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/permaevidence/HopPT/internal/helpers"
	"github.com/permaevidence/HopPT/internal/webctx"
)

const defaultReaderTimeout = 90 * time.Second

// ReaderStrategy delegates rendering and extraction to a remote reader
// service that accepts a URL and returns Markdown.
type ReaderStrategy struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewReaderStrategy builds the remote strategy. The API key is optional;
// when present it is sent as a bearer token.
func NewReaderStrategy(endpoint, apiKey string, timeout time.Duration) (*ReaderStrategy, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("reader endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultReaderTimeout
	}
	return &ReaderStrategy{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// readerResult is the object shape the service returns, either directly
// or wrapped in a data envelope.
type readerResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type readerEnvelope struct {
	Data *readerResult `json:"data"`
}

// Fetch posts the target URL to the reader service and normalizes its
// response. Three shapes are accepted: a direct result object, an
// enveloped one, and raw Markdown text.
func (s *ReaderStrategy) Fetch(ctx context.Context, rawURL string) (*webctx.ScrapedDoc, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("empty url")
	}

	payload, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return nil, fmt.Errorf("encoding reader request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building reader request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reader request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reader response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("reader returned status %d: %s", resp.StatusCode, truncateForError(body))
	}

	result := decodeReaderBody(body)
	if strings.TrimSpace(result.Content) == "" {
		return nil, errors.New("reader returned empty content")
	}
	doc := &webctx.ScrapedDoc{
		URL:      rawURL,
		Source:   helpers.Host(rawURL),
		Title:    strings.TrimSpace(result.Title),
		Markdown: strings.TrimSpace(result.Content),
	}
	return doc, nil
}

// decodeReaderBody tries the enveloped shape first, then the direct
// object, and finally treats the body as raw Markdown.
func decodeReaderBody(body []byte) readerResult {
	var env readerEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil && strings.TrimSpace(env.Data.Content) != "" {
		return *env.Data
	}
	var direct readerResult
	if err := json.Unmarshal(body, &direct); err == nil && strings.TrimSpace(direct.Content) != "" {
		return direct
	}
	return readerResult{Content: string(body)}
}

func truncateForError(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
