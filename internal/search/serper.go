package search

import (
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

// ErrMissingAPIKey is returned when a search is attempted without a key.
var ErrMissingAPIKey = errors.New("search api key not configured")

const defaultEndpoint = "https://google.serper.dev/search"

// Client calls a Serper-style search API.
type Client struct {
	APIKey     string
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient builds a search client. endpoint may be empty to use the
// default; timeout zero falls back to the 60s default per call.
func NewClient(apiKey, endpoint string, timeout time.Duration) *Client {
	return &Client{APIKey: apiKey, Endpoint: endpoint, Timeout: timeout}
}

// Response is one decoded search API reply.
type Response struct {
	Organic        []webctx.WebResult
	AnswerBox      map[string]interface{}
	KnowledgeGraph map[string]interface{}
	PeopleAlsoAsk  []webctx.PeopleAlsoAskItem
	TopStories     []webctx.TopStory
}

type rawResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
		Date    string `json:"date"`
	} `json:"organic"`
	AnswerBox      map[string]interface{} `json:"answerBox"`
	KnowledgeGraph map[string]interface{} `json:"knowledgeGraph"`
	PeopleAlsoAsk  []struct {
		Question string `json:"question"`
		Snippet  string `json:"snippet"`
		Link     string `json:"link"`
	} `json:"peopleAlsoAsk"`
	TopStories []struct {
		Title  string `json:"title"`
		Link   string `json:"link"`
		Source string `json:"source"`
		Date   string `json:"date"`
	} `json:"topStories"`
}

// Search runs one query. A missing API key, a non-2xx status and a network
// failure are all hard errors for this call.
func (c *Client) Search(ctx context.Context, query string, num int) (*Response, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"q":           query,
		"num":         num,
		"autocorrect": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(b))
	}

	var raw rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := &Response{
		AnswerBox:      raw.AnswerBox,
		KnowledgeGraph: raw.KnowledgeGraph,
	}
	for _, hit := range raw.Organic {
		if strings.TrimSpace(hit.Link) == "" {
			continue
		}
		out.Organic = append(out.Organic, webctx.WebResult{
			Title:   strings.TrimSpace(hit.Title),
			Snippet: hit.Snippet,
			Link:    hit.Link,
			Source:  helpers.Host(hit.Link),
			Date:    hit.Date,
		})
	}
	for _, q := range raw.PeopleAlsoAsk {
		out.PeopleAlsoAsk = append(out.PeopleAlsoAsk, webctx.PeopleAlsoAskItem{
			Question: q.Question, Snippet: q.Snippet, Link: q.Link,
		})
	}
	for _, s := range raw.TopStories {
		out.TopStories = append(out.TopStories, webctx.TopStory{
			Title: s.Title, Link: s.Link, Source: s.Source, Date: s.Date,
		})
	}
	return out, nil
}
