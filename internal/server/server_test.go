package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/permaevidence/HopPT/internal/history"
	"github.com/permaevidence/HopPT/internal/pipeline"
	"github.com/permaevidence/HopPT/internal/scrape"
	"github.com/permaevidence/HopPT/internal/search"
	"github.com/permaevidence/HopPT/internal/webctx"
	"github.com/permaevidence/HopPT/provider"
)

type fakeProvider struct{}

func (fakeProvider) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	return "", nil
}

func (fakeProvider) CompleteUtility(ctx context.Context, messages []provider.Message) (string, error) {
	if strings.Contains(messages[0].Content, "web search queries") {
		return `{"standalone":"test question","queries":["test query"]}`, nil
	}
	return `{"enough":true}`, nil
}

func (fakeProvider) Stream(ctx context.Context, messages []provider.Message, onDelta func(string)) error {
	onDelta("Paris")
	onDelta(" is the capital.")
	return nil
}

func (fakeProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (fakeProvider) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return text, nil
}

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, query string, num int) (*search.Response, error) {
	return &search.Response{Organic: []webctx.WebResult{{
		Title: "Hit", Link: "https://example.com/hit", Source: "example.com",
	}}}, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, url string) (*webctx.ScrapedDoc, error) {
	return &webctx.ScrapedDoc{URL: url, Text: "body"}, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, history.Store) {
	t.Helper()
	hist := history.NewMemoryStore()
	p := pipeline.New(fakeProvider{}, fakeSearcher{}, scrape.NewScraper(fakeFetcher{}, nil), nil, pipeline.Config{}, nil, nil, nil)
	s := New(p, hist, nil, nil)
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return s, ts, hist
}

func TestHealthz(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChatStreamsAndRecordsHistory(t *testing.T) {
	_, ts, hist := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"conversation_id":"c1","message":"What is the capital of France?"}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("content type = %q", got)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	text := string(body)
	for _, want := range []string{"event: status", "event: delta", "event: done", "Paris"} {
		if !strings.Contains(text, want) {
			t.Fatalf("stream missing %q:\n%s", want, text)
		}
	}

	msgs, err := hist.Messages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("history roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "Paris is the capital." {
		t.Fatalf("assistant content = %q", msgs[1].Content)
	}
}

func TestChatValidation(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"conversation_id":"","message":"hi"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConversationEndpoints(t *testing.T) {
	_, ts, hist := newTestServer(t)
	if err := hist.Append(context.Background(), "c2", history.Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/conversations/c2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var msgs []history.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("msgs = %+v", msgs)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/conversations/c2", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}
	remaining, _ := hist.Messages(context.Background(), "c2")
	if len(remaining) != 0 {
		t.Fatalf("conversation not cleared: %+v", remaining)
	}
}

func TestCancelWithoutActiveRun(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/conversations/none/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["cancelled"] {
		t.Fatal("no run should be active")
	}
}
