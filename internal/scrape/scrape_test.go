package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/permaevidence/HopPT/internal/webctx"
)

// fakeStrategy returns canned documents and records every fetch.
type fakeStrategy struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]error
	delay   time.Duration
}

func (f *fakeStrategy) Fetch(ctx context.Context, url string) (*webctx.ScrapedDoc, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	return &webctx.ScrapedDoc{URL: url, Title: "doc " + url, Text: "content of " + url}, nil
}

func (f *fakeStrategy) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func TestScrapeURLsCollectsAllOutcomes(t *testing.T) {
	strat := &fakeStrategy{}
	run := NewScraper(strat, nil).BeginRun()
	defer run.End()

	urls := []string{"https://a.example/one", "https://b.example/two", "https://c.example/three"}
	docs := run.ScrapeURLs(context.Background(), urls)
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	seen := map[string]bool{}
	for _, d := range docs {
		seen[d.URL] = true
		if d.Error != "" {
			t.Fatalf("unexpected error on %s: %s", d.URL, d.Error)
		}
	}
	for _, u := range urls {
		if !seen[u] {
			t.Fatalf("missing doc for %s", u)
		}
	}
}

func TestScrapeURLsFailureDegradesToErrorDoc(t *testing.T) {
	strat := &fakeStrategy{fail: map[string]error{
		"https://bad.example/x": errors.New("render failed"),
	}}
	run := NewScraper(strat, nil).BeginRun()
	defer run.End()

	docs := run.ScrapeURLs(context.Background(), []string{
		"https://good.example/a",
		"https://bad.example/x",
	})
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	var bad *webctx.ScrapedDoc
	for _, d := range docs {
		if d.URL == "https://bad.example/x" {
			bad = d
		}
	}
	if bad == nil {
		t.Fatal("failed URL should still yield a document")
	}
	if bad.Error == "" || bad.Body() != "" {
		t.Fatalf("failed doc should carry an error marker and no body, got error=%q body=%q", bad.Error, bad.Body())
	}
	if bad.Source != "bad.example" {
		t.Fatalf("source = %q, want bad.example", bad.Source)
	}
}

func TestScrapeCacheSkipsRepeatFetches(t *testing.T) {
	strat := &fakeStrategy{}
	s := NewScraper(strat, nil)
	run := s.BeginRun()

	url := "https://a.example/page"
	run.ScrapeURLs(context.Background(), []string{url})
	run.ScrapeURLs(context.Background(), []string{url, "https://a.example/PAGE"})
	if got := strat.fetchCount(); got != 1 {
		t.Fatalf("expected 1 fetch for repeated URL, got %d", got)
	}

	// A new run starts cold.
	run.End()
	next := s.BeginRun()
	next.ScrapeURLs(context.Background(), []string{url})
	if got := strat.fetchCount(); got != 2 {
		t.Fatalf("expected refetch after run boundary, got %d fetches", got)
	}
}

func TestScrapeErrorDocsAreNotCached(t *testing.T) {
	strat := &fakeStrategy{fail: map[string]error{
		"https://flaky.example/x": errors.New("timeout"),
	}}
	run := NewScraper(strat, nil).BeginRun()
	defer run.End()

	url := "https://flaky.example/x"
	run.ScrapeURLs(context.Background(), []string{url})
	strat.mu.Lock()
	delete(strat.fail, url)
	strat.mu.Unlock()
	docs := run.ScrapeURLs(context.Background(), []string{url})
	if got := strat.fetchCount(); got != 2 {
		t.Fatalf("failed fetch should be retried on the next request, got %d fetches", got)
	}
	if docs[0].Error != "" {
		t.Fatalf("second attempt should succeed, got error %q", docs[0].Error)
	}
}

func TestScrapeCancelStopsNewWork(t *testing.T) {
	strat := &fakeStrategy{}
	run := NewScraper(strat, nil).BeginRun()
	run.Cancel()

	docs := run.ScrapeURLs(context.Background(), []string{"https://a.example/one"})
	if len(docs) != 0 {
		t.Fatalf("cancelled run should return no docs, got %d", len(docs))
	}
	if strat.fetchCount() != 0 {
		t.Fatal("cancelled run should not fetch")
	}
	if !run.Cancelled() {
		t.Fatal("Cancelled() should report true after Cancel()")
	}
}

// Runs are independent sessions: cancelling one must not stop work or
// clear the cache of another run on the same scraper.
func TestScrapeCancelIsScopedToOneRun(t *testing.T) {
	strat := &fakeStrategy{}
	s := NewScraper(strat, nil)

	a := s.BeginRun()
	b := s.BeginRun()
	defer b.End()

	url := "https://shared.example/page"
	b.ScrapeURLs(context.Background(), []string{url})
	a.Cancel()

	docs := b.ScrapeURLs(context.Background(), []string{url, "https://other.example/q"})
	if len(docs) != 2 {
		t.Fatalf("sibling run should keep working after the other is cancelled, got %d docs", len(docs))
	}
	// The cached URL must not be refetched: one fetch for it plus one for
	// the new URL.
	if got := strat.fetchCount(); got != 2 {
		t.Fatalf("cancelling run A must not clear run B's cache, got %d fetches", got)
	}
	if b.Cancelled() {
		t.Fatal("run B must not observe run A's cancellation")
	}
}

// errTransport fails every request so tests never reach the network.
type errTransport struct{}

func (errTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("no network in tests")
}

func TestLocalStrategyPermitPoolBoundsConcurrency(t *testing.T) {
	const pool = 3
	const urls = 5

	strat := NewLocalStrategy(10*time.Second, pool, "", nil)
	strat.httpClient = &http.Client{Transport: errTransport{}}

	var active, peak, total int32
	strat.renderHTML = func(ctx context.Context, url string) (string, error) {
		cur := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&total, 1)
		return "<html><body><p>stub</p></body></html>", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < urls; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Extraction quality is irrelevant here; only the permit
			// pool is under test.
			_, _ = strat.Fetch(context.Background(), fmt.Sprintf("https://example.com/page-%d", n))
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&total); got != urls {
		t.Fatalf("expected %d renders, got %d", urls, got)
	}
	if got := atomic.LoadInt32(&peak); got > pool {
		t.Fatalf("renderer concurrency peaked at %d, pool allows %d", got, pool)
	}
}

func TestLocalStrategyPDFDetectionByExtension(t *testing.T) {
	strat := NewLocalStrategy(time.Second, 1, "", nil)
	strat.httpClient = &http.Client{Transport: errTransport{}}

	if !strat.isPDF(context.Background(), "https://example.com/paper.PDF") {
		t.Fatal("extension check should be case-insensitive")
	}
	if strat.isPDF(context.Background(), "https://example.com/article") {
		t.Fatal("sniff failure should fall back to non-PDF")
	}
}

func TestReaderStrategyRequiresEndpoint(t *testing.T) {
	if _, err := NewReaderStrategy("  ", "", 0); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestDecodeReaderBodyShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"direct", `{"url":"u","title":"t","content":"# Hello"}`, "# Hello"},
		{"enveloped", `{"data":{"url":"u","title":"t","content":"# Wrapped"}}`, "# Wrapped"},
		{"raw", "# Just markdown\n\nBody.", "# Just markdown\n\nBody."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeReaderBody([]byte(tc.body))
			if got.Content != tc.want {
				t.Fatalf("content = %q, want %q", got.Content, tc.want)
			}
		})
	}
}
