package scrape

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/permaevidence/HopPT/internal/helpers"
	"github.com/permaevidence/HopPT/internal/webctx"
)

// Strategy turns one URL into a scraped document. Implementations own
// their concurrency discipline: the local renderer bounds itself with a
// permit pool, the remote reader leaves the limit to the provider.
type Strategy interface {
	Fetch(ctx context.Context, url string) (*webctx.ScrapedDoc, error)
}

// Scraper runs batch scrapes through a strategy. It holds no run state
// itself; each pipeline run opens its own Run session, so concurrent runs
// cannot cancel each other or see each other's cache.
type Scraper struct {
	strategy Strategy
	logger   *log.Logger
}

// NewScraper wraps a strategy.
func NewScraper(strategy Strategy, logger *log.Logger) *Scraper {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCRAPE] ", log.LstdFlags)
	}
	return &Scraper{strategy: strategy, logger: logger}
}

// BeginRun opens a session for one pipeline run.
func (s *Scraper) BeginRun() *Run {
	return &Run{scraper: s, cache: newRunCache()}
}

// Run scopes the URL cache and the cooperative cancellation flag to a
// single pipeline run.
type Run struct {
	scraper   *Scraper
	cache     *runCache
	cancelled atomic.Bool
}

// End clears the session cache; called on success, failure and
// cancellation alike.
func (r *Run) End() {
	r.cache.clear()
}

// Cancel flips the cooperative cancellation flag. In-flight batches stop
// before their next unit of work; the caller discards whatever already
// completed.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
	r.cache.clear()
}

// Cancelled reports whether this run has been cancelled.
func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// ScrapeURLs fans out one task per URL and collects every outcome. A
// failed URL becomes a document carrying an error marker instead of
// aborting its siblings. There is no retry within a batch.
func (r *Run) ScrapeURLs(ctx context.Context, urls []string) []*webctx.ScrapedDoc {
	results := make([]*webctx.ScrapedDoc, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.scrapeOne(ctx, url)
		}()
	}
	wg.Wait()

	out := make([]*webctx.ScrapedDoc, 0, len(results))
	for _, doc := range results {
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out
}

// scrapeOne checks the cancellation flag and the cache before doing any
// work; a strategy failure degrades to an error-marked document.
func (r *Run) scrapeOne(ctx context.Context, url string) *webctx.ScrapedDoc {
	if r.cancelled.Load() || ctx.Err() != nil {
		return nil
	}
	if doc, ok := r.cache.get(url); ok {
		return doc
	}

	doc, err := r.scraper.strategy.Fetch(ctx, url)
	if err != nil {
		r.scraper.logger.Printf("scrape failed for %s: %v", url, err)
		return &webctx.ScrapedDoc{
			URL:    url,
			Source: helpers.Host(url),
			Error:  err.Error(),
		}
	}
	r.cache.put(url, doc)
	return doc
}
