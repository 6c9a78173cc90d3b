package scrape

import (
	"strings"
	"sync"

	"github.com/permaevidence/HopPT/internal/webctx"
)

// runCache remembers documents scraped earlier in the same pipeline run so
// a URL is never fetched twice. It lives for exactly one run: the pipeline
// clears it at run start and again at run end, whether the run succeeded,
// failed or was cancelled. All access goes through its methods; the map is
// never exposed.
type runCache struct {
	mu   sync.Mutex
	docs map[string]*webctx.ScrapedDoc
}

func newRunCache() *runCache {
	return &runCache{docs: make(map[string]*webctx.ScrapedDoc)}
}

func cacheKey(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

func (c *runCache) get(url string) (*webctx.ScrapedDoc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[cacheKey(url)]
	return doc, ok
}

func (c *runCache) put(url string, doc *webctx.ScrapedDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[cacheKey(url)] = doc
}

func (c *runCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]*webctx.ScrapedDoc)
}

func (c *runCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}
