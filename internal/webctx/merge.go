package webctx

import (
	"strings"

	"github.com/permaevidence/HopPT/internal/helpers"
)

// AddResult appends a result unless its normalized link is already present
// or the overall cap is reached. The snippet is truncated to its limit on
// the way in. Reports whether the result was stored.
func (c *WebContext) AddResult(r WebResult) bool {
	if strings.TrimSpace(r.Link) == "" {
		return false
	}
	if len(c.Results) >= MaxResults {
		return false
	}
	key := r.Key()
	if c.HasLink(key) {
		return false
	}
	r.Snippet = helpers.TruncateBytes(r.Snippet, SnippetMaxChars)
	c.Results = append(c.Results, r)
	return true
}

// MergeQueries appends queries not already used, compared
// case-insensitively, preserving order.
func (c *WebContext) MergeQueries(queries []string) {
	seen := make(map[string]struct{}, len(c.QueriesUsed))
	for _, q := range c.QueriesUsed {
		seen[strings.ToLower(q)] = struct{}{}
	}
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		lower := strings.ToLower(q)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		c.QueriesUsed = append(c.QueriesUsed, q)
	}
}

// MergeScraped adds documents not already present, keyed by lowercased URL,
// keeping the first occurrence.
func (c *WebContext) MergeScraped(docs []*ScrapedDoc) {
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.URL) == "" {
			continue
		}
		if _, ok := c.ScrapedByURL(doc.Key()); ok {
			continue
		}
		c.Scraped = append(c.Scraped, doc)
	}
}

// Merge folds another context into this one: queries and results dedup
// under the usual rules, the first non-nil answer box and knowledge graph
// win, and the auxiliary sections accumulate up to their caps.
func (c *WebContext) Merge(other *WebContext) {
	if other == nil {
		return
	}
	c.MergeQueries(other.QueriesUsed)
	for _, r := range other.Results {
		c.AddResult(r)
	}
	if c.AnswerBox == nil {
		c.AnswerBox = other.AnswerBox
	}
	if c.KnowledgeGraph == nil {
		c.KnowledgeGraph = other.KnowledgeGraph
	}
	c.PeopleAlsoAsk = append(c.PeopleAlsoAsk, other.PeopleAlsoAsk...)
	if len(c.PeopleAlsoAsk) > SectionCap {
		c.PeopleAlsoAsk = c.PeopleAlsoAsk[:SectionCap]
	}
	c.TopStories = append(c.TopStories, other.TopStories...)
	if len(c.TopStories) > SectionCap {
		c.TopStories = c.TopStories[:SectionCap]
	}
	c.MergeScraped(other.Scraped)
}
