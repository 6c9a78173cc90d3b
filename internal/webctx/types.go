package webctx

import (
	"encoding/json"
	"strings"

	"github.com/permaevidence/HopPT/internal/helpers"
)

const (
	// MaxResults caps the organic results accumulated across all queries.
	MaxResults = 40

	// SnippetMaxChars caps a single result snippet.
	SnippetMaxChars = 460

	// SectionCap caps peopleAlsoAsk and topStories after concatenation.
	SectionCap = 8
)

// WebResult is one organic search hit.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	Link    string `json:"link"`
	Source  string `json:"source,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Key returns the result's identity: the normalized link, lowercased.
func (r WebResult) Key() string {
	return helpers.LinkKey(r.Link)
}

// RAGChunk is one ranked excerpt of a scraped document. Scores are cosine
// similarities and only comparable within a single document.
type RAGChunk struct {
	Text       string  `json:"text"`
	SourceURL  string  `json:"source_url"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// ScrapedDoc is the scraped content of one URL. Exactly one of Markdown or
// Text is populated depending on the extraction path. Once retrieval has
// been applied the full body is replaced by a short excerpt and RAGChunks
// carries the distilled evidence.
type ScrapedDoc struct {
	URL              string     `json:"url"`
	Source           string     `json:"source,omitempty"`
	Title            string     `json:"title,omitempty"`
	Markdown         string     `json:"markdown,omitempty"`
	Text             string     `json:"text,omitempty"`
	Error            string     `json:"error,omitempty"`
	RAGChunks        []RAGChunk `json:"rag_chunks,omitempty"`
	RAGQuery         string     `json:"rag_query,omitempty"`
	RAGQueryOriginal string     `json:"rag_query_original,omitempty"`
	RAGDocLang       string     `json:"rag_doc_lang,omitempty"`
	RAGQueryLang     string     `json:"rag_query_lang,omitempty"`
}

// Key returns the document's identity: its URL, lowercased.
func (d *ScrapedDoc) Key() string {
	return strings.ToLower(strings.TrimSpace(d.URL))
}

// Body returns whichever of Markdown/Text is populated.
func (d *ScrapedDoc) Body() string {
	if d.Markdown != "" {
		return d.Markdown
	}
	return d.Text
}

// SetBody overwrites whichever body field is populated.
func (d *ScrapedDoc) SetBody(body string) {
	if d.Markdown != "" {
		d.Markdown = body
		return
	}
	d.Text = body
}

// IsMarkdown reports whether the document carries markdown rather than
// plain text.
func (d *ScrapedDoc) IsMarkdown() bool { return d.Markdown != "" }

// PeopleAlsoAskItem is one related-question entry from the search API.
type PeopleAlsoAskItem struct {
	Question string `json:"question"`
	Snippet  string `json:"snippet,omitempty"`
	Link     string `json:"link,omitempty"`
}

// TopStory is one news entry from the search API.
type TopStory struct {
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source,omitempty"`
	Date   string `json:"date,omitempty"`
}

// WebContext accumulates everything gathered for one user turn. It is
// created empty per turn, mutated in place by the sequential refinement
// loop, and discarded when the turn ends.
type WebContext struct {
	QueriesUsed    []string               `json:"queries_used,omitempty"`
	Results        []WebResult            `json:"results,omitempty"`
	AnswerBox      map[string]interface{} `json:"answer_box,omitempty"`
	KnowledgeGraph map[string]interface{} `json:"knowledge_graph,omitempty"`
	PeopleAlsoAsk  []PeopleAlsoAskItem    `json:"people_also_ask,omitempty"`
	TopStories     []TopStory             `json:"top_stories,omitempty"`
	Scraped        []*ScrapedDoc          `json:"scraped,omitempty"`
}

// Empty reports whether nothing was gathered for this turn.
func (c *WebContext) Empty() bool {
	return len(c.QueriesUsed) == 0 && len(c.Results) == 0 && c.AnswerBox == nil &&
		c.KnowledgeGraph == nil && len(c.PeopleAlsoAsk) == 0 &&
		len(c.TopStories) == 0 && len(c.Scraped) == 0
}

// SerializedSize returns the byte length of the context's JSON encoding.
func (c *WebContext) SerializedSize() int {
	data, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return len(data)
}

// HasLink reports whether a result with the given normalized link key is
// already present.
func (c *WebContext) HasLink(key string) bool {
	for _, r := range c.Results {
		if r.Key() == key {
			return true
		}
	}
	return false
}

// FindResult returns the stored result matching the normalized link key.
func (c *WebContext) FindResult(key string) (WebResult, bool) {
	for _, r := range c.Results {
		if r.Key() == key {
			return r, true
		}
	}
	return WebResult{}, false
}

// ScrapedByURL returns the scraped document for a lowercased URL key.
func (c *WebContext) ScrapedByURL(key string) (*ScrapedDoc, bool) {
	for _, d := range c.Scraped {
		if d.Key() == key {
			return d, true
		}
	}
	return nil, false
}
