package rag

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/permaevidence/HopPT/internal/helpers"
	"github.com/permaevidence/HopPT/internal/webctx"
)

// Embedder is the vector capability the engine needs; the LLM provider
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Translator renders a focus query into the document's language for
// cross-lingual retrieval.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Config tunes chunking and retrieval.
type Config struct {
	ChunkTokens     int
	CharsPerToken   int
	OverlapFraction float64
	TopK            int
	LangConfidence  float64

	// EmbeddingModels maps lowercased ISO 639-1 codes to embedding model
	// names. DefaultLang picks the fallback entry; "any available" means
	// the first entry in sorted key order.
	EmbeddingModels map[string]string
	DefaultLang     string
}

func (c Config) withDefaults() Config {
	if c.ChunkTokens <= 0 {
		c.ChunkTokens = 300
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = 4
	}
	if c.OverlapFraction <= 0 || c.OverlapFraction >= 1 {
		c.OverlapFraction = 0.15
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.LangConfidence <= 0 {
		c.LangConfidence = 0.60
	}
	if c.DefaultLang == "" {
		c.DefaultLang = "en"
	}
	return c
}

// chunkChars is the window size in characters.
func (c Config) chunkChars() int { return c.ChunkTokens * c.CharsPerToken }

// triggerChars is the body length at which chunked retrieval replaces
// whole-document use: below it, top-K chunks would cover the document
// anyway and chunking gains nothing.
func (c Config) triggerChars() int { return c.chunkChars() * c.TopK }

// Engine distills long scraped documents into a few relevant excerpts.
type Engine struct {
	cfg        Config
	embedder   Embedder
	translator Translator
	logger     *log.Logger
}

// NewEngine creates a retrieval engine. embedder and translator may be nil;
// the engine then falls back to keyword ranking and untranslated queries.
func NewEngine(cfg Config, embedder Embedder, translator Translator, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RAG] ", log.LstdFlags)
	}
	return &Engine{cfg: cfg.withDefaults(), embedder: embedder, translator: translator, logger: logger}
}

// ShouldApply reports whether a document's body is long enough for chunked
// retrieval; shorter documents are used whole.
func (e *Engine) ShouldApply(doc *webctx.ScrapedDoc) bool {
	return doc != nil && len(doc.Body()) >= e.cfg.triggerChars()
}

// Apply chunks the document, ranks the chunks against the focus query and
// replaces the full body with a short excerpt plus the top-K chunks as
// evidence. The focus falls back to fallbackQuery when empty. Apply never
// leaves the document worse off: on ranking failure it returns the error
// and leaves the body untouched.
func (e *Engine) Apply(ctx context.Context, doc *webctx.ScrapedDoc, focus, fallbackQuery string) error {
	if doc == nil {
		return nil
	}
	body := doc.Body()
	if body == "" {
		return nil
	}
	focus = strings.TrimSpace(focus)
	if focus == "" {
		focus = strings.TrimSpace(fallbackQuery)
	}
	if focus == "" {
		return fmt.Errorf("no focus query for %s", doc.URL)
	}

	size := e.cfg.chunkChars()
	overlap := int(float64(size) * e.cfg.OverlapFraction)
	chunks := ChunkText(body, size, overlap)
	if len(chunks) == 0 {
		return nil
	}

	docLang, docConf := DetectLanguage(body)
	queryLang, queryConf := DetectLanguage(focus)

	scoringQuery := focus
	if docLang != "" && queryLang != "" && docLang != queryLang &&
		docConf >= e.cfg.LangConfidence && queryConf >= e.cfg.LangConfidence &&
		e.translator != nil {
		translated, err := e.translator.Translate(ctx, focus, docLang)
		if err != nil {
			e.logger.Printf("translation of focus query to %s failed, keeping original: %v", docLang, err)
		} else if translated != "" {
			scoringQuery = translated
		}
	}

	scores, err := e.scoreChunks(ctx, chunks, scoringQuery, docLang, doc.IsMarkdown())
	if err != nil {
		return err
	}

	ranked := make([]webctx.RAGChunk, len(chunks))
	for i, chunk := range chunks {
		ranked[i] = webctx.RAGChunk{
			Text:       chunk,
			SourceURL:  doc.URL,
			ChunkIndex: i,
			Score:      scores[i],
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > e.cfg.TopK {
		ranked = ranked[:e.cfg.TopK]
	}

	excerpt := body
	if limit := min(len(body)/8, size); limit > 0 && len(excerpt) > limit {
		excerpt = helpers.TruncateBytes(excerpt, limit)
	}

	doc.RAGChunks = ranked
	doc.RAGQuery = scoringQuery
	doc.RAGQueryOriginal = focus
	doc.RAGDocLang = docLang
	doc.RAGQueryLang = queryLang
	doc.SetBody(excerpt)
	return nil
}

// scoreChunks returns one score per chunk. Embedding-based cosine ranking
// when a model is available, keyword ranking otherwise. Markdown syntax is
// stripped from both sides before embedding only; the evidence payload is
// always the original chunk text.
func (e *Engine) scoreChunks(ctx context.Context, chunks []string, query, docLang string, isMarkdown bool) ([]float64, error) {
	model := e.pickEmbeddingModel(docLang)
	if e.embedder == nil || model == "" {
		return rankByKeyword(chunks, query)
	}

	texts := make([]string, 0, len(chunks)+1)
	if isMarkdown {
		texts = append(texts, StripMarkdown(query))
		for _, chunk := range chunks {
			texts = append(texts, StripMarkdown(chunk))
		}
	} else {
		texts = append(texts, query)
		texts = append(texts, chunks...)
	}

	vecs, err := e.embedder.Embed(ctx, model, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vecs) != len(chunks)+1 {
		return nil, fmt.Errorf("embedding returned %d vectors, want %d", len(vecs), len(chunks)+1)
	}

	queryVec := vecs[0]
	scores := make([]float64, len(chunks))
	for i := range chunks {
		scores[i] = Cosine(vecs[i+1], queryVec)
	}
	return scores, nil
}

// pickEmbeddingModel prefers a model matching the document language, then
// the default language, then any registered model in sorted key order.
func (e *Engine) pickEmbeddingModel(docLang string) string {
	if len(e.cfg.EmbeddingModels) == 0 {
		return ""
	}
	if model, ok := e.cfg.EmbeddingModels[docLang]; ok {
		return model
	}
	if model, ok := e.cfg.EmbeddingModels[e.cfg.DefaultLang]; ok {
		return model
	}
	keys := make([]string, 0, len(e.cfg.EmbeddingModels))
	for k := range e.cfg.EmbeddingModels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return e.cfg.EmbeddingModels[keys[0]]
}
