package webctx

import "github.com/permaevidence/HopPT/internal/helpers"

const (
	// AbsoluteCeiling is the last-resort serialized size bound applied
	// right before prompt assembly.
	AbsoluteCeiling = 250_000

	// hardBodyLimit is the per-document body truncation used by the
	// last-resort clamp.
	hardBodyLimit = 2000

	clampResultsFirst  = 8
	clampResultsSecond = 5
)

// Clamp reduces the context's serialized size until it fits the byte budget
// or every reduction step is exhausted, in strict priority order:
//
//  1. drop the raw body of any scraped doc that already carries RAG chunks
//     (the chunks are the compressed evidence, the body is redundant)
//  2. truncate results to 8
//  3. drop answer box, people-also-ask and top stories (the knowledge graph
//     and scraped docs survive)
//  4. truncate results to 5
//
// Scraped content is never dropped here; evidence density wins over result
// breadth. Clamping an already-clamped context with the same budget is a
// no-op.
func (c *WebContext) Clamp(budget int) {
	if budget <= 0 || c.SerializedSize() <= budget {
		return
	}

	for _, doc := range c.Scraped {
		if len(doc.RAGChunks) > 0 {
			doc.Markdown = ""
			doc.Text = ""
		}
	}
	if c.SerializedSize() <= budget {
		return
	}

	if len(c.Results) > clampResultsFirst {
		c.Results = c.Results[:clampResultsFirst]
	}
	if c.SerializedSize() <= budget {
		return
	}

	c.AnswerBox = nil
	c.PeopleAlsoAsk = nil
	c.TopStories = nil
	if c.SerializedSize() <= budget {
		return
	}

	if len(c.Results) > clampResultsSecond {
		c.Results = c.Results[:clampResultsSecond]
	}
}

// HardClamp is the safety valve applied immediately before final prompt
// assembly: when the fully-refined context still exceeds the ceiling, every
// scraped body is truncated outright.
func (c *WebContext) HardClamp(ceiling int) {
	if ceiling <= 0 {
		ceiling = AbsoluteCeiling
	}
	if c.SerializedSize() <= ceiling {
		return
	}
	for _, doc := range c.Scraped {
		doc.Markdown = helpers.TruncateBytes(doc.Markdown, hardBodyLimit)
		doc.Text = helpers.TruncateBytes(doc.Text, hardBodyLimit)
	}
}
