package rag

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve"
)

// rankByKeyword scores chunks against the focus query with a memory-only
// full-text index. It is the fallback ranking path when no embedding model
// is available; returned scores align with the chunk slice, unmatched
// chunks score zero.
func rankByKeyword(chunks []string, query string) ([]float64, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	defer index.Close()

	for i, chunk := range chunks {
		if err := index.Index(strconv.Itoa(i), map[string]string{"text": chunk}); err != nil {
			return nil, fmt.Errorf("failed to index chunk %d: %w", i, err)
		}
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = len(chunks)
	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	scores := make([]float64, len(chunks))
	for _, hit := range res.Hits {
		if idx, err := strconv.Atoi(hit.ID); err == nil && idx >= 0 && idx < len(chunks) {
			scores[idx] = hit.Score
		}
	}
	return scores, nil
}
