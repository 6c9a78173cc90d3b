package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/permaevidence/HopPT/internal/webctx"
)

// Limits tunes the fan-out's caps and the byte budget applied to the
// aggregated context before it is returned.
type Limits struct {
	MaxOrganicPerQuery int
	MaxTotalResults    int
	ContextBudget      int
}

func (l Limits) withDefaults() Limits {
	if l.MaxOrganicPerQuery <= 0 {
		l.MaxOrganicPerQuery = 10
	}
	if l.MaxTotalResults <= 0 {
		l.MaxTotalResults = webctx.MaxResults
	}
	return l
}

// Searcher is the single capability the fan-out needs; tests substitute it.
type Searcher interface {
	Search(ctx context.Context, query string, num int) (*Response, error)
}

// FanOut dispatches one search per query in parallel and aggregates the
// replies into a fresh WebContext. The group has all-succeed semantics: any
// individual failure cancels the siblings and fails the whole fan-out, with
// no partial aggregation. Successful replies merge deterministically in
// query order, so completion order never matters.
func FanOut(ctx context.Context, searcher Searcher, queries []string, limits Limits) (*webctx.WebContext, error) {
	limits = limits.withDefaults()

	out := &webctx.WebContext{}
	out.MergeQueries(queries)
	if len(out.QueriesUsed) == 0 {
		return out, nil
	}

	responses := make([]*Response, len(out.QueriesUsed))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range out.QueriesUsed {
		g.Go(func() error {
			resp, err := searcher.Search(gctx, query, limits.MaxOrganicPerQuery)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, resp := range responses {
		if resp == nil {
			continue
		}
		added := 0
		for _, r := range resp.Organic {
			if added >= limits.MaxOrganicPerQuery || len(out.Results) >= limits.MaxTotalResults {
				break
			}
			if out.AddResult(r) {
				added++
			}
		}
		if out.AnswerBox == nil {
			out.AnswerBox = resp.AnswerBox
		}
		if out.KnowledgeGraph == nil {
			out.KnowledgeGraph = resp.KnowledgeGraph
		}
		out.PeopleAlsoAsk = append(out.PeopleAlsoAsk, resp.PeopleAlsoAsk...)
		out.TopStories = append(out.TopStories, resp.TopStories...)
	}
	if len(out.PeopleAlsoAsk) > webctx.SectionCap {
		out.PeopleAlsoAsk = out.PeopleAlsoAsk[:webctx.SectionCap]
	}
	if len(out.TopStories) > webctx.SectionCap {
		out.TopStories = out.TopStories[:webctx.SectionCap]
	}

	if limits.ContextBudget > 0 {
		out.Clamp(limits.ContextBudget)
	}
	return out, nil
}
