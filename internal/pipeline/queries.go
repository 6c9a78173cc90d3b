package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/permaevidence/HopPT/internal/helpers"
	"github.com/permaevidence/HopPT/provider"
)

const maxGeneratedQueries = 4

const queryGenSystemPrompt = `You turn a conversational question into web search queries.
Reply with strict JSON only, no prose, no code fences:
{"standalone": "<self-contained restatement of the user's question>", "queries": ["<query 1>", "<query 2>"]}
Rules: at most 4 queries, each a short high-signal search string. If the
question needs no web search, return an empty queries array.`

// queryPlan is the outcome of query generation: a standalone restatement
// of the question plus the queries to fan out.
type queryPlan struct {
	Standalone string
	Queries    []string
}

// generateQueries asks the utility model for search queries. It never
// returns an error: malformed output degrades to naive queries, and a
// model that declines to search yields an empty plan.
func (p *Pipeline) generateQueries(ctx context.Context, question string, history []provider.Message) queryPlan {
	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: queryGenSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: question})

	reply, err := p.provider.CompleteUtility(ctx, messages)
	if err != nil {
		p.logger.Printf("query generation call failed, using naive queries: %v", err)
		return queryPlan{Standalone: question, Queries: naiveQueries(question)}
	}

	plan, ok := parseQueryPlan(reply)
	if !ok {
		p.logger.Printf("query generation returned unparseable output, using naive queries")
		return queryPlan{Standalone: question, Queries: naiveQueries(question)}
	}
	if plan.Standalone == "" {
		plan.Standalone = question
	}
	return plan
}

// queryPlanV2 is the current response schema; queryPlanV1 is the older
// queries-only one. V2 is tried first.
type queryPlanV2 struct {
	Standalone string   `json:"standalone"`
	Queries    []string `json:"queries"`
}

type queryPlanV1 struct {
	Queries []string `json:"queries"`
}

func parseQueryPlan(reply string) (queryPlan, bool) {
	obj, err := helpers.ExtractJSONObject(reply)
	if err != nil {
		return queryPlan{}, false
	}

	var v2 queryPlanV2
	if err := json.Unmarshal([]byte(obj), &v2); err == nil && (v2.Standalone != "" || v2.Queries != nil) {
		return queryPlan{
			Standalone: strings.TrimSpace(v2.Standalone),
			Queries:    sanitizeQueries(v2.Queries, nil, maxGeneratedQueries),
		}, true
	}

	var v1 queryPlanV1
	if err := json.Unmarshal([]byte(obj), &v1); err == nil && v1.Queries != nil {
		return queryPlan{Queries: sanitizeQueries(v1.Queries, nil, maxGeneratedQueries)}, true
	}
	return queryPlan{}, false
}

// sanitizeQueries trims, drops empties, dedupes case-insensitively against
// both the used list and itself, and caps the result.
func sanitizeQueries(queries, used []string, limit int) []string {
	seen := make(map[string]struct{}, len(used)+len(queries))
	for _, q := range used {
		seen[strings.ToLower(strings.TrimSpace(q))] = struct{}{}
	}
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// naiveQueries lowercases the question, strips punctuation, keeps tokens
// longer than two characters, and pairs the core terms with a Wikipedia
// site-restricted variant.
func naiveQueries(question string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(question) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) > 2 {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	core := strings.Join(kept, " ")
	return []string{core, fmt.Sprintf("site:wikipedia.org %s", core)}
}
