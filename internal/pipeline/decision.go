package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/permaevidence/HopPT/internal/helpers"
	"github.com/permaevidence/HopPT/internal/webctx"
	"github.com/permaevidence/HopPT/provider"
)

const (
	maxScrapePlans       = 3
	maxAdditionalQueries = 2
)

const coverageSystemPrompt = `You judge whether collected web evidence suffices to answer a question.
Reply with strict JSON only, no prose, no code fences:
{"enough": <bool>, "scrape": [{"url": "<url from results>", "focus": "<what to look for on that page>"}], "additional_queries": ["<query>"]}
Rules: scrape at most 3 URLs, each URL must come from the results you were
given and each needs a non-empty focus; at most 2 additional queries. When
the evidence already answers the question, return {"enough": true}.`

// ScrapePlan is one sanitized scrape instruction: a URL already present in
// the result set and the retrieval focus for that page. Focus may be empty
// only for plans recovered from the legacy links-only field.
type ScrapePlan struct {
	URL   string
	Focus string
}

// Decision is a sanitized coverage assessment.
type Decision struct {
	Enough  bool
	Scrapes []ScrapePlan
	Queries []string
}

// rawDecision mirrors the model's reply before sanitization. Scrape is the
// current schema; ScrapeLinks is the legacy no-focus fallback and is only
// honored when Scrape is absent.
type rawDecision struct {
	Enough            bool             `json:"enough"`
	Scrape            []rawScrapePlan  `json:"scrape"`
	ScrapeLinks       []string         `json:"scrape_links"`
	AdditionalQueries []string         `json:"additional_queries"`
}

type rawScrapePlan struct {
	URL   string `json:"url"`
	Focus string `json:"focus"`
}

// assessCoverage asks the utility model whether the current context
// suffices. Any parse failure resolves to enough=true so malformed output
// stops the loop instead of extending it.
func (p *Pipeline) assessCoverage(ctx context.Context, standalone string, wc *webctx.WebContext) Decision {
	contextJSON, err := json.Marshal(wc)
	if err != nil {
		p.logger.Printf("context serialization failed during assessment: %v", err)
		return Decision{Enough: true}
	}

	messages := []provider.Message{
		{Role: "system", Content: coverageSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nCollected evidence (JSON):\n%s", standalone, contextJSON)},
	}
	reply, err := p.provider.CompleteUtility(ctx, messages)
	if err != nil {
		p.logger.Printf("coverage assessment call failed, stopping refinement: %v", err)
		return Decision{Enough: true}
	}

	raw, ok := parseDecision(reply)
	if !ok {
		p.logger.Printf("coverage assessment returned unparseable output, stopping refinement")
		return Decision{Enough: true}
	}
	return sanitizeDecision(raw, wc)
}

func parseDecision(reply string) (rawDecision, bool) {
	obj, err := helpers.ExtractJSONObject(reply)
	if err != nil {
		return rawDecision{}, false
	}
	var raw rawDecision
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return rawDecision{}, false
	}
	return raw, true
}

// sanitizeDecision turns untrusted model output into a bounded plan:
// scrape URLs must match a normalized link already in the result set,
// deduped by lowercase URL and capped at 3; additional queries are deduped
// case-insensitively against queries already used and capped at 2.
func sanitizeDecision(raw rawDecision, wc *webctx.WebContext) Decision {
	dec := Decision{Enough: raw.Enough}

	plans := raw.Scrape
	if len(plans) == 0 {
		for _, link := range raw.ScrapeLinks {
			plans = append(plans, rawScrapePlan{URL: link})
		}
	} else {
		// The current schema requires a focus per plan.
		filtered := plans[:0]
		for _, plan := range plans {
			if strings.TrimSpace(plan.Focus) != "" {
				filtered = append(filtered, plan)
			}
		}
		plans = filtered
	}

	seen := make(map[string]struct{}, len(plans))
	for _, plan := range plans {
		url := strings.TrimSpace(plan.URL)
		if url == "" {
			continue
		}
		lower := strings.ToLower(url)
		if _, dup := seen[lower]; dup {
			continue
		}
		if !wc.HasLink(helpers.LinkKey(url)) {
			continue
		}
		seen[lower] = struct{}{}
		dec.Scrapes = append(dec.Scrapes, ScrapePlan{URL: url, Focus: strings.TrimSpace(plan.Focus)})
		if len(dec.Scrapes) >= maxScrapePlans {
			break
		}
	}

	dec.Queries = sanitizeQueries(raw.AdditionalQueries, wc.QueriesUsed, maxAdditionalQueries)
	return dec
}
