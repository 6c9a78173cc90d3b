// Package pipeline orchestrates one user turn: query generation, search
// fan-out, the bounded coverage-assessment loop with scraping and
// retrieval compression, size clamping, and the final streaming call.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/permaevidence/HopPT/internal/rag"
	"github.com/permaevidence/HopPT/internal/scrape"
	"github.com/permaevidence/HopPT/internal/search"
	"github.com/permaevidence/HopPT/internal/telemetry"
	"github.com/permaevidence/HopPT/internal/webctx"
	"github.com/permaevidence/HopPT/provider"
)

// maxRounds bounds the coverage-assessment loop regardless of what the
// model keeps asking for.
const maxRounds = 3

// Config tunes a pipeline's budgets.
type Config struct {
	ContextBudget   int
	AbsoluteCeiling int
	Limits          search.Limits
}

func (c Config) withDefaults() Config {
	if c.ContextBudget <= 0 {
		c.ContextBudget = 60_000
	}
	if c.AbsoluteCeiling <= 0 {
		c.AbsoluteCeiling = webctx.AbsoluteCeiling
	}
	if c.Limits.ContextBudget <= 0 {
		c.Limits.ContextBudget = c.ContextBudget
	}
	return c
}

// Pipeline wires the collaborators for a turn. It holds no per-run state;
// each run opens its own scrape session, so one pipeline instance serves
// concurrent conversations.
type Pipeline struct {
	provider provider.Provider
	searcher search.Searcher
	scraper  *scrape.Scraper
	rag      *rag.Engine
	cfg      Config
	metrics  *telemetry.Metrics
	audit    *telemetry.Audit
	logger   *log.Logger
}

// New builds a pipeline. metrics and audit may be nil.
func New(p provider.Provider, searcher search.Searcher, scraper *scrape.Scraper, engine *rag.Engine, cfg Config, metrics *telemetry.Metrics, audit *telemetry.Audit, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		provider: p,
		searcher: searcher,
		scraper:  scraper,
		rag:      engine,
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		audit:    audit,
		logger:   logger,
	}
}

// Run executes one full turn and streams the answer through onDelta.
// Cancellation surfaces as the context's error; every other failure is
// wrapped with the stage that produced it.
func (p *Pipeline) Run(ctx context.Context, question string, history []provider.Message, onStatus StatusFunc, onDelta func(string)) error {
	runID := uuid.NewString()
	started := time.Now()
	rounds := 0
	outcome := "error"
	defer func() {
		p.metrics.ObserveRun(outcome, rounds, time.Since(started))
	}()

	// The scrape session scopes the URL cache and the cooperative
	// cancellation flag to this run; cancelling the context flips the
	// flag so in-flight batches stop early.
	sess := p.scraper.BeginRun()
	defer sess.End()
	stop := context.AfterFunc(ctx, sess.Cancel)
	defer stop()

	p.audit.Event(runID, "run_start", map[string]any{"question_len": len(question), "history_len": len(history)})

	p.emitStatus(onStatus, StatusEvent{Stage: StageGeneratingQueries})
	plan := p.generateQueries(ctx, question, history)
	p.audit.Event(runID, string(StageGeneratingQueries), map[string]any{"queries": plan.Queries})

	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return err
	}

	// No queries means the model judged web search unnecessary; the turn
	// streams directly from history.
	if len(plan.Queries) == 0 {
		p.logger.Printf("run %s: no queries, streaming without web context", runID)
		return p.stream(ctx, runID, question, history, nil, onDelta, &outcome)
	}

	wc, err := search.FanOut(ctx, p.searcher, plan.Queries, p.cfg.Limits)
	p.metrics.ObserveSearch(err == nil)
	if err != nil {
		if ctx.Err() != nil {
			outcome = "cancelled"
			return ctx.Err()
		}
		return fmt.Errorf("search failed: %w", err)
	}
	p.logRound(runID, 0, wc)

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			outcome = "cancelled"
			return err
		}
		rounds = round

		p.emitStatus(onStatus, StatusEvent{Stage: StageAnalyzingResults})
		wc.Clamp(p.cfg.ContextBudget)
		dec := p.assessCoverage(ctx, plan.Standalone, wc)
		p.audit.Event(runID, string(StageAnalyzingResults), map[string]any{
			"round": round, "enough": dec.Enough,
			"scrapes": len(dec.Scrapes), "queries": len(dec.Queries),
		})
		if dec.Enough {
			break
		}
		// An empty sanitized decision stops the loop even when the model
		// asked for more; unmatched URLs must not cause another round.
		if len(dec.Scrapes) == 0 && len(dec.Queries) == 0 {
			p.logger.Printf("run %s round %d: decision empty after sanitization, stopping", runID, round)
			break
		}

		if err := p.refine(ctx, sess, runID, round, plan.Standalone, wc, dec, onStatus); err != nil {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return ctx.Err()
			}
			return err
		}
		p.logRound(runID, round, wc)
	}

	wc.Clamp(p.cfg.ContextBudget)
	if wc.SerializedSize() > p.cfg.AbsoluteCeiling {
		p.metrics.ObserveHardClamp()
		wc.HardClamp(p.cfg.AbsoluteCeiling)
	}
	p.metrics.ObserveContextBytes(wc.SerializedSize())

	return p.stream(ctx, runID, question, history, wc, onDelta, &outcome)
}

// refine runs one round's scrape batch and additional searches, merges
// both into the context, and compresses oversized new documents. Plans
// without a focus of their own fall back to the standalone question for
// retrieval.
func (p *Pipeline) refine(ctx context.Context, sess *scrape.Run, runID string, round int, standalone string, wc *webctx.WebContext, dec Decision, onStatus StatusFunc) error {
	focusByURL := make(map[string]string, len(dec.Scrapes))
	var urls []string
	for _, plan := range dec.Scrapes {
		urls = append(urls, plan.URL)
		focusByURL[cacheKeyLower(plan.URL)] = plan.Focus
	}

	var docs []*webctx.ScrapedDoc
	if len(urls) > 0 {
		p.emitStatus(onStatus, StatusEvent{Stage: StageScraping, URLs: urls})
		docs = sess.ScrapeURLs(ctx, urls)
		for _, doc := range docs {
			p.metrics.ObserveScrape(doc.Error == "")
		}
		p.audit.Event(runID, string(StageScraping), map[string]any{"round": round, "urls": urls, "docs": len(docs)})
	}

	if len(dec.Queries) > 0 {
		more, err := search.FanOut(ctx, p.searcher, dec.Queries, p.cfg.Limits)
		p.metrics.ObserveSearch(err == nil)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		wc.Merge(more)
	}

	wc.MergeScraped(docs)

	if p.rag == nil {
		return nil
	}
	for _, doc := range docs {
		if doc.Error != "" {
			continue
		}
		stored, ok := wc.ScrapedByURL(doc.Key())
		if !ok || !p.rag.ShouldApply(stored) {
			continue
		}
		focus := focusByURL[cacheKeyLower(stored.URL)]
		if err := p.rag.Apply(ctx, stored, focus, standalone); err != nil {
			p.logger.Printf("run %s round %d: retrieval failed for %s, keeping full body: %v", runID, round, stored.URL, err)
			continue
		}
		p.metrics.ObserveRAG()
	}
	return nil
}

// stream clamps nothing further; it assembles the final messages and
// relays deltas from the provider.
func (p *Pipeline) stream(ctx context.Context, runID, question string, history []provider.Message, wc *webctx.WebContext, onDelta func(string), outcome *string) error {
	messages, err := assembleMessages(history, question, wc)
	if err != nil {
		return fmt.Errorf("prompt assembly failed: %w", err)
	}
	if onDelta == nil {
		onDelta = func(string) {}
	}
	if err := p.provider.Stream(ctx, messages, onDelta); err != nil {
		if ctx.Err() != nil {
			*outcome = "cancelled"
			return ctx.Err()
		}
		return fmt.Errorf("completion failed: %w", err)
	}
	*outcome = "ok"
	p.audit.Event(runID, "run_done", nil)
	return nil
}

func (p *Pipeline) logRound(runID string, round int, wc *webctx.WebContext) {
	p.logger.Printf("run %s round %d: %d queries, %d results, %d scraped, %d bytes",
		runID, round, len(wc.QueriesUsed), len(wc.Results), len(wc.Scraped), wc.SerializedSize())
}

func cacheKeyLower(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}
