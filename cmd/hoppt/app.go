package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/permaevidence/HopPT/config"
	"github.com/permaevidence/HopPT/internal/pipeline"
	"github.com/permaevidence/HopPT/internal/rag"
	"github.com/permaevidence/HopPT/internal/scrape"
	"github.com/permaevidence/HopPT/internal/search"
	"github.com/permaevidence/HopPT/internal/telemetry"
	"github.com/permaevidence/HopPT/provider"
)

// app holds everything a command needs after wiring.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	metrics  *telemetry.Metrics
	closers  []io.Closer
}

// buildApp wires the provider, searcher, scraper and retrieval engine
// from configuration.
func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}

	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("building llm provider: %w", err)
	}

	searcher := search.NewClient(cfg.Search.APIKey, cfg.Search.Endpoint, cfg.Search.Timeout)

	strategy, err := scrape.NewStrategyFromConfig(cfg.Scrape, nil)
	if err != nil {
		return nil, fmt.Errorf("building scrape strategy: %w", err)
	}
	scraper := scrape.NewScraper(strategy, nil)

	engine := rag.NewEngine(rag.Config{
		ChunkTokens:     cfg.RAG.ChunkTokens,
		CharsPerToken:   cfg.RAG.CharsPerToken,
		OverlapFraction: cfg.RAG.OverlapFraction,
		TopK:            cfg.RAG.TopK,
		LangConfidence:  cfg.RAG.LangConfidence,
		EmbeddingModels: cfg.LLM.EmbeddingModels,
	}, prov, prov, nil)

	a := &app{cfg: cfg}

	var metrics *telemetry.Metrics
	var audit *telemetry.Audit
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics()
		if cfg.Telemetry.AuditDir != "" {
			if err := os.MkdirAll(cfg.Telemetry.AuditDir, 0o755); err != nil {
				return nil, fmt.Errorf("creating audit dir: %w", err)
			}
			name := fmt.Sprintf("run-%s.jsonl", time.Now().UTC().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(cfg.Telemetry.AuditDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("opening audit log: %w", err)
			}
			a.closers = append(a.closers, f)
			audit = telemetry.NewAudit(f)
		}
	}
	a.metrics = metrics

	a.pipeline = pipeline.New(prov, searcher, scraper, engine, pipeline.Config{
		ContextBudget:   cfg.RAG.ContextBudget,
		AbsoluteCeiling: cfg.RAG.AbsoluteCeiling,
		Limits: search.Limits{
			MaxOrganicPerQuery: cfg.Search.MaxOrganicPerQuery,
			MaxTotalResults:    cfg.Search.MaxTotalResults,
			ContextBudget:      cfg.RAG.ContextBudget,
		},
	}, metrics, audit, log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags))

	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		c.Close()
	}
}
