package scrape

import (
	"fmt"
	"log"

	"github.com/permaevidence/HopPT/config"
)

// NewStrategyFromConfig selects the scraping strategy the configuration
// asks for.
func NewStrategyFromConfig(cfg config.ScrapeConfig, logger *log.Logger) (Strategy, error) {
	switch cfg.Strategy {
	case "", "local":
		return NewLocalStrategy(cfg.RenderTimeout, cfg.MaxRenderers, cfg.UserAgent, logger), nil
	case "reader":
		return NewReaderStrategy(cfg.ReaderEndpoint, cfg.ReaderAPIKey, cfg.ReaderTimeout)
	default:
		return nil, fmt.Errorf("unknown scrape strategy %q", cfg.Strategy)
	}
}
