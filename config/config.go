package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the web-context pipeline.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	RAG       RAGConfig       `mapstructure:"rag"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the model-provider configuration.
type LLMConfig struct {
	APIKey          string                    `mapstructure:"api_key"`
	BaseURL         string                    `mapstructure:"base_url"`
	ChatModel       string                    `mapstructure:"chat_model"`
	UtilityModel    string                    `mapstructure:"utility_model"`
	EmbeddingModels map[string]string         `mapstructure:"embedding_models"` // ISO 639-1 code -> model name
	Temperature     float64                   `mapstructure:"temperature"`
	MaxTokens       int                       `mapstructure:"max_tokens"`
	Timeout         time.Duration             `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if strings.TrimSpace(l.ChatModel) == "" {
		return fmt.Errorf("llm.chat_model is required")
	}
	return nil
}

// SearchConfig contains the search API settings.
type SearchConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	Endpoint           string        `mapstructure:"endpoint"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxQueries         int           `mapstructure:"max_queries"`
	MaxOrganicPerQuery int           `mapstructure:"max_organic_per_query"`
	MaxTotalResults    int           `mapstructure:"max_total_results"`
}

// ScrapeConfig selects and tunes the scraping strategy.
type ScrapeConfig struct {
	Strategy       string        `mapstructure:"strategy"` // "local" or "reader"
	ReaderEndpoint string        `mapstructure:"reader_endpoint"`
	ReaderAPIKey   string        `mapstructure:"reader_api_key"`
	ReaderTimeout  time.Duration `mapstructure:"reader_timeout"`
	RenderTimeout  time.Duration `mapstructure:"render_timeout"`
	MaxRenderers   int           `mapstructure:"max_renderers"`
	UserAgent      string        `mapstructure:"user_agent"`
}

func (s ScrapeConfig) Validate() error {
	switch s.Strategy {
	case "", "local":
	case "reader":
		if strings.TrimSpace(s.ReaderEndpoint) == "" {
			return fmt.Errorf("scrape.reader_endpoint required when strategy is reader")
		}
	default:
		return fmt.Errorf("scrape.strategy must be local or reader, got %q", s.Strategy)
	}
	return nil
}

// RAGConfig tunes chunking and retrieval.
type RAGConfig struct {
	ChunkTokens     int     `mapstructure:"chunk_tokens"`
	CharsPerToken   int     `mapstructure:"chars_per_token"`
	OverlapFraction float64 `mapstructure:"overlap_fraction"`
	TopK            int     `mapstructure:"top_k"`
	LangConfidence  float64 `mapstructure:"lang_confidence"`
	ContextBudget   int     `mapstructure:"context_budget"`   // serialized byte budget per checkpoint
	AbsoluteCeiling int     `mapstructure:"absolute_ceiling"` // last-resort ceiling before prompt assembly
}

// HistoryConfig selects the conversation-history backend.
type HistoryConfig struct {
	Backend string      `mapstructure:"backend"` // "inmemory" or "redis"
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains redis connection settings.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

func (h HistoryConfig) Validate() error {
	switch h.Backend {
	case "", "inmemory":
		return nil
	case "redis":
		if strings.TrimSpace(h.Redis.Host) == "" {
			return fmt.Errorf("history.redis.host required when backend is redis")
		}
		return nil
	default:
		return fmt.Errorf("history.backend must be inmemory or redis, got %q", h.Backend)
	}
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AuditDir string `mapstructure:"audit_dir"`
}

// LoadConfig loads config from file, falling back to defaults and HOPPT_*
// environment variables.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.default_timeout", "5m")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("search.endpoint", "https://google.serper.dev/search")
	viper.SetDefault("search.timeout", "60s")
	viper.SetDefault("search.max_queries", 4)
	viper.SetDefault("search.max_organic_per_query", 10)
	viper.SetDefault("search.max_total_results", 40)
	viper.SetDefault("scrape.strategy", "local")
	viper.SetDefault("scrape.reader_timeout", "90s")
	viper.SetDefault("scrape.render_timeout", "45s")
	viper.SetDefault("scrape.max_renderers", 3)
	viper.SetDefault("rag.chunk_tokens", 300)
	viper.SetDefault("rag.chars_per_token", 4)
	viper.SetDefault("rag.overlap_fraction", 0.15)
	viper.SetDefault("rag.top_k", 3)
	viper.SetDefault("rag.lang_confidence", 0.6)
	viper.SetDefault("rag.context_budget", 60000)
	viper.SetDefault("rag.absolute_ceiling", 250000)
	viper.SetDefault("history.backend", "inmemory")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HOPPT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Scrape.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.History.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
