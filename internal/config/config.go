// Package config loads grant-verifier settings from config.yaml and
// GRANTS_-prefixed environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Research providers.
const (
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
	ProviderOpenAI     = "openai"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Probe      ProbeConfig      `yaml:"probe" mapstructure:"probe"`
	Trust      TrustConfig      `yaml:"trust" mapstructure:"trust"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	BaseURL       string   `yaml:"base_url" mapstructure:"base_url"`
	Model         string   `yaml:"model" mapstructure:"model"`
	DomainFilter  []string `yaml:"domain_filter" mapstructure:"domain_filter"`
	RecencyFilter string   `yaml:"recency_filter" mapstructure:"recency_filter"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ResearchConfig configures the cross-reference phase.
type ResearchConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxSearches      int64  `yaml:"max_searches" mapstructure:"max_searches"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ProbeConfig configures the official URL fetch.
type ProbeConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// TrustConfig points at an optional YAML override of the domain tables.
type TrustConfig struct {
	TablesPath string `yaml:"tables_path" mapstructure:"tables_path"`
}

// BatchConfig configures batch verification.
type BatchConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Limit         int     `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GRANTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.recency_filter", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-search-preview")
	v.SetDefault("research.provider", ProviderAnthropic)
	v.SetDefault("research.timeout_secs", 90)
	v.SetDefault("research.max_tokens", 4096)
	v.SetDefault("research.max_searches", 5)
	v.SetDefault("research.breaker_threshold", 0)
	v.SetDefault("research.breaker_reset_secs", 60)
	v.SetDefault("probe.timeout_secs", 12)
	v.SetDefault("probe.user_agent", "")
	v.SetDefault("probe.max_body_bytes", 2<<20)
	v.SetDefault("trust.tables_path", "")
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.rate_per_second", 1.0)
	v.SetDefault("batch.limit", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ResearchKey returns the API key of the selected research provider.
func (c *Config) ResearchKey() string {
	switch c.Research.Provider {
	case ProviderAnthropic:
		return c.Anthropic.Key
	case ProviderPerplexity:
		return c.Perplexity.Key
	case ProviderOpenAI:
		return c.OpenAI.Key
	}
	return ""
}

// Validate checks the settings a command mode depends on. Modes: verify,
// batch, serve, store.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
		}
	}

	checkResearch := func(requireKey bool) {
		if !slices.Contains([]string{ProviderAnthropic, ProviderPerplexity, ProviderOpenAI}, c.Research.Provider) {
			errs = append(errs, fmt.Sprintf("research.provider %q is not supported", c.Research.Provider))
			return
		}
		if requireKey && c.ResearchKey() == "" {
			errs = append(errs, fmt.Sprintf("%s.key is required", c.Research.Provider))
		}
		if c.Research.TimeoutSecs <= 0 {
			errs = append(errs, "research.timeout_secs must be > 0")
		}
		if c.Research.BreakerThreshold < 0 {
			errs = append(errs, "research.breaker_threshold must be >= 0")
		}
	}

	checkBatch := func() {
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
			errs = append(errs, "batch.concurrency must be between 1 and 50")
		}
		if c.Batch.RatePerSecond < 0 {
			errs = append(errs, "batch.rate_per_second must be >= 0")
		}
	}

	switch mode {
	case "verify":
		checkStore()
		checkResearch(true)
	case "batch":
		checkStore()
		checkResearch(true)
		checkBatch()
	case "serve":
		checkStore()
		// Missing credentials are reported per request as unavailable.
		checkResearch(false)
		checkBatch()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
