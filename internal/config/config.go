package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     store.Config        `yaml:"store" mapstructure:"store"`
	Extractor ExtractorConfig     `yaml:"extractor" mapstructure:"extractor"`
	Anthropic AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig        `yaml:"gemini" mapstructure:"gemini"`
	Enrich    EnrichConfig        `yaml:"enrich" mapstructure:"enrich"`
	Context   model.ContextConfig `yaml:"context" mapstructure:"context"`
	Server    ServerConfig        `yaml:"server" mapstructure:"server"`
	MCP       MCPConfig           `yaml:"mcp" mapstructure:"mcp"`
	Log       LogConfig           `yaml:"log" mapstructure:"log"`
}

// Extraction providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderStub      = "stub"
)

// ExtractorConfig selects the extraction provider.
type ExtractorConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`

	// CallTimeoutSecs bounds a single provider call. Zero disables it.
	CallTimeoutSecs int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`

	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSeconds int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int32  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EnrichConfig configures batch processing.
type EnrichConfig struct {
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs    int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RowDelayMs          int     `yaml:"row_delay_ms" mapstructure:"row_delay_ms"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxFields           int     `yaml:"max_fields" mapstructure:"max_fields"`
	MaxRows             int     `yaml:"max_rows" mapstructure:"max_rows"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MCPConfig configures the tool servers.
type MCPConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	UpstreamURL string `yaml:"upstream_url" mapstructure:"upstream_url"`
	Name        string `yaml:"name" mapstructure:"name"`
	Version     string `yaml:"version" mapstructure:"version"`
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
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	ctx := model.DefaultContextConfig()

	// AutomaticEnv only sees keys viper already knows about.
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.cassandra.datacenter", "datacenter1")
	v.SetDefault("store.cassandra.consistency", "quorum")
	v.SetDefault("extractor.provider", ProviderAnthropic)
	v.SetDefault("extractor.call_timeout_secs", 60)
	v.SetDefault("extractor.breaker_threshold", 5)
	v.SetDefault("extractor.breaker_reset_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.max_tokens", 2000)
	v.SetDefault("enrich.concurrency", 3)
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("enrich.initial_backoff_ms", 500)
	v.SetDefault("enrich.max_backoff_ms", 10000)
	v.SetDefault("enrich.row_delay_ms", 1000)
	v.SetDefault("enrich.confidence_threshold", 0.5)
	v.SetDefault("enrich.max_fields", 50)
	v.SetDefault("enrich.max_rows", 0)
	v.SetDefault("context.global_instructions", ctx.GlobalInstructions)
	v.SetDefault("context.row_context_mappings", ctx.RowContextMappings)
	v.SetDefault("context.column_instructions", ctx.ColumnInstructions)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("mcp.addr", ":8090")
	v.SetDefault("mcp.upstream_url", "")
	v.SetDefault("mcp.name", "enrich-cli")
	v.SetDefault("mcp.version", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Command modes checked by Validate.
const (
	ModeEnrich = "enrich"
	ModeServe  = "serve"
	ModeMCP    = "mcp"
	ModeRelay  = "relay"
	ModeStore  = "store"
)

// Validate checks that the settings a command mode needs are present and
// in range.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case ModeEnrich, ModeServe:
		problems = append(problems, c.storeProblems()...)
		problems = append(problems, c.extractorProblems()...)
	case ModeStore:
		problems = append(problems, c.storeProblems()...)
	case ModeMCP:
		problems = append(problems, c.extractorProblems()...)
	case ModeRelay:
		if c.MCP.UpstreamURL == "" {
			problems = append(problems, "mcp.upstream_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == ModeServe && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}
	if mode != ModeRelay && mode != ModeStore {
		if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 50 {
			problems = append(problems, "enrich.concurrency must be between 1 and 50")
		}
		if c.Enrich.ConfidenceThreshold < 0 || c.Enrich.ConfidenceThreshold > 1 {
			problems = append(problems, "enrich.confidence_threshold must be between 0 and 1")
		}
		if c.Enrich.MaxFields < 0 || c.Enrich.MaxRows < 0 {
			problems = append(problems, "enrich.max_fields and enrich.max_rows must be >= 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid settings for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	switch c.Store.EffectiveDriver() {
	case store.DriverSQLite:
		return nil
	case store.DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case store.DriverCassandra:
		if c.Store.DatabaseURL == "" && len(c.Store.Cassandra.Hosts) == 0 {
			return []string{"store.database_url is required"}
		}
	default:
		return []string{"store.driver must be one of postgres, cassandra, sqlite"}
	}
	return nil
}

func (c *Config) extractorProblems() []string {
	switch strings.ToLower(c.Extractor.Provider) {
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required"}
		}
	case ProviderGemini:
		if c.Gemini.Key == "" {
			return []string{"gemini.key is required"}
		}
	case ProviderStub:
	default:
		return []string{"extractor.provider must be one of anthropic, gemini, stub"}
	}
	return nil
}

// Policy returns the extraction retry policy.
func (c *Config) Policy() resilience.Policy {
	return resilience.PolicyFromConfig(c.Enrich.MaxRetries, c.Enrich.InitialBackoffMs, c.Enrich.MaxBackoffMs)
}

// Breaker returns the per-provider circuit breaker settings.
func (c *Config) Breaker() resilience.BreakerConfig {
	return resilience.BreakerFromConfig(c.Extractor.BreakerThreshold, c.Extractor.BreakerResetSeconds)
}

// PipelineOptions converts the enrich section to orchestrator options.
func (c *Config) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	if c.Enrich.Concurrency > 0 {
		opts.Concurrency = c.Enrich.Concurrency
	}
	opts.Policy = c.Policy()
	if c.Enrich.RowDelayMs >= 0 {
		opts.RowDelay = time.Duration(c.Enrich.RowDelayMs) * time.Millisecond
	}
	opts.ConfidenceThreshold = c.Enrich.ConfidenceThreshold
	opts.Limits = pipeline.Limits{MaxFields: c.Enrich.MaxFields, MaxRows: c.Enrich.MaxRows}
	if c.Extractor.CallTimeoutSecs > 0 {
		opts.CallTimeout = time.Duration(c.Extractor.CallTimeoutSecs) * time.Second
	}
	return opts
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
