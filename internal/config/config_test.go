package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/store"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Store.Driver)
	assert.Equal(t, store.DriverSQLite, cfg.Store.EffectiveDriver())
	assert.Equal(t, "datacenter1", cfg.Store.Cassandra.Datacenter)
	assert.Equal(t, "quorum", cfg.Store.Cassandra.Consistency)
	assert.Equal(t, ProviderAnthropic, cfg.Extractor.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(2000), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 3, cfg.Enrich.Concurrency)
	assert.Equal(t, 3, cfg.Enrich.MaxRetries)
	assert.Equal(t, 500, cfg.Enrich.InitialBackoffMs)
	assert.Equal(t, 10000, cfg.Enrich.MaxBackoffMs)
	assert.Equal(t, 1000, cfg.Enrich.RowDelayMs)
	assert.InDelta(t, 0.5, cfg.Enrich.ConfidenceThreshold, 0.001)
	assert.Equal(t, 50, cfg.Enrich.MaxFields)
	assert.Equal(t, 0, cfg.Enrich.MaxRows)
	assert.Equal(t, "Extract lead enrichment details using email as the primary identifier.", cfg.Context.GlobalInstructions)
	assert.Equal(t, "Email", cfg.Context.Label("email"))
	assert.Equal(t, "Person Name", cfg.Context.Label("_name"))
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ":8090", cfg.MCP.Addr)
	assert.Equal(t, "enrich-cli", cfg.MCP.Name)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enrich
  max_conns: 20
extractor:
  provider: gemini
gemini:
  key: g-key
enrich:
  concurrency: 8
  row_delay_ms: 0
context:
  global_instructions: Focus on B2B leads.
  column_instructions:
    industry: Use NAICS sectors.
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, store.DriverPostgres, cfg.Store.EffectiveDriver())
	assert.Equal(t, int32(20), cfg.Store.MaxConns)
	assert.Equal(t, ProviderGemini, cfg.Extractor.Provider)
	assert.Equal(t, "g-key", cfg.Gemini.Key)
	assert.Equal(t, 8, cfg.Enrich.Concurrency)
	assert.Equal(t, 0, cfg.Enrich.RowDelayMs)
	assert.Equal(t, "Focus on B2B leads.", cfg.Context.GlobalInstructions)
	assert.Equal(t, "Use NAICS sectors.", cfg.Context.Instruction("industry"))
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Enrich.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ENRICH_STORE_DRIVER", "postgres")
	t.Setenv("ENRICH_LOG_LEVEL", "warn")
	t.Setenv("ENRICH_ANTHROPIC_KEY", "sk-ant-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-key", cfg.Anthropic.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.ErrorContains(t, err, "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the enrich defaults populated for
// validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Extractor.Provider = ProviderAnthropic
	cfg.Enrich.Concurrency = 3
	cfg.Enrich.ConfidenceThreshold = 0.5
	cfg.Enrich.MaxFields = 50
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateEnrich_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate(ModeEnrich))
}

func TestValidateEnrich_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate(ModeEnrich)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidate_SQLiteNeedsNoURL(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate(ModeStore))

	cfg.Extractor.Provider = ProviderStub
	assert.NoError(t, cfg.Validate(ModeEnrich))
}

func TestValidate_CassandraHosts(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "cassandra"
	assert.ErrorContains(t, cfg.Validate(ModeStore), "store.database_url is required")

	cfg.Store.Cassandra.Hosts = []string{"10.0.0.1"}
	assert.NoError(t, cfg.Validate(ModeStore))
}

func TestValidate_Providers(t *testing.T) {
	cfg := validDefaults()

	cfg.Extractor.Provider = ProviderGemini
	assert.ErrorContains(t, cfg.Validate(ModeMCP), "gemini.key is required")

	cfg.Gemini.Key = "g"
	assert.NoError(t, cfg.Validate(ModeMCP))

	cfg.Extractor.Provider = ProviderStub
	assert.NoError(t, cfg.Validate(ModeMCP))

	cfg.Extractor.Provider = "openai"
	assert.ErrorContains(t, cfg.Validate(ModeMCP), "extractor.provider must be one of")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(ModeStore), "store.driver must be one of")
}

func TestValidateRelay(t *testing.T) {
	cfg := validDefaults()
	assert.ErrorContains(t, cfg.Validate(ModeRelay), "mcp.upstream_url is required")

	cfg.MCP.UpstreamURL = "http://localhost:8090/mcp"
	assert.NoError(t, cfg.Validate(ModeRelay))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "k"
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Extractor.Provider = ProviderStub

	cfg.Enrich.Concurrency = 0
	assert.ErrorContains(t, cfg.Validate(ModeEnrich), "enrich.concurrency must be between 1 and 50")

	cfg.Enrich.Concurrency = 51
	assert.ErrorContains(t, cfg.Validate(ModeEnrich), "enrich.concurrency must be between 1 and 50")

	cfg.Enrich.Concurrency = 50
	assert.NoError(t, cfg.Validate(ModeEnrich))
}

func TestValidateConfidenceThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Extractor.Provider = ProviderStub

	cfg.Enrich.ConfidenceThreshold = -0.1
	assert.ErrorContains(t, cfg.Validate(ModeEnrich), "confidence_threshold")

	cfg.Enrich.ConfidenceThreshold = 1.1
	assert.Error(t, cfg.Validate(ModeEnrich))

	cfg.Enrich.ConfidenceThreshold = 1
	assert.NoError(t, cfg.Validate(ModeEnrich))
}

func TestPipelineOptions(t *testing.T) {
	cfg := validDefaults()
	cfg.Enrich.Concurrency = 7
	cfg.Enrich.MaxRetries = 4
	cfg.Enrich.InitialBackoffMs = 100
	cfg.Enrich.MaxBackoffMs = 400
	cfg.Enrich.RowDelayMs = 250
	cfg.Enrich.ConfidenceThreshold = 0.6
	cfg.Enrich.MaxRows = 10
	cfg.Extractor.CallTimeoutSecs = 30

	opts := cfg.PipelineOptions()
	assert.Equal(t, 7, opts.Concurrency)
	assert.Equal(t, 4, opts.Policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.Policy.InitialBackoff)
	assert.Equal(t, 400*time.Millisecond, opts.Policy.MaxBackoff)
	assert.Equal(t, 250*time.Millisecond, opts.RowDelay)
	assert.InDelta(t, 0.6, opts.ConfidenceThreshold, 0.001)
	assert.Equal(t, 50, opts.Limits.MaxFields)
	assert.Equal(t, 10, opts.Limits.MaxRows)
	assert.Equal(t, 30*time.Second, opts.CallTimeout)
}

func TestBreaker(t *testing.T) {
	cfg := validDefaults()
	cfg.Extractor.BreakerThreshold = 2
	cfg.Extractor.BreakerResetSeconds = 10

	b := cfg.Breaker()
	assert.Equal(t, 2, b.FailureThreshold)
	assert.Equal(t, 10*time.Second, b.ResetTimeout)
}
