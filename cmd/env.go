package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/extract"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/store"
	anthropicpkg "github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/gemini"
)

// enrichEnv holds the store, extractor and runner shared by the enrich,
// serve and mcp commands.
type enrichEnv struct {
	Store  store.Store
	Orch   *pipeline.Orchestrator
	Runner *pipeline.Runner
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend and applies its schema.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	zap.L().Debug("store ready", zap.String("driver", cfg.Store.EffectiveDriver()))
	return st, nil
}

// initExtractor builds the configured provider.
func initExtractor(ctx context.Context) (extract.Extractor, error) {
	provider := strings.ToLower(cfg.Extractor.Provider)

	var ext extract.Extractor
	switch provider {
	case config.ProviderAnthropic:
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		ext = extract.NewAnthropicExtractor(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, err
		}
		ext = extract.NewGeminiExtractor(client, cfg.Gemini.Model, cfg.Gemini.MaxTokens)
	case config.ProviderStub:
		zap.L().Info("using stub extractor")
		return extract.NewStubExtractor(), nil
	default:
		return nil, eris.Errorf("unknown extractor provider %q", cfg.Extractor.Provider)
	}
	return extract.WithBreaker(ext, provider, cfg.Breaker()), nil
}

// initOrchestrator validates the config for mode and builds an orchestrator
// without a store. Offline forces the stub extractor.
func initOrchestrator(ctx context.Context, mode string, offline bool) (*pipeline.Orchestrator, error) {
	if offline {
		cfg.Extractor.Provider = config.ProviderStub
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	ext, err := initExtractor(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(ext, cfg.PipelineOptions()), nil
}

// initEnv sets up the store, the extractor and the session runner. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string, offline bool) (*enrichEnv, error) {
	orch, err := initOrchestrator(ctx, mode, offline)
	if err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	return &enrichEnv{
		Store:  st,
		Orch:   orch,
		Runner: pipeline.NewRunner(st, orch),
	}, nil
}
