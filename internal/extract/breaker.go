package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Guarded wraps an Extractor with a circuit breaker so a failing provider
// is not hammered by every in-flight row.
type Guarded struct {
	next Extractor
	cb   *resilience.CircuitBreaker
}

// WithBreaker returns next guarded by a breaker built from cfg.
func WithBreaker(next Extractor, name string, cfg resilience.BreakerConfig) *Guarded {
	log := zap.L().With(zap.String("provider", name))
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			log.Warn("extractor circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Guarded{next: next, cb: resilience.NewCircuitBreaker(cfg)}
}

// Extract implements Extractor.
func (g *Guarded) Extract(ctx context.Context, req Request) (*Extraction, error) {
	return resilience.Call(ctx, g.cb, func(ctx context.Context) (*Extraction, error) {
		return g.next.Extract(ctx, req)
	})
}

// State reports the breaker state.
func (g *Guarded) State() resilience.CircuitState {
	return g.cb.State()
}
