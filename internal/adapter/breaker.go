package adapter

import (
	"context"

	"github.com/sells-group/visibility-engine/internal/resilience"
)

// breakered wraps an Adapter with a circuit breaker so that a model that
// keeps failing is skipped fast for the rest of the window instead of
// burning a full timeout per pair. An open circuit surfaces as an adapter
// failure, which the orchestrator already tolerates per pair.
type breakered struct {
	Adapter
	cb *resilience.CircuitBreaker
}

// WithBreaker decorates an adapter with a circuit breaker.
func WithBreaker(a Adapter, cb *resilience.CircuitBreaker) Adapter {
	return &breakered{Adapter: a, cb: cb}
}

func (b *breakered) Execute(ctx context.Context, req Request) (*Response, error) {
	return resilience.ExecuteVal(ctx, b.cb, func(ctx context.Context) (*Response, error) {
		return b.Adapter.Execute(ctx, req)
	})
}
