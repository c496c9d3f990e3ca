package embedding

import (
	"context"
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/breaker"
)

// GuardedEmbedder bounds every call with a timeout and a circuit breaker.
type GuardedEmbedder struct {
	next    Embedder
	breaker *breaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedEmbedder wraps next. A zero timeout leaves the caller's deadline untouched.
func NewGuardedEmbedder(next Embedder, cb *breaker.CircuitBreaker, timeout time.Duration) *GuardedEmbedder {
	return &GuardedEmbedder{next: next, breaker: cb, timeout: timeout}
}

func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return breaker.Execute(ctx, g.breaker, func(ctx context.Context) ([]float32, error) {
		return g.next.Embed(ctx, text)
	})
}

func (g *GuardedEmbedder) Dimensions() int {
	return g.next.Dimensions()
}
