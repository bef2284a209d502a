package elliptic

import (
	"context"
	"errors"

	"github.com/walletscreen/walletscreen/internal/circuitbreaker"
)

// walletAnalyzer is the part of Client that Guard wraps.
type walletAnalyzer interface {
	AnalyzeWallet(ctx context.Context, address string) (*Analysis, error)
}

// Guard wraps the API client with a circuit breaker. When the upstream has
// failed repeatedly the circuit opens and requests fail fast instead of
// burning the retry budget against a dead endpoint.
type Guard struct {
	inner   walletAnalyzer
	breaker *circuitbreaker.Breaker
}

// NewGuard wraps client with breaker.
func NewGuard(client walletAnalyzer, breaker *circuitbreaker.Breaker) *Guard {
	return &Guard{inner: client, breaker: breaker}
}

// AnalyzeWallet delegates to the wrapped client unless the circuit is open.
// Only transient failures count against the breaker; auth and malformed
// responses mean the upstream is reachable.
func (g *Guard) AnalyzeWallet(ctx context.Context, address string) (*Analysis, error) {
	if !g.breaker.Allow() {
		return nil, &APIError{Kind: KindConnection, Message: "Failed to connect to Elliptic API."}
	}

	analysis, err := g.inner.AnalyzeWallet(ctx, address)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Transient() {
			g.breaker.RecordFailure()
		} else {
			g.breaker.RecordSuccess()
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return analysis, nil
}
