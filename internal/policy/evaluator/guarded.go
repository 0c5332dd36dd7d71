package evaluator

import (
	"context"
	"errors"
	"log/slog"

	"strand/internal/verification"
	strandmodels "strand/internal/strand/models"
	"strand/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("policy evaluator circuit open")

// Guarded wraps an evaluator with a circuit breaker. While the circuit is
// open Evaluate fails fast with ErrCircuitOpen, which the pipeline reports
// as a dependency failure. Denials are not failures.
type Guarded struct {
	next    verification.PolicyEvaluator
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next verification.PolicyEvaluator, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Evaluate(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (bool, error) {
	if !g.breaker.Allow() {
		return false, ErrCircuitOpen
	}
	allowed, err := g.next.Evaluate(ctx, credentialID, authCtx)
	if err != nil {
		if g.breaker.RecordFailure() {
			g.logger.WarnContext(ctx, "policy evaluator circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return false, err
	}
	if g.breaker.RecordSuccess() {
		g.logger.InfoContext(ctx, "policy evaluator circuit closed", "breaker", g.breaker.Name())
	}
	return allowed, nil
}
