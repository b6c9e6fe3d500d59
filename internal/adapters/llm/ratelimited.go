package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/longregen/promptc/internal/prompt"
)

// RateLimited wraps a generator and proposer with a shared token bucket so
// concurrent evaluations cannot exceed the provider's request budget.
type RateLimited struct {
	gen      prompt.Generator
	proposer prompt.Proposer
	limiter  *rate.Limiter
}

// NewRateLimited creates a rate-limited wrapper allowing rps requests per
// second with the given burst. The proposer may be nil.
func NewRateLimited(gen prompt.Generator, proposer prompt.Proposer, rps float64, burst int) *RateLimited {
	return &RateLimited{
		gen:      gen,
		proposer: proposer,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, req prompt.GenerateRequest) (prompt.Values, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.gen.Generate(ctx, req)
}

func (r *RateLimited) ProposeInstruction(ctx context.Context, req prompt.ProposalRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.proposer.ProposeInstruction(ctx, req)
}
