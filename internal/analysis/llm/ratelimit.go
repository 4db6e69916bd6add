package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"ticketchain/internal/analysis/ports"
)

// NewLimiter returns a token bucket allowing perMinute model requests. A
// non-positive value disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(1, perMinute/10)
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// RateLimitedCompleter waits for a token before every completion.
type RateLimitedCompleter struct {
	next    ports.TextCompleter
	limiter *rate.Limiter
}

// LimitCompleter wraps next with limiter.
func LimitCompleter(next ports.TextCompleter, limiter *rate.Limiter) *RateLimitedCompleter {
	return &RateLimitedCompleter{next: next, limiter: limiter}
}

func (r *RateLimitedCompleter) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, prompt, opts)
}

// RateLimitedRuns shares the limiter with the completer so both phases draw
// from one budget. Cancel and release are not limited.
type RateLimitedRuns struct {
	next    ports.RunCapability
	limiter *rate.Limiter
}

// LimitRuns wraps next with limiter.
func LimitRuns(next ports.RunCapability, limiter *rate.Limiter) *RateLimitedRuns {
	return &RateLimitedRuns{next: next, limiter: limiter}
}

func (r *RateLimitedRuns) CreateRun(ctx context.Context, req ports.RunRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.CreateRun(ctx, req)
}

func (r *RateLimitedRuns) GetRunStatus(ctx context.Context, runID string) (ports.RunStatus, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.GetRunStatus(ctx, runID)
}

func (r *RateLimitedRuns) GetRunOutput(ctx context.Context, runID string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetRunOutput(ctx, runID)
}

func (r *RateLimitedRuns) CancelRun(ctx context.Context, runID string) error {
	return r.next.CancelRun(ctx, runID)
}

// ReleaseRun forwards to the wrapped capability when it holds resources.
func (r *RateLimitedRuns) ReleaseRun(ctx context.Context, runID string) error {
	if releaser, ok := r.next.(ports.RunReleaser); ok {
		return releaser.ReleaseRun(ctx, runID)
	}
	return nil
}
