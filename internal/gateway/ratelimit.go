package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rategate/internal/config"
	"rategate/internal/observability/metrics"
)

// CounterStore consumes one token from a fixed-window counter. Take seeds the
// window with tokens on first use, decrements it, and returns the remaining
// allowance; a negative value means the window is exhausted.
type CounterStore interface {
	Take(ctx context.Context, key string, tokens int, window time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Decision is the aggregate outcome of evaluating every configured limiter
// against one request.
type Decision struct {
	Allowed    bool
	Applied    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter evaluates the configured rate limit checks against incoming
// requests using a shared counter store.
type Limiter struct {
	checks  []config.LimiterSettings
	store   CounterStore
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewLimiter builds a Limiter over the configured checks. A nil store is
// allowed only when no checks are configured.
func NewLimiter(checks []config.LimiterSettings, store CounterStore, logger *slog.Logger, recorder *metrics.Recorder) *Limiter {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &Limiter{checks: checks, store: store, logger: logger, metrics: recorder}
}

// Check runs every configured limiter against the request. The first exhausted
// window throttles the request; otherwise the tightest remaining allowance is
// reported so callers can surface it in response headers. Store failures allow
// the request through: the gateway degrades to unlimited rather than refusing
// traffic it cannot count.
func (l *Limiter) Check(ctx context.Context, r *http.Request) Decision {
	decision := Decision{Allowed: true}
	if l == nil || len(l.checks) == 0 {
		return decision
	}

	ip := extractClientIP(r)
	for _, check := range l.checks {
		strategy := strings.ToLower(strings.TrimSpace(check.Strategy))
		key, ok := resolveKey(check, r, ip)
		if !ok {
			l.metrics.ObserveLimiterDecision(strategy, metrics.OutcomeSkipped)
			continue
		}

		remaining, err := l.store.Take(ctx, key.counterKey, key.bucket.Tokens, key.bucket.RefillEvery.Std())
		if err != nil {
			l.metrics.ObserveLimiterDecision(strategy, metrics.OutcomeError)
			if l.logger != nil {
				l.logger.Error("counter store failure", "strategy", strategy, "error", err)
			}
			continue
		}

		if remaining < 0 {
			l.metrics.ObserveLimiterDecision(strategy, metrics.OutcomeThrottled)
			return Decision{
				Allowed:    false,
				Applied:    true,
				Limit:      key.bucket.Tokens,
				Remaining:  0,
				RetryAfter: key.bucket.RefillEvery.Std(),
			}
		}

		l.metrics.ObserveLimiterDecision(strategy, metrics.OutcomeAllowed)
		if !decision.Applied || remaining < decision.Remaining {
			decision.Applied = true
			decision.Limit = key.bucket.Tokens
			decision.Remaining = remaining
		}
	}
	return decision
}

// Ping reports counter store health for the admin endpoint.
func (l *Limiter) Ping(ctx context.Context) error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Ping(ctx)
}
