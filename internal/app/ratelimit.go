package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var verifyRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimitConsumer counts one attempt for subject within scope.
type RateLimitConsumer interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter implements a fixed-window counter shared by all portal instances.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter creates a limiter storing counters under prefix.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "portal:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

func (r *RedisRateLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}

// ConsumeRateLimit increments the counter and reports the count in the current window.
// A nil limiter or non-positive limit disables limiting.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	// Sub-second windows are rounded up so Retry-After is never zero.
	windowMs := max(window.Milliseconds(), 1000)

	reply, err := verifyRateLimitScript.Run(ctx, r.client, []string{r.key(scope, subject)}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("verify rate limit script: %w", err)
	}
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("verify rate limit script returned %d values", len(reply))
	}

	count, ttlMs := reply[0], reply[1]
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := max(int(math.Ceil(float64(ttlMs)/1000)), 1)
	return int(count), retryAfter, nil
}

// RateLimitError reports a rejected attempt and when the caller may retry.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", ErrRateLimited, e.RetryAfterSeconds)
}

// Is matches ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// verifyScope is the counter scope for recipient lookups.
const verifyScope = "verify_recipient"

// VerifyGuard caps recipient verifications per session. Limiter failures fail open.
type VerifyGuard struct {
	consumer RateLimitConsumer
	limit    int
	window   time.Duration
	logger   *slog.Logger
}

// NewVerifyGuard allows limit verifications per window. A nil consumer disables the guard.
func NewVerifyGuard(consumer RateLimitConsumer, limit int, window time.Duration, logger *slog.Logger) *VerifyGuard {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &VerifyGuard{
		consumer: consumer,
		limit:    limit,
		window:   window,
		logger:   logger.With("component", "verify_guard"),
	}
}

// Allow consumes one verification for subject, returning a *RateLimitError when over the limit.
func (g *VerifyGuard) Allow(ctx context.Context, subject string) error {
	if g == nil || g.consumer == nil || g.limit <= 0 {
		return nil
	}
	count, retryAfter, err := g.consumer.ConsumeRateLimit(ctx, verifyScope, subject, g.limit, g.window)
	if err != nil {
		g.logger.Warn("rate limiter unavailable; allowing request", "error", err)
		return nil
	}
	if count > g.limit {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}
