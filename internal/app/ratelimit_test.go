package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateLimitConsumerStub struct {
	counts map[string]int
	err    error
}

func (s *rateLimitConsumerStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[scope+":"+subject]++
	return s.counts[scope+":"+subject], 42, nil
}

func TestVerifyGuard_RejectsOverLimit(t *testing.T) {
	guard := NewVerifyGuard(&rateLimitConsumerStub{}, 2, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, guard.Allow(ctx, "session-a"))
	require.NoError(t, guard.Allow(ctx, "session-a"))

	err := guard.Allow(ctx, "session-a")
	assert.ErrorIs(t, err, ErrRateLimited)
	var limitErr *RateLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 42, limitErr.RetryAfterSeconds)

	assert.NoError(t, guard.Allow(ctx, "session-b"), "limits are per subject")
}

func TestVerifyGuard_FailsOpen(t *testing.T) {
	guard := NewVerifyGuard(&rateLimitConsumerStub{err: errors.New("connection refused")}, 1, time.Minute, nil)
	assert.NoError(t, guard.Allow(context.Background(), "session-a"))

	var disabled *VerifyGuard
	assert.NoError(t, disabled.Allow(context.Background(), "session-a"))
}

func TestRedisRateLimiter_DisabledWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "portal:rate_limit:")
	assert.Equal(t, "portal:rate_limit:verify_recipient:s1", limiter.key("verify_recipient", "s1"))

	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "verify_recipient", "s1", 5, time.Minute)
	assert.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, retry)
}
