package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/receiptpoints/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseResult_Allowed(t *testing.T) {
	res, err := parseResult([]interface{}{int64(1), "3.5", int64(1_700_000_000_000)}, 2, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 3, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestParseResult_DeniedComputesRetryAfter(t *testing.T) {
	res, err := parseResult([]interface{}{int64(0), "0.5", int64(1_700_000_000_000)}, 2, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000).Add(250*time.Millisecond), res.ResetTime)
}

func TestParseResult_ShortResponse(t *testing.T) {
	_, err := parseResult([]interface{}{int64(1)}, 1, 1)
	assert.ErrorIs(t, err, errBadResponse)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 8*time.Second, defaultBucketTTL(5, 20))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}

func TestTokenBucket_RejectsBadInput(t *testing.T) {
	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestSubmissionLimiter_DisabledAllowsEverything(t *testing.T) {
	l, err := NewSubmissionLimiter(Params{
		Config: config.Config{},
		Policy: config.NewStaticRateLimitPolicyHolder(config.RateLimitPolicy{Rate: 1, Burst: 1}),
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)
	assert.False(t, l.Enabled())

	for i := 0; i < 10; i++ {
		res, err := l.Allow(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestSubmissionLimiter_RequiresRedisAddr(t *testing.T) {
	_, err := NewSubmissionLimiter(Params{
		Config: config.Config{RateLimit: config.RateLimitConfig{Enabled: true}},
		Policy: config.NewStaticRateLimitPolicyHolder(config.RateLimitPolicy{Rate: 1, Burst: 1}),
		Log:    zap.NewNop(),
	})
	assert.Error(t, err)
}
