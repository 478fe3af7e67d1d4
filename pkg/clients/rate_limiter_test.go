package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllow(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(10, 2)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}

func TestTokenBucketRefills(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(100, 1)

	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestTokenBucketWait(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(100, 1)
	require.True(t, limiter.Allow())

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(0.001, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestTokenBucketStats(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(5, 3)
	limiter.Allow()

	stats := limiter.GetStats()
	assert.Equal(t, 5.0, stats.Rate)
	assert.Equal(t, 3, stats.Burst)
}

func TestNoopRateLimiter(t *testing.T) {
	limiter := NewNoopRateLimiter()

	assert.True(t, limiter.Allow())
	assert.NoError(t, limiter.Wait(context.Background()))
}
