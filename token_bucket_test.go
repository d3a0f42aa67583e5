package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a bad interval", func(t *testing.T) {
		_, err := TokenBucket(1, "every second", 5)
		assert.Error(t, err)
	})

	t.Run("burst drains the bucket", func(t *testing.T) {
		_, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 5))
		id := uuid.NewString()

		for i, want := range []int64{4, 3, 2, 1, 0} {
			res, err := limiter.Limit(ctx, id)
			require.NoError(t, err)
			assert.True(t, res.Success, "request %d", i+1)
			assert.Equal(t, int64(5), res.Limit)
			assert.Equal(t, want, res.Remaining)
			assert.GreaterOrEqual(t, res.Reset, time.Now().UnixMilli())
		}

		res, err := limiter.Limit(ctx, id)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Zero(t, res.Remaining)
	})

	t.Run("refill admits again", func(t *testing.T) {
		_, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 5))
		id := uuid.NewString()

		for i := 0; i < 5; i++ {
			res, err := limiter.Limit(ctx, id)
			require.NoError(t, err)
			require.True(t, res.Success)
		}
		res, err := limiter.Limit(ctx, id)
		require.NoError(t, err)
		require.False(t, res.Success)

		time.Sleep(1100 * time.Millisecond)

		res, err = limiter.Limit(ctx, id)
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		_, limiter := newTestLimiter(t, mustTokenBucket(t, 10, "1s", 5))
		id := uuid.NewString()

		_, err := limiter.Limit(ctx, id, WithRate(2))
		require.NoError(t, err)

		time.Sleep(3 * time.Second)

		rem, err := limiter.GetRemaining(ctx, id)
		require.NoError(t, err)
		assert.LessOrEqual(t, rem.Remaining, int64(5))
	})

	t.Run("denial writes nothing", func(t *testing.T) {
		mr, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 3))
		id := uuid.NewString()

		// More than the bucket can ever hold: refused with no state
		// materialised.
		res, err := limiter.Limit(ctx, id, WithRate(10))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Zero(t, res.Remaining)
		assert.Greater(t, res.Reset, time.Now().UnixMilli())
		assert.Empty(t, mr.Keys())
	})

	t.Run("custom rate consumes multiple tokens", func(t *testing.T) {
		_, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 10))
		id := uuid.NewString()

		res, err := limiter.Limit(ctx, id, WithRate(4))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, int64(6), res.Remaining)
	})

	t.Run("get remaining without prior state", func(t *testing.T) {
		_, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 5))

		before := time.Now().UnixMilli()
		rem, err := limiter.GetRemaining(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Equal(t, int64(5), rem.Remaining)
		assert.GreaterOrEqual(t, rem.Reset, before)
	})

	t.Run("get remaining reads the stored bucket", func(t *testing.T) {
		_, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 5))
		id := uuid.NewString()

		_, err := limiter.Limit(ctx, id, WithRate(3))
		require.NoError(t, err)

		rem, err := limiter.GetRemaining(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2), rem.Remaining)
	})

	t.Run("bucket key carries an expiry", func(t *testing.T) {
		mr, limiter := newTestLimiter(t, mustTokenBucket(t, 1, "1s", 5))
		id := uuid.NewString()

		_, err := limiter.Limit(ctx, id)
		require.NoError(t, err)

		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
	})
}
