package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScript(t *testing.T) {
	ctx := context.Background()

	t.Run("first call loads on cache miss", func(t *testing.T) {
		_, client := newTestStore(t)
		script := redis.NewScript(`return redis.call("INCRBY", KEYS[1], ARGV[1])`)

		res, err := runScript(ctx, client, script, []string{"counter"}, 3)
		require.NoError(t, err)
		count, err := toInt64(res)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("recovers after a script cache flush", func(t *testing.T) {
		_, client := newTestStore(t)
		script := redis.NewScript(`return redis.call("INCRBY", KEYS[1], ARGV[1])`)

		_, err := runScript(ctx, client, script, []string{"counter"}, 1)
		require.NoError(t, err)

		// A restarted or flushed store forgets every cached script.
		require.NoError(t, client.ScriptFlush(ctx).Err())

		res, err := runScript(ctx, client, script, []string{"counter"}, 1)
		require.NoError(t, err)
		count, err := toInt64(res)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("script error replies surface unchanged", func(t *testing.T) {
		_, client := newTestStore(t)
		script := redis.NewScript(`return redis.error_reply("window must be positive")`)

		_, err := runScript(ctx, client, script, []string{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "window must be positive")
	})
}

func TestIsNoScript(t *testing.T) {
	assert.False(t, isNoScript(nil))
	assert.True(t, isNoScript(errors.New("NOSCRIPT No matching script. Please use EVAL.")))
	assert.True(t, isNoScript(errors.New("noscript no matching script")))
	assert.False(t, isNoScript(errors.New("ERR value is not an integer")))
}

func TestToInt64(t *testing.T) {
	n, err := toInt64(int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, err = toInt64("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = toInt64(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = toInt64("not-a-number")
	assert.Error(t, err)

	_, err = toInt64(3.14)
	assert.Error(t, err)
}

func TestToInt64Slice(t *testing.T) {
	values, err := toInt64Slice([]interface{}{int64(1), "2", int64(3), int64(4)}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, values)

	_, err = toInt64Slice([]interface{}{int64(1)}, 4)
	assert.Error(t, err)

	_, err = toInt64Slice("nope", 2)
	assert.Error(t, err)
}
