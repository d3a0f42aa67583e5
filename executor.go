package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// runScript executes a registered script by hash. On a script-cache miss it
// loads the source and retries the EVALSHA once with the original arguments;
// every other error class surfaces unchanged. The common path stays a single
// round-trip even after a store restart evicts the cache.
func runScript(ctx context.Context, c Client, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := c.EvalSha(ctx, script.Hash(), keys, args...).Result()
	if err == nil || !isNoScript(err) {
		return res, err
	}

	if loadErr := script.Load(ctx, c).Err(); loadErr != nil {
		return nil, fmt.Errorf("script load: %w", loadErr)
	}
	return c.EvalSha(ctx, script.Hash(), keys, args...).Result()
}

func isNoScript(err error) bool {
	if err == nil {
		return false
	}
	if redis.HasErrorPrefix(err, "NOSCRIPT") {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "noscript")
}

// toInt64 normalises a script reply element. Redis returns integers for
// INCRBY-style replies and bulk strings for GET-style ones; both carry the
// same counter semantics here.
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse script reply %q: %w", n, err)
		}
		return parsed, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected script reply type %T", v)
	}
}

// toInt64Slice normalises an array reply of fixed arity.
func toInt64Slice(v interface{}, want int) ([]int64, error) {
	values, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script reply type %T, want array", v)
	}
	if len(values) < want {
		return nil, fmt.Errorf("short script reply: got %d values, want %d", len(values), want)
	}
	out := make([]int64, want)
	for i := 0; i < want; i++ {
		n, err := toInt64(values[i])
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
