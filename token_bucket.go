package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// tokenBucket stores a {refilledAt, tokens} hash per identifier and amortises
// refill into the consuming write. Bursts are capped at maxTokens; a refused
// request writes nothing.
type tokenBucket struct {
	refillRate int64
	interval   time.Duration
	maxTokens  int64
	now        func() time.Time
}

// TokenBucket builds an algorithm with a bucket of maxTokens that gains
// refillRate tokens every interval. The interval uses the ParseWindow
// grammar ("1s", "1m", ...).
func TokenBucket(refillRate int64, interval string, maxTokens int64) (Algorithm, error) {
	d, err := ParseWindow(interval)
	if err != nil {
		return nil, err
	}
	return &tokenBucket{refillRate: refillRate, interval: d, maxTokens: maxTokens, now: time.Now}, nil
}

func (t *tokenBucket) Limit(ctx context.Context, c Client, key string, rate int64) (*Response, error) {
	nowMs := t.now().UnixMilli()

	raw, err := runScript(ctx, c, tokenBucketLimitScript, []string{key},
		t.maxTokens, t.interval.Milliseconds(), t.refillRate, nowMs, incrementBy(rate))
	if err != nil {
		return nil, fmt.Errorf("token bucket limit: %w", err)
	}

	// Reply contract: [success, limit, remaining, deltaMsToReset].
	values, err := toInt64Slice(raw, 4)
	if err != nil {
		return nil, fmt.Errorf("token bucket limit: %w", err)
	}

	return &Response{
		Success:   values[0] == 1,
		Limit:     values[1],
		Remaining: values[2],
		Reset:     nowMs + values[3],
		Pending:   closedPending,
	}, nil
}

func (t *tokenBucket) GetRemaining(ctx context.Context, c Client, key string) (*Remaining, error) {
	nowMs := t.now().UnixMilli()

	raw, err := runScript(ctx, c, tokenBucketRemainingScript, []string{key}, t.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("token bucket remaining: %w", err)
	}
	values, err := toInt64Slice(raw, 2)
	if err != nil {
		return nil, fmt.Errorf("token bucket remaining: %w", err)
	}

	// values[1] is refilledAt, or -1 when no bucket exists yet.
	reset := values[1] + t.interval.Milliseconds()
	if values[1] < 0 {
		reset = nowMs + t.interval.Milliseconds()
	}
	return &Remaining{Remaining: values[0], Reset: reset}, nil
}

func (t *tokenBucket) ResetTokens(ctx context.Context, c Client, key string) error {
	return resetKeys(ctx, c, key)
}
