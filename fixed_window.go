package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// fixedWindow counts requests per discrete time bucket. Cheap and exact per
// bucket, but bursts can straddle a boundary; use slidingWindow when that
// matters.
type fixedWindow struct {
	tokens int64
	window time.Duration
	now    func() time.Time
}

// FixedWindow builds an algorithm admitting at most tokens requests per
// fixed window. The window uses the ParseWindow grammar ("10s", "1m", ...).
func FixedWindow(tokens int64, window string) (Algorithm, error) {
	d, err := ParseWindow(window)
	if err != nil {
		return nil, err
	}
	return &fixedWindow{tokens: tokens, window: d, now: time.Now}, nil
}

func (f *fixedWindow) Limit(ctx context.Context, c Client, key string, rate int64) (*Response, error) {
	windowMs := f.window.Milliseconds()
	bucket := f.now().UnixMilli() / windowMs
	fullKey := key + ":" + strconv.FormatInt(bucket, 10)

	raw, err := runScript(ctx, c, fixedWindowLimitScript, []string{fullKey}, windowMs, incrementBy(rate))
	if err != nil {
		return nil, fmt.Errorf("fixed window limit: %w", err)
	}
	count, err := toInt64(raw)
	if err != nil {
		return nil, fmt.Errorf("fixed window limit: %w", err)
	}

	remaining := f.tokens - count
	if remaining < 0 {
		remaining = 0
	}
	return &Response{
		Success:   count <= f.tokens,
		Limit:     f.tokens,
		Remaining: remaining,
		Reset:     (bucket + 1) * windowMs,
		Pending:   closedPending,
	}, nil
}

func (f *fixedWindow) GetRemaining(ctx context.Context, c Client, key string) (*Remaining, error) {
	windowMs := f.window.Milliseconds()
	bucket := f.now().UnixMilli() / windowMs
	fullKey := key + ":" + strconv.FormatInt(bucket, 10)

	raw, err := runScript(ctx, c, fixedWindowRemainingScript, []string{fullKey})
	if err != nil {
		return nil, fmt.Errorf("fixed window remaining: %w", err)
	}
	count, err := toInt64(raw)
	if err != nil {
		return nil, fmt.Errorf("fixed window remaining: %w", err)
	}

	remaining := f.tokens - count
	if remaining < 0 {
		remaining = 0
	}
	return &Remaining{Remaining: remaining, Reset: (bucket + 1) * windowMs}, nil
}

func (f *fixedWindow) ResetTokens(ctx context.Context, c Client, key string) error {
	return resetKeys(ctx, c, key)
}
