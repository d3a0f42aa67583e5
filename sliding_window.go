package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// slidingWindow weights the previous bucket's count by how far the current
// window has progressed, smoothing the boundary burst a fixed window allows
// while keeping storage at two counters per identifier.
type slidingWindow struct {
	tokens int64
	window time.Duration
	now    func() time.Time
}

// SlidingWindow builds an algorithm admitting at most tokens requests per
// rolling window, approximated from two adjacent fixed buckets.
func SlidingWindow(tokens int64, window string) (Algorithm, error) {
	d, err := ParseWindow(window)
	if err != nil {
		return nil, err
	}
	return &slidingWindow{tokens: tokens, window: d, now: time.Now}, nil
}

func (s *slidingWindow) Limit(ctx context.Context, c Client, key string, rate int64) (*Response, error) {
	nowMs := s.now().UnixMilli()
	windowMs := s.window.Milliseconds()
	currentBucket := nowMs / windowMs
	previousBucket := currentBucket - 1
	currentKey := key + ":" + strconv.FormatInt(currentBucket, 10)
	previousKey := key + ":" + strconv.FormatInt(previousBucket, 10)

	raw, err := runScript(ctx, c, slidingWindowLimitScript,
		[]string{currentKey, previousKey},
		s.tokens, nowMs, windowMs, incrementBy(rate))
	if err != nil {
		return nil, fmt.Errorf("sliding window limit: %w", err)
	}
	left, err := toInt64(raw)
	if err != nil {
		return nil, fmt.Errorf("sliding window limit: %w", err)
	}

	remaining := left
	if remaining < 0 {
		remaining = 0
	}
	return &Response{
		Success:   left >= 0,
		Limit:     s.tokens,
		Remaining: remaining,
		Reset:     (currentBucket + 1) * windowMs,
		Pending:   closedPending,
	}, nil
}

func (s *slidingWindow) GetRemaining(ctx context.Context, c Client, key string) (*Remaining, error) {
	nowMs := s.now().UnixMilli()
	windowMs := s.window.Milliseconds()
	currentBucket := nowMs / windowMs
	previousBucket := currentBucket - 1
	currentKey := key + ":" + strconv.FormatInt(currentBucket, 10)
	previousKey := key + ":" + strconv.FormatInt(previousBucket, 10)

	raw, err := runScript(ctx, c, slidingWindowRemainingScript,
		[]string{currentKey, previousKey}, nowMs, windowMs)
	if err != nil {
		return nil, fmt.Errorf("sliding window remaining: %w", err)
	}
	used, err := toInt64(raw)
	if err != nil {
		return nil, fmt.Errorf("sliding window remaining: %w", err)
	}

	remaining := s.tokens - used
	if remaining < 0 {
		remaining = 0
	}
	return &Remaining{Remaining: remaining, Reset: (currentBucket + 1) * windowMs}, nil
}

func (s *slidingWindow) ResetTokens(ctx context.Context, c Client, key string) error {
	return resetKeys(ctx, c, key)
}
