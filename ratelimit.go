// Package ratelimit provides distributed rate limiting backed by a shared
// Redis-compatible store. Admission decisions are made by atomic server-side
// scripts, so any number of clients sharing the store observe one
// linearisable budget per identifier.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultPrefix namespaces this engine's keys inside a shared store.
	DefaultPrefix = "@hummn/ratelimit"
	// DefaultTimeout bounds how long a decision may wait on the store
	// before failing open.
	DefaultTimeout = 5 * time.Second
)

var (
	// ErrTimeoutNotPositive is returned by BlockUntilReady for a
	// non-positive wait budget.
	ErrTimeoutNotPositive = errors.New("timeout must be positive")
	// ErrInvalidReset signals a denied response carrying no reset moment,
	// which indicates a corrupt store reply.
	ErrInvalidReset = errors.New("invalid reset")
)

// Config configures a Limiter.
type Config struct {
	// Limiter selects the admission algorithm. Required.
	Limiter Algorithm
	// Client is a pre-built store client. Leave nil to have one
	// constructed from Redis.
	Client Client
	// Redis holds connection options used when Client is nil.
	Redis *redis.Options
	// Prefix namespaces all keys. Defaults to DefaultPrefix.
	Prefix string
	// Timeout is the watchdog budget per Limit call. Zero means
	// DefaultTimeout; set DisableTimeout to switch the watchdog off and
	// let transport errors propagate (fail-closed).
	Timeout        time.Duration
	DisableTimeout bool
	// Logger receives a warn-level event each time the watchdog fails open.
	// Script reloads are not logged. Nil disables logging.
	Logger *zerolog.Logger
}

// Limiter applies one algorithm to identifiers under a common prefix. It is
// safe for concurrent use; all mutable state lives in the store.
type Limiter struct {
	client    Client
	algorithm Algorithm
	prefix    string
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New builds a Limiter from cfg.
func New(cfg Config) (*Limiter, error) {
	if cfg.Limiter == nil {
		return nil, errors.New("ratelimit: an algorithm is required")
	}
	client := cfg.Client
	if client == nil {
		if cfg.Redis == nil {
			return nil, errors.New("ratelimit: a client or redis options are required")
		}
		client = redis.NewClient(cfg.Redis)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	timeout := cfg.Timeout
	if cfg.DisableTimeout {
		timeout = 0
	} else if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Limiter{
		client:    client,
		algorithm: cfg.Limiter,
		prefix:    prefix,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// LimitOption customises a single Limit call.
type LimitOption func(*limitOptions)

type limitOptions struct {
	rate int64
}

// WithRate consumes n tokens instead of one. Values below one fall back to
// one.
func WithRate(n int64) LimitOption {
	return func(o *limitOptions) {
		o.rate = n
	}
}

// Limit decides whether one request for identifier may pass, consuming
// tokens atomically in the store. When the watchdog is enabled a stalled or
// unreachable store yields a permissive response with Reason set to
// ReasonTimeout; script error replies always surface as errors.
func (l *Limiter) Limit(ctx context.Context, identifier string, opts ...LimitOption) (*Response, error) {
	o := limitOptions{rate: 1}
	for _, opt := range opts {
		opt(&o)
	}
	key := l.prefix + ":" + identifier

	if l.timeout <= 0 {
		return l.algorithm.Limit(ctx, l.client, key, o.rate)
	}

	type outcome struct {
		res *Response
		err error
	}
	done := make(chan outcome, 1)

	tctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	go func() {
		res, err := l.algorithm.Limit(tctx, l.client, key, o.rate)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.res, nil
		}
		var replyErr redis.Error
		if errors.As(out.err, &replyErr) {
			// An error reply from the script itself; masking it would
			// silently corrupt accounting.
			return nil, out.err
		}
		l.logger.Warn().Err(out.err).Str("identifier", identifier).
			Msg("store unreachable, failing open")
		return l.failOpen(), nil
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.logger.Warn().Dur("timeout", l.timeout).Str("identifier", identifier).
			Msg("store timed out, failing open")
		return l.failOpen(), nil
	}
}

func (l *Limiter) failOpen() *Response {
	return &Response{
		Success: true,
		Reason:  ReasonTimeout,
		Pending: closedPending,
	}
}

// GetRemaining reads the current budget for identifier without consuming
// anything. There is no watchdog here; reads are advisory.
func (l *Limiter) GetRemaining(ctx context.Context, identifier string) (*Remaining, error) {
	return l.algorithm.GetRemaining(ctx, l.client, l.prefix+":"+identifier)
}

// ResetUsedTokens removes all stored state for identifier. The next Limit
// call starts from a full budget.
func (l *Limiter) ResetUsedTokens(ctx context.Context, identifier string) error {
	return l.algorithm.ResetTokens(ctx, l.client, l.prefix+":"+identifier)
}

// BlockUntilReady waits until a request for identifier is admitted or
// maxWait elapses, spacing retries to each denial's predicted reset moment.
// The returned response is the last one observed, successful or not.
func (l *Limiter) BlockUntilReady(ctx context.Context, identifier string, maxWait time.Duration) (*Response, error) {
	if maxWait <= 0 {
		return nil, ErrTimeoutNotPositive
	}
	deadline := l.now().Add(maxWait)

	for {
		res, err := l.Limit(ctx, identifier)
		if err != nil {
			return nil, err
		}
		if res.Success {
			return res, nil
		}
		if res.Reset == 0 {
			return nil, ErrInvalidReset
		}

		wakeAt := time.UnixMilli(res.Reset)
		if deadline.Before(wakeAt) {
			wakeAt = deadline
		}
		if wait := wakeAt.Sub(l.now()); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		if l.now().After(deadline) {
			return res, nil
		}
	}
}
