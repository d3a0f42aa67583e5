package ratelimit

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// AlgorithmKind names an admission strategy in configuration.
type AlgorithmKind string

const (
	KindFixedWindow   AlgorithmKind = "fixed_window"
	KindSlidingWindow AlgorithmKind = "sliding_window"
	KindTokenBucket   AlgorithmKind = "token_bucket"
)

// AlgorithmConfig declares an algorithm in configuration files. Durations
// use the ParseWindow grammar.
type AlgorithmConfig struct {
	Type AlgorithmKind `json:"type" yaml:"type"`

	// Window algorithms.
	Tokens int64  `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Window string `json:"window,omitempty" yaml:"window,omitempty"`

	// Token bucket.
	RefillRate int64  `json:"refill_rate,omitempty" yaml:"refill_rate,omitempty"`
	Interval   string `json:"interval,omitempty" yaml:"interval,omitempty"`
	MaxTokens  int64  `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Validate checks the declaration without building it.
func (c *AlgorithmConfig) Validate() error {
	switch c.Type {
	case KindFixedWindow, KindSlidingWindow:
		if c.Tokens <= 0 {
			return fmt.Errorf("%s: tokens must be positive", c.Type)
		}
		if _, err := ParseWindow(c.Window); err != nil {
			return fmt.Errorf("%s: %w", c.Type, err)
		}
	case KindTokenBucket:
		if c.RefillRate <= 0 {
			return fmt.Errorf("%s: refill_rate must be positive", c.Type)
		}
		if c.MaxTokens <= 0 {
			return fmt.Errorf("%s: max_tokens must be positive", c.Type)
		}
		if _, err := ParseWindow(c.Interval); err != nil {
			return fmt.Errorf("%s: %w", c.Type, err)
		}
	default:
		return fmt.Errorf("unknown algorithm type %q", c.Type)
	}
	return nil
}

// Build constructs the declared algorithm.
func (c *AlgorithmConfig) Build() (Algorithm, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case KindFixedWindow:
		return FixedWindow(c.Tokens, c.Window)
	case KindSlidingWindow:
		return SlidingWindow(c.Tokens, c.Window)
	default:
		return TokenBucket(c.RefillRate, c.Interval, c.MaxTokens)
	}
}

// FileConfig is the YAML document shape for building a whole limiter, used
// by the CLI and by services that keep their limits in configuration.
type FileConfig struct {
	RedisAddr     string          `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string          `json:"-" yaml:"redis_password"`
	RedisDB       int             `json:"redis_db" yaml:"redis_db"`
	Prefix        string          `json:"prefix" yaml:"prefix"`
	Timeout       string          `json:"timeout" yaml:"timeout"`
	Algorithm     AlgorithmConfig `json:"algorithm" yaml:"algorithm"`
}

// DefaultFileConfig returns a local-development configuration.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		RedisAddr: "localhost:6379",
		Prefix:    DefaultPrefix,
		Timeout:   "5s",
		Algorithm: AlgorithmConfig{
			Type:   KindSlidingWindow,
			Tokens: 100,
			Window: "1m",
		},
	}
}

// LoadFileConfig reads and validates a YAML configuration file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultFileConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the document and applies defaults.
func (c *FileConfig) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required")
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Timeout == "" {
		c.Timeout = "5s"
	}
	if _, _, err := c.timeout(); err != nil {
		return err
	}
	return c.Algorithm.Validate()
}

func (c *FileConfig) timeout() (time.Duration, bool, error) {
	if c.Timeout == "0" {
		return 0, true, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, false, fmt.Errorf("parse timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, false, fmt.Errorf("timeout %q must not be negative", c.Timeout)
	}
	return d, d == 0, nil
}

// NewLimiter builds a connected Limiter from the document.
func (c *FileConfig) NewLimiter() (*Limiter, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	algo, err := c.Algorithm.Build()
	if err != nil {
		return nil, err
	}
	timeout, disabled, err := c.timeout()
	if err != nil {
		return nil, err
	}
	return New(Config{
		Limiter: algo,
		Redis: &redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		},
		Prefix:         c.Prefix,
		Timeout:        timeout,
		DisableTimeout: disabled,
	})
}
