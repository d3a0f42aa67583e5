// Command ratelimit exercises a limiter against a live Redis: check an
// identifier, read its remaining budget, reset it, or block until admitted.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	ratelimit "github.com/hummnjs/ratelimit-go"
)

var (
	flagConfig    string
	flagRedisAddr string
	flagRedisPass string
	flagRedisDB   int
	flagPrefix    string
	flagTimeout   time.Duration
	flagAlgorithm string
	flagTokens    int64
	flagWindow    string
	flagRefill    int64
	flagInterval  string
	flagMaxTokens int64
	flagVerbose   bool

	flagRate    int64
	flagMaxWait time.Duration
)

func main() {
	// .env is optional; flags and real environment win.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "ratelimit",
		Short:         "Distributed rate limiting against a shared Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file (when set, the redis, prefix, timeout, algorithm and verbose flags are ignored)")
	root.PersistentFlags().StringVar(&flagRedisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	root.PersistentFlags().StringVar(&flagRedisPass, "redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")
	root.PersistentFlags().IntVar(&flagRedisDB, "redis-db", 0, "redis database")
	root.PersistentFlags().StringVar(&flagPrefix, "prefix", ratelimit.DefaultPrefix, "key prefix")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", ratelimit.DefaultTimeout, "watchdog timeout, 0 disables")
	root.PersistentFlags().StringVar(&flagAlgorithm, "algorithm", "sliding_window", "fixed_window, sliding_window or token_bucket")
	root.PersistentFlags().Int64Var(&flagTokens, "tokens", 10, "tokens per window (window algorithms)")
	root.PersistentFlags().StringVar(&flagWindow, "window", "10s", "window duration (window algorithms)")
	root.PersistentFlags().Int64Var(&flagRefill, "refill-rate", 1, "tokens per interval (token bucket)")
	root.PersistentFlags().StringVar(&flagInterval, "interval", "1s", "refill interval (token bucket)")
	root.PersistentFlags().Int64Var(&flagMaxTokens, "max-tokens", 10, "bucket capacity (token bucket)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	checkCmd := &cobra.Command{
		Use:   "check [identifier]",
		Short: "Consume tokens and print the decision",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheck,
	}
	checkCmd.Flags().Int64Var(&flagRate, "rate", 1, "tokens to consume")

	remainingCmd := &cobra.Command{
		Use:   "remaining <identifier>",
		Short: "Print the remaining budget without consuming",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemaining,
	}

	resetCmd := &cobra.Command{
		Use:   "reset <identifier>",
		Short: "Remove all stored state for the identifier",
		Args:  cobra.ExactArgs(1),
		RunE:  runReset,
	}

	waitCmd := &cobra.Command{
		Use:   "wait <identifier>",
		Short: "Block until a request is admitted or the wait budget runs out",
		Args:  cobra.ExactArgs(1),
		RunE:  runWait,
	}
	waitCmd.Flags().DurationVar(&flagMaxWait, "max-wait", 30*time.Second, "how long to wait for admission")

	root.AddCommand(checkCmd, remainingCmd, resetCmd, waitCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

func newLimiter() (*ratelimit.Limiter, error) {
	if flagConfig != "" {
		cfg, err := ratelimit.LoadFileConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		return cfg.NewLimiter()
	}

	algoCfg := ratelimit.AlgorithmConfig{
		Type:       ratelimit.AlgorithmKind(flagAlgorithm),
		Tokens:     flagTokens,
		Window:     flagWindow,
		RefillRate: flagRefill,
		Interval:   flagInterval,
		MaxTokens:  flagMaxTokens,
	}
	algo, err := algoCfg.Build()
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	return ratelimit.New(ratelimit.Config{
		Limiter: algo,
		Redis: &redis.Options{
			Addr:     flagRedisAddr,
			Password: flagRedisPass,
			DB:       flagRedisDB,
		},
		Prefix:         flagPrefix,
		Timeout:        flagTimeout,
		DisableTimeout: flagTimeout == 0,
		Logger:         &logger,
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	identifier := uuid.NewString()
	if len(args) == 1 {
		identifier = args[0]
	}

	limiter, err := newLimiter()
	if err != nil {
		return err
	}

	res, err := limiter.Limit(context.Background(), identifier, ratelimit.WithRate(flagRate))
	if err != nil {
		return err
	}
	printResponse(identifier, res)
	if !res.Success {
		os.Exit(2)
	}
	return nil
}

func runRemaining(cmd *cobra.Command, args []string) error {
	limiter, err := newLimiter()
	if err != nil {
		return err
	}
	rem, err := limiter.GetRemaining(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s remaining=%d reset=%s\n", args[0], rem.Remaining, formatReset(rem.Reset))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	limiter, err := newLimiter()
	if err != nil {
		return err
	}
	if err := limiter.ResetUsedTokens(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("%s reset\n", args[0])
	return nil
}

func runWait(cmd *cobra.Command, args []string) error {
	limiter, err := newLimiter()
	if err != nil {
		return err
	}
	res, err := limiter.BlockUntilReady(context.Background(), args[0], flagMaxWait)
	if err != nil {
		return err
	}
	printResponse(args[0], res)
	if !res.Success {
		os.Exit(2)
	}
	return nil
}

func printResponse(identifier string, res *ratelimit.Response) {
	verdict := color.GreenString("ALLOWED")
	if !res.Success {
		verdict = color.RedString("DENIED")
	}
	suffix := ""
	if res.Reason != "" {
		suffix = fmt.Sprintf(" reason=%s", res.Reason)
	}
	fmt.Printf("%s %s limit=%d remaining=%d reset=%s%s\n",
		verdict, identifier, res.Limit, res.Remaining, formatReset(res.Reset), suffix)
}

func formatReset(resetMs int64) string {
	if resetMs == 0 {
		return "-"
	}
	return time.UnixMilli(resetMs).Format(time.RFC3339)
}
