package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/covercast/internal/profile"
)

var rootCmd = &cobra.Command{
	Use:   "covercast",
	Short: "Restaurant covers forecasting from similar historical services",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if viper.GetString("mode") != "prod" {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	defaults := profile.Default()

	viper.SetDefault("mode", defaults.Mode)
	viper.SetDefault("driver", defaults.Driver)
	viper.SetDefault("port", defaults.Port)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", defaults.Mode, `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", defaults.Port, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", defaults.Driver, "database driver, sqlite or postgres")
	flags.String("dsn", "", "database source name")
	flags.String("redis-addr", "", "redis address for the shared prediction cache")
	flags.Int("top-k", defaults.TopK, "number of similar patterns to aggregate")
	flags.Float64("similarity-floor", defaults.SimilarityFloor, "minimum similarity of a contributing pattern")
	flags.Float64("fallback-covers", defaults.FallbackCovers, "covers predicted when no pattern contributes")
	flags.Float64("fallback-confidence", defaults.FallbackConfidence, "confidence of a fallback prediction")
	flags.Duration("cache-ttl", defaults.CacheTTL, "time a prediction stays cached")
	flags.Int("batch-concurrency", defaults.BatchConcurrency, "dates predicted in parallel by a batch")
	flags.Int("batch-max-days", defaults.BatchMaxDays, "longest date range a batch accepts")
	flags.Duration("request-timeout", defaults.RequestTimeout, "deadline of one prediction")
	flags.Float64("api-rps", defaults.APIRequestsPerSecond, "requests per second allowed per restaurant")
	flags.Int("api-burst", defaults.APIBurst, "request burst allowed per restaurant")

	for _, name := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "redis-addr",
		"top-k", "similarity-floor", "fallback-covers", "fallback-confidence",
		"cache-ttl", "batch-concurrency", "batch-max-days", "request-timeout",
		"api-rps", "api-burst",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("covercast")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd, predictCmd, batchCmd, ingestCmd)
}

// loadProfile builds the process profile from flags, COVERCAST_* variables and defaults.
func loadProfile() (*profile.Profile, error) {
	p := profile.Default()
	p.Mode = viper.GetString("mode")
	p.Addr = viper.GetString("addr")
	p.Port = viper.GetInt("port")
	p.Data = viper.GetString("data")
	p.Driver = viper.GetString("driver")
	p.DSN = viper.GetString("dsn")
	p.RedisAddr = viper.GetString("redis-addr")
	p.TopK = viper.GetInt("top-k")
	p.SimilarityFloor = viper.GetFloat64("similarity-floor")
	p.FallbackCovers = viper.GetFloat64("fallback-covers")
	p.FallbackConfidence = viper.GetFloat64("fallback-confidence")
	p.CacheTTL = viper.GetDuration("cache-ttl")
	p.BatchConcurrency = viper.GetInt("batch-concurrency")
	p.BatchMaxDays = viper.GetInt("batch-max-days")
	p.RequestTimeout = viper.GetDuration("request-timeout")
	p.APIRequestsPerSecond = viper.GetFloat64("api-rps")
	p.APIBurst = viper.GetInt("api-burst")
	p.FromEnv()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return p, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
