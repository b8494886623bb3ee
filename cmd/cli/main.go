// Command cli is the openprices entrypoint: price-transparency data
// ingestion for the regulated Israeli supermarket chains.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/elikochva/openprices/config"
	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "openprices",
	Short:         "Israeli supermarket price transparency ingestion",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs.
type app struct {
	cfg    *config.Config
	db     *bun.DB
	client *httpx.Client
	cache  *storage.Cache
	log    zerolog.Logger
}

// setup loads configuration and opens the shared resources. Returned
// errors are the only thing that should make the process exit non-zero.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{Debug: verbose})
	if err != nil {
		return nil, err
	}

	client, err := httpx.New(httpx.Config{
		Timeout:           cfg.HTTP.Timeout(),
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		MaxRetries:        cfg.HTTP.MaxRetries,
		InitialBackoff:    cfg.HTTP.InitialBackoff(),
		MaxBackoff:        cfg.HTTP.MaxBackoff(),
	}, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	cache, err := storage.NewCache(cfg.CacheDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, client: client, cache: cache, log: log}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing database")
	}
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "json" {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}
