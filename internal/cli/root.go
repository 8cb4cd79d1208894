package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lazypower/mempack/internal/config"
	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/events"
	"github.com/lazypower/mempack/internal/events/kafka"
	"github.com/lazypower/mempack/internal/events/nop"
	"github.com/lazypower/mempack/internal/logger"
	"github.com/lazypower/mempack/internal/store"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "mempack",
	Short: "Synthetic memory for units of work",
	Long: "mempack remembers what was done to which files, and hands that history back " +
		"as a context envelope when new work starts on the same part of the codebase.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.mempack/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config named by --config, or the default location.
func loadConfig() (*config.Config, *viper.Viper, error) {
	cfg, v, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, v, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := []logger.Option{logger.WithLevel(cfg.Log.Level), logger.WithPrefix("mempack")}
	switch cfg.Log.Format {
	case "json":
		opts = append(opts, logger.WithJSON(true))
	case "pretty":
		opts = append(opts, logger.WithPretty(true))
	}
	if debug {
		opts = append(opts, logger.WithDebug(true))
	}
	return logger.New(opts...)
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Backend {
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		})
	default:
		return nop.NewPublisher(), nil
	}
}

// app is an engine wired to its store and event publisher.
type app struct {
	cfg    *config.Config
	viper  *viper.Viper
	log    *slog.Logger
	store  store.Store
	events events.Publisher
	engine *engine.Engine
}

// openRuntime loads config and builds the engine. Callers must Close it.
func openRuntime(ctx context.Context) (*app, error) {
	cfg, v, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, fmt.Errorf("engine options: %w", err)
	}

	s, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("events: %w", err)
	}

	opts.Events = pub
	opts.Logger = log
	e, err := engine.New(s, opts)
	if err != nil {
		pub.Close()
		s.Close()
		return nil, err
	}

	return &app{cfg: cfg, viper: v, log: log, store: s, events: pub, engine: e}, nil
}

func (r *app) Close() error {
	evErr := r.events.Close()
	if err := r.store.Close(); err != nil {
		return err
	}
	return evErr
}
