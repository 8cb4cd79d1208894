package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/store"
)

// Config holds all mempack configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Store      StoreConfig      `toml:"store" mapstructure:"store"`
	Scoring    ScoringConfig    `toml:"scoring" mapstructure:"scoring"`
	Complexity ComplexityConfig `toml:"complexity" mapstructure:"complexity"`
	Envelope   EnvelopeConfig   `toml:"envelope" mapstructure:"envelope"`
	Writer     WriterConfig     `toml:"writer" mapstructure:"writer"`
	Events     EventsConfig     `toml:"events" mapstructure:"events"`
	Hints      HintsConfig      `toml:"hints" mapstructure:"hints"`
	Hooks      HooksConfig      `toml:"hooks" mapstructure:"hooks"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" mapstructure:"bind"`
	Port int    `toml:"port" mapstructure:"port"`
}

type StoreConfig struct {
	Backend string `toml:"backend" mapstructure:"backend"` // "fs", "sqlite", "postgres"
	Root    string `toml:"root" mapstructure:"root"`       // fs; resolved at runtime when empty
	Path    string `toml:"path" mapstructure:"path"`       // sqlite; resolved at runtime when empty
	DSN     string `toml:"dsn" mapstructure:"dsn"`         // postgres
}

type ScoringConfig struct {
	FileOverlap  float64 `toml:"file_overlap" mapstructure:"file_overlap"`
	Recency      float64 `toml:"recency" mapstructure:"recency"`
	Category     float64 `toml:"category" mapstructure:"category"`
	HalfLifeDays float64 `toml:"half_life_days" mapstructure:"half_life_days"`
}

type ComplexityConfig struct {
	FileCount        float64 `toml:"file_count" mapstructure:"file_count"`
	Overlap          float64 `toml:"overlap" mapstructure:"overlap"`
	FileCountCeiling int     `toml:"file_count_ceiling" mapstructure:"file_count_ceiling"`
}

type EnvelopeConfig struct {
	TopN int `toml:"top_n" mapstructure:"top_n"`
}

type WriterConfig struct {
	MaxAttempts int `toml:"max_attempts" mapstructure:"max_attempts"`
}

type EventsConfig struct {
	Backend string   `toml:"backend" mapstructure:"backend"` // "none", "kafka"
	Brokers []string `toml:"brokers" mapstructure:"brokers"`
	Topic   string   `toml:"topic" mapstructure:"topic"`
}

// HintsConfig extends or overrides the built-in path taxonomy. A rule with
// the name of a built-in rule replaces it.
type HintsConfig struct {
	Rules []engine.HintRule `toml:"rules" mapstructure:"rules"`
}

type HooksConfig struct {
	Timeout int `toml:"timeout" mapstructure:"timeout"` // seconds
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"` // "pretty", "text", "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	w := engine.DefaultWeights()
	c := engine.DefaultComplexity()
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Store: StoreConfig{
			Backend: store.BackendFS,
		},
		Scoring: ScoringConfig{
			FileOverlap:  w.FileOverlap,
			Recency:      w.Recency,
			Category:     w.Category,
			HalfLifeDays: engine.DefaultHalfLife.Hours() / 24,
		},
		Complexity: ComplexityConfig{
			FileCount:        c.FileCount,
			Overlap:          c.Overlap,
			FileCountCeiling: c.FileCountCeiling,
		},
		Envelope: EnvelopeConfig{TopN: engine.DefaultTopN},
		Writer:   WriterConfig{MaxAttempts: engine.DefaultMaxAttempts},
		Events: EventsConfig{
			Backend: "none",
			Brokers: []string{},
			Topic:   "mempack.pack.updated",
		},
		Hooks: HooksConfig{Timeout: 5},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Weights returns the scoring weights.
func (c *Config) Weights() engine.Weights {
	return engine.Weights{
		FileOverlap: c.Scoring.FileOverlap,
		Recency:     c.Scoring.Recency,
		Category:    c.Scoring.Category,
	}
}

// HalfLife returns the recency half-life.
func (c *Config) HalfLife() time.Duration {
	return time.Duration(c.Scoring.HalfLifeDays * float64(24*time.Hour))
}

// StoreOptions maps the store section onto store.Options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend: c.Store.Backend,
		Root:    c.Store.Root,
		Path:    c.Store.Path,
		DSN:     c.Store.DSN,
	}
}

// EngineOptions builds engine options from the config. Events, logger and
// clock are left for the caller.
func (c *Config) EngineOptions() (engine.Options, error) {
	hints, err := engine.NewHintTable(engine.DefaultHintRules(), c.Hints.Rules)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Weights:  c.Weights(),
		HalfLife: c.HalfLife(),
		Complexity: engine.ComplexityParams{
			FileCount:        c.Complexity.FileCount,
			Overlap:          c.Complexity.Overlap,
			FileCountCeiling: c.Complexity.FileCountCeiling,
		},
		TopN:        c.Envelope.TopN,
		MaxAttempts: c.Writer.MaxAttempts,
		Hints:       hints,
	}, nil
}

// Validate checks value ranges and the weight-sum invariant.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Store.Backend {
	case store.BackendFS, store.BackendSQLite:
	case store.BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if err := c.Weights().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	if c.Scoring.HalfLifeDays <= 0 {
		errs = append(errs, fmt.Errorf("scoring.half_life_days must be > 0, got %v", c.Scoring.HalfLifeDays))
	}
	cp := engine.ComplexityParams{FileCount: c.Complexity.FileCount, Overlap: c.Complexity.Overlap, FileCountCeiling: c.Complexity.FileCountCeiling}
	if err := cp.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("complexity: %w", err))
	}
	if c.Envelope.TopN <= 0 {
		errs = append(errs, fmt.Errorf("envelope.top_n must be > 0, got %d", c.Envelope.TopN))
	}
	if c.Writer.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("writer.max_attempts must be > 0, got %d", c.Writer.MaxAttempts))
	}
	switch c.Events.Backend {
	case "", "none":
	case "kafka":
		if len(c.Events.Brokers) == 0 || c.Events.Topic == "" {
			errs = append(errs, errors.New("events: kafka needs brokers and topic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events.backend %q", c.Events.Backend))
	}
	if _, err := engine.NewHintTable(c.Hints.Rules); err != nil {
		errs = append(errs, fmt.Errorf("hints: %w", err))
	}
	switch c.Log.Format {
	case "pretty", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DefaultPath returns ~/.mempack/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home dir: %w", err)
	}
	return filepath.Join(home, ".mempack", "config.toml"), nil
}

// Load reads configuration with precedence env > file > defaults. An empty
// path looks for ~/.mempack/config.toml and tolerates its absence; an
// explicit path must exist. The returned viper instance can be handed to
// Watch.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		def, err := DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Dir(def))
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// MEMPACK_SERVER_PORT, MEMPACK_STORE_BACKEND, MEMPACK_SCORING_RECENCY, ...
	v.SetEnvPrefix("MEMPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers Default() into viper under dotted keys so that
// environment variables resolve for every key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.root", d.Store.Root)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", d.Store.DSN)

	v.SetDefault("scoring.file_overlap", d.Scoring.FileOverlap)
	v.SetDefault("scoring.recency", d.Scoring.Recency)
	v.SetDefault("scoring.category", d.Scoring.Category)
	v.SetDefault("scoring.half_life_days", d.Scoring.HalfLifeDays)

	v.SetDefault("complexity.file_count", d.Complexity.FileCount)
	v.SetDefault("complexity.overlap", d.Complexity.Overlap)
	v.SetDefault("complexity.file_count_ceiling", d.Complexity.FileCountCeiling)

	v.SetDefault("envelope.top_n", d.Envelope.TopN)
	v.SetDefault("writer.max_attempts", d.Writer.MaxAttempts)

	v.SetDefault("events.backend", d.Events.Backend)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("hooks.timeout", d.Hooks.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Watch reloads the config file on change and hands every valid result to
// onChange. Invalid edits are logged and ignored. Returns false when v was
// not loaded from a file.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) bool {
	file := v.ConfigFileUsed()
	if file == "" {
		return false
	}
	if _, err := os.Stat(file); err != nil {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Warn("rejecting config reload", "file", e.Name, "error", err)
			return
		}
		log.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return true
}

// Write renders cfg as TOML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot write nil config")
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
