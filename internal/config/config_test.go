package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/logger"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.ListenAddr() != "127.0.0.1:37778" {
		t.Errorf("ListenAddr = %s", cfg.ListenAddr())
	}
	if cfg.HalfLife() != engine.DefaultHalfLife {
		t.Errorf("HalfLife = %v, want %v", cfg.HalfLife(), engine.DefaultHalfLife)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "fs" || cfg.Envelope.TopN != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[store]
backend = "sqlite"

[scoring]
file_overlap = 0.6
recency = 0.2
category = 0.2
half_life_days = 7

[[hints.rules]]
name = "proto"
patterns = ["**.proto"]
note = "Protobuf contract"
feature = "grpc"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEMPACK_SERVER_PORT", "4100")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("backend = %s", cfg.Store.Backend)
	}
	if cfg.Scoring.FileOverlap != 0.6 || cfg.HalfLife() != 7*24*time.Hour {
		t.Errorf("scoring = %+v", cfg.Scoring)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("port = %d, want env override 4100", cfg.Server.Port)
	}
	if cfg.Envelope.TopN != 5 {
		t.Errorf("top_n default lost: %d", cfg.Envelope.TopN)
	}
	if len(cfg.Hints.Rules) != 1 || cfg.Hints.Rules[0].Feature != "grpc" {
		t.Fatalf("hints = %+v", cfg.Hints.Rules)
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("EngineOptions: %v", err)
	}
	if notes := opts.Hints.Notes("api/order.proto"); len(notes) != 1 {
		t.Errorf("custom hint not applied: %v", notes)
	}
	if notes := opts.Hints.Notes("src/orderResolver.ts"); len(notes) != 1 {
		t.Errorf("default hints lost: %v", notes)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"weights":  "[scoring]\nfile_overlap = 0.9\nrecency = 0.9\ncategory = 0.2\n",
		"backend":  "[store]\nbackend = \"mongo\"\n",
		"postgres": "[store]\nbackend = \"postgres\"\n",
		"top_n":    "[envelope]\ntop_n = 0\n",
		"kafka":    "[events]\nbackend = \"kafka\"\n",
		"format":   "[log]\nformat = \"xml\"\n",
		"syntax":   "[store\n",
	}
	for name, data := range tests {
		path := filepath.Join(t.TempDir(), "config.toml")
		os.WriteFile(path, []byte(data), 0o600)
		if _, _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	cfg.Events = EventsConfig{Backend: "kafka", Brokers: []string{"localhost:9092"}, Topic: "packs"}
	cfg.Hints.Rules = []engine.HintRule{{Name: "proto", Patterns: []string{"**.proto"}, Note: "n"}}

	if err := Write(path, &cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[scoring]") {
		t.Errorf("rendered config:\n%s", data)
	}

	got, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Store.Backend != "sqlite" || got.Events.Topic != "packs" || len(got.Events.Brokers) != 1 {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.Hints.Rules) != 1 || got.Hints.Rules[0].Patterns[0] != "**.proto" {
		t.Errorf("hints round trip = %+v", got.Hints.Rules)
	}

	if err := Write(path, nil); err == nil {
		t.Error("nil config written")
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	if err := Write(path, &cfg); err != nil {
		t.Fatal(err)
	}

	_, v, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	changed := make(chan *Config, 16)
	notify := func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}
	if !Watch(v, logger.Nop(), notify) {
		t.Fatal("Watch refused a file-backed config")
	}

	cfg.Scoring.FileOverlap, cfg.Scoring.Recency = 0.7, 0.1
	if err := Write(path, &cfg); err != nil {
		t.Fatal(err)
	}

	// A truncate and a write may arrive as separate events.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Scoring.FileOverlap == 0.7 {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatchWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, v, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if Watch(v, logger.Nop(), func(*Config) {}) {
		t.Error("Watch accepted a config with no file")
	}
}
