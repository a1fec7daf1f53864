// Package daemon manages the rivals daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/tutu-network/rivals/internal/app/game"
	"github.com/tutu-network/rivals/internal/infra/scheduler"
)

// Config holds all daemon configuration.
type Config struct {
	Game      GameConfig      `toml:"game"`
	API       APIConfig       `toml:"api"`
	Narrator  NarratorConfig  `toml:"narrator"`
	Store     StoreConfig     `toml:"store"`
	Retry     RetryConfig     `toml:"retry"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// GameConfig controls the reconciliation engine.
type GameConfig struct {
	Player           string `toml:"player" env:"RIVALS_PLAYER"`
	Timezone         string `toml:"timezone" env:"RIVALS_TIMEZONE"` // IANA name; "" or "Local" uses the host zone
	Debounce         string `toml:"debounce"`
	TickInterval     string `toml:"tick_interval"`
	CatchUpThreshold string `toml:"catch_up_threshold"`
	WriteTimeout     string `toml:"write_timeout"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host" env:"RIVALS_API_HOST"`
	Port int    `toml:"port" env:"RIVALS_API_PORT"`
}

// NarratorConfig points at an OpenAI-compatible completions endpoint.
// With no base URL the built-in templates are used.
type NarratorConfig struct {
	BaseURL   string `toml:"base_url" env:"RIVALS_NARRATOR_URL"`
	Model     string `toml:"model" env:"RIVALS_NARRATOR_MODEL"`
	APIKey    string `toml:"api_key" env:"RIVALS_NARRATOR_API_KEY"`
	Timeout   string `toml:"timeout"`
	MaxTokens int    `toml:"max_tokens"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `toml:"driver" env:"RIVALS_STORE"` // sqlite | memory
	Dir    string `toml:"dir" env:"RIVALS_STORE_DIR"`
	// KeepDays is how many days of baselines to keep; 0 keeps everything.
	KeepDays int `toml:"keep_days"`
}

// RetryConfig controls backoff for failed writes.
type RetryConfig struct {
	BaseDelay string `toml:"base_delay"`
	MaxDelay  string `toml:"max_delay"`
}

// TelemetryConfig controls metrics and tracing.
type TelemetryConfig struct {
	Prometheus   bool    `toml:"prometheus" env:"RIVALS_PROMETHEUS"`
	OTLPEndpoint string  `toml:"otlp_endpoint" env:"RIVALS_OTLP_ENDPOINT"`
	SampleRatio  float64 `toml:"sample_ratio"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	File string `toml:"file" env:"RIVALS_LOG_FILE"` // empty logs to stderr only
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	homeDir := rivalsHome()
	return Config{
		Game: GameConfig{
			Player:           "default",
			Timezone:         "Local",
			Debounce:         "1s",
			TickInterval:     "1m",
			CatchUpThreshold: "6m",
			WriteTimeout:     "5s",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 11480,
		},
		Narrator: NarratorConfig{
			Model:     "llama3.2",
			Timeout:   "5s",
			MaxTokens: 80,
		},
		Store: StoreConfig{
			Driver:   "sqlite",
			Dir:      homeDir,
			KeepDays: 30,
		},
		Retry: RetryConfig{
			BaseDelay: "1s",
			MaxDelay:  "1m",
		},
		Telemetry: TelemetryConfig{
			Prometheus:  true,
			SampleRatio: 1,
		},
	}
}

// LoadConfig reads config from $RIVALS_HOME/config.toml, falling back to
// defaults, then applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom is LoadConfig with an explicit file path.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	// Only variables that are set override the file.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $RIVALS_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Game.Player == "" {
		return errors.New("game.player must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"game.debounce":           c.Game.Debounce,
		"game.tick_interval":      c.Game.TickInterval,
		"game.catch_up_threshold": c.Game.CatchUpThreshold,
		"game.write_timeout":      c.Game.WriteTimeout,
		"narrator.timeout":        c.Narrator.Timeout,
		"retry.base_delay":        c.Retry.BaseDelay,
		"retry.max_delay":         c.Retry.MaxDelay,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Store.KeepDays == 1 || c.Store.KeepDays < 0 {
		// The closing day's baseline must survive until the next close.
		return fmt.Errorf("store.keep_days must be 0 or at least 2, got %d", c.Store.KeepDays)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1], got %v", c.Telemetry.SampleRatio)
	}
	return nil
}

// Location resolves the configured calendar time zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Game.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Game.Timezone)
	if err != nil {
		return nil, fmt.Errorf("game.timezone: %w", err)
	}
	return loc, nil
}

// EngineConfig converts the [game], [narrator] and [retry] sections.
func (c Config) EngineConfig() (game.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return game.Config{}, err
	}
	gc := game.DefaultConfig()
	gc.Key = c.Game.Player
	gc.Location = loc
	gc.Debounce = parseDuration(c.Game.Debounce, gc.Debounce)
	gc.TickInterval = parseDuration(c.Game.TickInterval, gc.TickInterval)
	gc.CatchUpThreshold = parseDuration(c.Game.CatchUpThreshold, gc.CatchUpThreshold)
	gc.WriteTimeout = parseDuration(c.Game.WriteTimeout, gc.WriteTimeout)
	gc.NarratorTimeout = parseDuration(c.Narrator.Timeout, gc.NarratorTimeout)
	gc.Retry = scheduler.RetryConfig{
		BaseDelay: parseDuration(c.Retry.BaseDelay, scheduler.DefaultRetryConfig().BaseDelay),
		MaxDelay:  parseDuration(c.Retry.MaxDelay, scheduler.DefaultRetryConfig().MaxDelay),
	}
	return gc, nil
}

// Addr is the host:port the API listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// ConfigPath is the location of the config file.
func ConfigPath() string {
	return filepath.Join(rivalsHome(), "config.toml")
}

// rivalsHome returns the rivals data directory.
func rivalsHome() string {
	if env := os.Getenv("RIVALS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rivals")
}

// RivalsHome is exported for use by other packages.
func RivalsHome() string {
	return rivalsHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
