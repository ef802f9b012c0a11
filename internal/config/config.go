// Package config loads and validates the gateway configuration.
//
// Configuration comes from a YAML file with environment overrides for the
// values that commonly differ per deployment (PORT). Every field has a
// default so an empty file (or no file at all) yields a runnable gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the pairing gateway.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":3000".
	Listen string `yaml:"listen"`

	// BotName brands the delivery messages and the /status response.
	BotName string `yaml:"bot_name"`

	// TokenMarker prefixes every encoded session token (MARKER~base64).
	TokenMarker string `yaml:"token_marker"`

	// WorkDir is the root under which per-attempt workspaces are created.
	WorkDir string `yaml:"work_dir"`

	Timeouts TimeoutConfig   `yaml:"timeouts"`
	Rate     RateLimitConfig `yaml:"rate_limit"`
	Log      LogConfig       `yaml:"log"`
}

// Duration wraps time.Duration so YAML values like "30s" decode directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler using time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TimeoutConfig groups the lifecycle timers of a pairing attempt.
type TimeoutConfig struct {
	// QRWait bounds how long /qr blocks waiting for the first QR payload.
	QRWait Duration `yaml:"qr_wait"`

	// Settle is the delay between the connection opening and the first
	// credential read, giving the client time to flush creds.json.
	Settle Duration `yaml:"settle"`

	// Teardown is the grace delay between successful delivery and
	// workspace destruction, so the outbound sends can flush.
	Teardown Duration `yaml:"teardown"`

	// Retention is how long a terminal session stays observable via
	// status lookups before it is evicted.
	Retention Duration `yaml:"retention"`
}

// RateLimitConfig configures per-IP admission control on the challenge
// endpoints. RPM <= 0 disables limiting.
type RateLimitConfig struct {
	RPM   int `yaml:"rpm"`
	Burst int `yaml:"burst"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:      ":3000",
		BotName:     "Nebula Bot",
		TokenMarker: "NEBULA",
		WorkDir:     "./temp",
		Timeouts: TimeoutConfig{
			QRWait:    Duration(30 * time.Second),
			Settle:    Duration(3 * time.Second),
			Teardown:  Duration(2 * time.Second),
			Retention: Duration(30 * time.Second),
		},
		Rate: RateLimitConfig{RPM: 30, Burst: 5},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads the config file at path, applies env overrides and validates.
// A missing file is not an error: defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			cfg.Listen = ":" + port
		}
	}
	if dir := os.Getenv("NEBULA_WORK_DIR"); dir != "" {
		cfg.WorkDir = dir
	}
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if c.TokenMarker == "" {
		return fmt.Errorf("token_marker is required")
	}
	for name, d := range map[string]Duration{
		"qr_wait":   c.Timeouts.QRWait,
		"retention": c.Timeouts.Retention,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", name)
		}
	}
	if c.Timeouts.Settle < 0 || c.Timeouts.Teardown < 0 {
		return fmt.Errorf("timeouts.settle and timeouts.teardown must not be negative")
	}
	return nil
}
