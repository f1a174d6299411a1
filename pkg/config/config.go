// Package config loads effects player settings from an optional YAML file
// overlaid with EFFECTS_* environment variables, and serves them to the player
// as feature switches.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/go-drift/effects/pkg/downgrade"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "EFFECTS_"

// Config represents the optional effects.yaml configuration.
type Config struct {
	Downgrade DowngradeConfig `yaml:"downgrade"`
	Render    RenderConfig    `yaml:"render"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DowngradeConfig holds the force switches and the remote policy settings.
type DowngradeConfig struct {
	Force       bool     `yaml:"force" env:"FORCE_DOWNGRADE"`
	ResourceIDs []string `yaml:"resource_ids" env:"DOWNGRADE_RESOURCE_IDS" envSeparator:","`
	Scenes      []string `yaml:"scenes" env:"DOWNGRADE_SCENES" envSeparator:","`
	// DeviceLevel is "auto", "low", "medium" or "high".
	DeviceLevel      string `yaml:"device_level" env:"DEVICE_LEVEL"`
	MinDeviceLevel   string `yaml:"min_device_level" env:"MIN_DEVICE_LEVEL"`
	MinEngineVersion string `yaml:"min_engine_version" env:"MIN_ENGINE_VERSION"`
	CrashThreshold   int    `yaml:"crash_threshold" env:"CRASH_THRESHOLD"`
	LedgerPath       string `yaml:"ledger_path" env:"LEDGER_PATH"`
}

// RenderConfig maps device tiers to engine settings.
type RenderConfig struct {
	// Quality maps a device level name to the engine render level.
	Quality map[string]int `yaml:"quality"`
	// SurfaceScale lists resource ids with surface scaling enabled; "*" matches all.
	SurfaceScale []string `yaml:"surface_scale" env:"SURFACE_SCALE" envSeparator:","`
	// VideoHardDecode lists resource ids that decode video in hardware; "*" matches all.
	VideoHardDecode []string `yaml:"video_hw_decode" env:"VIDEO_HW_DECODE" envSeparator:","`
	FixTick         bool     `yaml:"fix_tick" env:"FIX_TICK"`
}

// FetchConfig controls downloads and the local cache.
type FetchConfig struct {
	CacheDir string        `yaml:"cache_dir" env:"CACHE_DIR"`
	Timeout  time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// Endpoint is the OTLP/HTTP collector address. Empty disables export.
	Endpoint string `yaml:"endpoint" env:"OTLP_ENDPOINT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Downgrade: DowngradeConfig{DeviceLevel: "auto"},
		Render: RenderConfig{
			Quality: map[string]int{"low": 0, "medium": 1, "high": 2},
		},
		Fetch:     FetchConfig{Timeout: 30 * time.Second},
		Telemetry: TelemetryConfig{ServiceName: "effects"},
	}
}

// Load reads path if it exists and overlays the process environment.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with an explicit environment. A nil environ reads the
// process environment.
func LoadWith(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be interpreted.
func (c *Config) Validate() error {
	for _, lvl := range []string{c.Downgrade.DeviceLevel, c.Downgrade.MinDeviceLevel} {
		if lvl == "" || lvl == "auto" {
			continue
		}
		if _, ok := downgrade.ParseDeviceLevel(lvl); !ok {
			return fmt.Errorf("invalid device level %q", lvl)
		}
	}
	for name := range c.Render.Quality {
		if _, ok := downgrade.ParseDeviceLevel(name); !ok {
			return fmt.Errorf("invalid render quality key %q", name)
		}
	}
	if v := c.Downgrade.MinEngineVersion; v != "" && !strings.HasPrefix(v, "v") {
		return fmt.Errorf("min_engine_version %q must start with v", v)
	}
	if c.Downgrade.CrashThreshold < 0 {
		return fmt.Errorf("crash_threshold must not be negative")
	}
	return nil
}

// PolicySettings converts the downgrade section for downgrade.Policy.
func (c *Config) PolicySettings() downgrade.PolicySettings {
	level, _ := downgrade.ParseDeviceLevel(c.Downgrade.DeviceLevel)
	minLevel, _ := downgrade.ParseDeviceLevel(c.Downgrade.MinDeviceLevel)
	return downgrade.PolicySettings{
		DeviceLevel:      level,
		MinDeviceLevel:   minLevel,
		MinEngineVersion: c.Downgrade.MinEngineVersion,
		CrashThreshold:   c.Downgrade.CrashThreshold,
	}
}

// RenderLevel maps a device tier to an engine render level. Unknown tiers
// use the high setting.
func (c *Config) RenderLevel(level downgrade.DeviceLevel) int {
	if level == downgrade.LevelUnknown {
		level = downgrade.High
	}
	if q, ok := c.Render.Quality[level.String()]; ok {
		return q
	}
	return int(level) - 1
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == "*" || v == id {
			return true
		}
	}
	return false
}
