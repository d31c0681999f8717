package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/browserpilot/browserpilot/internal/task"
)

const (
	BackendChromedp   = "chromedp"
	BackendPlaywright = "playwright"
)

// TimingConfig mirrors task.Timing with millisecond fields for yaml.
type TimingConfig struct {
	NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
	SettleDelayMs       int `yaml:"settle_delay_ms"`
	ActionDelayMs       int `yaml:"action_delay_ms"`
	RetryBaseDelayMs    int `yaml:"retry_base_delay_ms"`
}

type Config struct {
	Backend  string       `yaml:"backend"`
	Headless bool         `yaml:"headless"`
	Model    string       `yaml:"model"`
	Verbose  bool         `yaml:"verbose"`
	Timing   TimingConfig `yaml:"timing"`
}

func Default() Config {
	t := task.DefaultTiming()
	return Config{
		Backend:  BackendChromedp,
		Headless: false,
		Timing: TimingConfig{
			NavigationTimeoutMs: int(t.NavigationTimeout.Milliseconds()),
			SettleDelayMs:       int(t.SettleDelay.Milliseconds()),
			ActionDelayMs:       int(t.ActionDelay.Milliseconds()),
			RetryBaseDelayMs:    int(t.RetryBaseDelay.Milliseconds()),
		},
	}
}

// Load builds the configuration from defaults, an optional yaml file and
// environment overrides, in that precedence order. A .env file in the
// working directory is read first so OPENAI_API_KEY and the
// BROWSERPILOT_* variables can live there.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		if _, err := os.Stat("browserpilot.yaml"); err == nil {
			path = "browserpilot.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Backend != BackendChromedp && cfg.Backend != BackendPlaywright {
		return cfg, fmt.Errorf("unknown browser backend %q", cfg.Backend)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BROWSERPILOT_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("BROWSERPILOT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("BROWSERPILOT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}
	if v := os.Getenv("BROWSERPILOT_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
}

// TaskTiming converts the millisecond fields into the engine's Timing,
// falling back to defaults for unset values.
func (c Config) TaskTiming() task.Timing {
	def := task.DefaultTiming()
	t := task.Timing{
		NavigationTimeout: msOrDefault(c.Timing.NavigationTimeoutMs, def.NavigationTimeout),
		SettleDelay:       msOrDefault(c.Timing.SettleDelayMs, def.SettleDelay),
		ActionDelay:       msOrDefault(c.Timing.ActionDelayMs, def.ActionDelay),
		RetryBaseDelay:    msOrDefault(c.Timing.RetryBaseDelayMs, def.RetryBaseDelay),
	}
	return t
}

func msOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
