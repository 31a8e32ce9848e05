package systems

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config configures a scheduler built through the Builder.
type Config struct {
	Scheduler SchedulerConfig `toml:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// SchedulerConfig controls tick pacing and parallel fan-out.
type SchedulerConfig struct {
	Workers  int           `toml:"workers" yaml:"workers"`     // parallel group fan-out limit, 0 = GOMAXPROCS
	TickRate time.Duration `toml:"tick_rate" yaml:"tick_rate"` // interval used by Run
}

// LoggingConfig selects the zap logger built by NewLogger.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // console or json
}

// MetricsConfig controls Prometheus registration and the CLI endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" yaml:"namespace"`
	Addr      string `toml:"addr" yaml:"addr"` // listen address of the CLI metrics endpoint
}

// DefaultConfig returns the configuration used when none is loaded.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			TickRate: 50 * time.Millisecond, // 20 TPS
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "systems",
			Addr:      "127.0.0.1:9464",
		},
	}
}

// LoadConfig reads a TOML or YAML file, chosen by extension, over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
