// Package config provides configuration loading for buildperf.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDir is the per-user config directory under the home directory.
	DefaultDir = ".buildperf"
	// ConfigFile is the config file name inside DefaultDir.
	ConfigFile = "config.yaml"
	// EnvConfigDir overrides the config base directory.
	EnvConfigDir = "BUILDPERF_CONFIG"
	// EnvLogLevel overrides the configured log level.
	EnvLogLevel = "BUILDPERF_LOG_LEVEL"
)

// DefaultPeriod is the default sampling period. Smaller periods trade
// sampler overhead for resolution.
const DefaultPeriod = 100 * time.Millisecond

// Duration wraps time.Duration with YAML string parsing ("10ms", "1s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// CompilerConfig describes how to invoke the instrumented compiler.
type CompilerConfig struct {
	// Command is the compiler binary to spawn in each target directory.
	Command string `yaml:"command"`
	// Args are passed to the compiler; they should request phase-boundary
	// signal emission on stdout.
	Args []string `yaml:"args"`
	// SignalPrefix marks phase signal lines on the compiler's stdout.
	SignalPrefix string `yaml:"signal_prefix"`
}

// SamplingConfig controls the frame sampler.
type SamplingConfig struct {
	// Period is the interval between frames.
	Period Duration `yaml:"period"`
}

// TargetsConfig controls benchmark target discovery.
type TargetsConfig struct {
	// Root is the directory scanned for benchmark projects.
	Root string `yaml:"root"`
	// Manifest is the file a directory must contain to count as a target.
	Manifest string `yaml:"manifest"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the root buildperf configuration.
type Config struct {
	Compiler CompilerConfig `yaml:"compiler"`
	Sampling SamplingConfig `yaml:"sampling"`
	Targets  TargetsConfig  `yaml:"targets"`
	// Output is the report file path.
	Output string    `yaml:"output"`
	Log    LogConfig `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Command:      "forc",
			Args:         []string{"build", "--profile-phases"},
			SignalPrefix: "/buildperf",
		},
		Sampling: SamplingConfig{
			Period: Duration(DefaultPeriod),
		},
		Targets: TargetsConfig{
			Root:     "./tests",
			Manifest: "Forc.toml",
		},
		Output: "benchmarks.json",
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Compiler.Command == "" {
		return fmt.Errorf("compiler.command must not be empty")
	}
	if c.Compiler.SignalPrefix == "" {
		return fmt.Errorf("compiler.signal_prefix must not be empty")
	}
	if time.Duration(c.Sampling.Period) <= 0 {
		return fmt.Errorf("sampling.period must be positive, got %s", time.Duration(c.Sampling.Period))
	}
	if c.Targets.Root == "" {
		return fmt.Errorf("targets.root must not be empty")
	}
	if c.Targets.Manifest == "" {
		return fmt.Errorf("targets.manifest must not be empty")
	}
	return nil
}

// Loader resolves and loads the config file.
type Loader struct {
	baseDir string
}

// NewLoader creates a config loader. The base directory is resolved in this
// order:
//  1. BUILDPERF_CONFIG environment variable.
//  2. User home directory.
//  3. Current directory (environments without a home dir).
//
// The loader never fails construction; a missing config file yields defaults.
func NewLoader() *Loader {
	if baseDir := os.Getenv(EnvConfigDir); baseDir != "" {
		return &Loader{baseDir: baseDir}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return &Loader{baseDir: "."}
	}
	return &Loader{baseDir: filepath.Join(homeDir, DefaultDir)}
}

// ConfigPath returns the path of the config file this loader reads.
func (l *Loader) ConfigPath() string {
	return filepath.Join(l.baseDir, ConfigFile)
}

// Load reads the config file, applies env overrides, and validates.
// A missing file is not an error; defaults are returned.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(l.ConfigPath())
	switch {
	case os.IsNotExist(err):
		// Defaults + env overrides.
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", l.ConfigPath(), err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", l.ConfigPath(), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", l.ConfigPath(), err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Level = level
	}
}
