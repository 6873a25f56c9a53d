// Package config handles vhoststats configuration.
//
// Configuration is loaded with overlay semantics:
//
//  1. Start with built-in defaults (embedded from default.toml)
//  2. Overlay with config file values (if the file exists)
//  3. CLI flags and environment variables override at runtime (handled
//     by the CLI layer)
//
// The TOML decoder only sets fields present in the file, leaving the
// rest at their defaults. A config file that exists but does not parse
// is an error, not a silent fallback.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/kmem"
	"github.com/frobware/go-vhoststats/logging"
)

//go:embed default.toml
var defaultConfigTOML string

// DefaultConfigPath is where Load looks when given no path.
const DefaultConfigPath = "/etc/vhoststats/vhoststats.toml"

// Config is the top-level configuration.
type Config struct {
	Sysfs   SysfsConfig   `toml:"sysfs"`
	Memory  MemoryConfig  `toml:"memory"`
	Logging LoggingConfig `toml:"logging"`
	Store   StoreConfig   `toml:"store"`
	Monitor MonitorConfig `toml:"monitor"`
}

// SysfsConfig locates the stats pointer control files.
type SysfsConfig struct {
	Base string `toml:"base"`
}

// MemoryConfig selects how kernel memory is read.
type MemoryConfig struct {
	Strategy string `toml:"strategy"`
	Device   string `toml:"device"`
	// KernelFloor is hexadecimal text, with or without 0x.
	KernelFloor string `toml:"kernel_floor"`
	CopySyscall uint   `toml:"copy_syscall"`
}

// LoggingConfig controls logging.
type LoggingConfig struct {
	// Level is a log spec, e.g. "info" or "info,kmem=debug".
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// Components are layered over Level; they win over overrides of the
	// same component written in Level.
	Components map[string]string `toml:"components"`
}

// StoreConfig locates the sample database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// MonitorConfig controls polling.
type MonitorConfig struct {
	Interval string `toml:"interval"`
}

// ToSpec returns the log spec: Level, with Components appended in
// name order. An empty Level with components means an info base.
func (c *LoggingConfig) ToSpec() string {
	if len(c.Components) == 0 {
		return c.Level
	}
	base := strings.TrimSpace(c.Level)
	if base == "" {
		base = "info"
	}
	parts := []string{base}
	for _, component := range slices.Sorted(maps.Keys(c.Components)) {
		parts = append(parts, component+"="+c.Components[component])
	}
	return strings.Join(parts, ",")
}

// DefaultConfig returns the configuration in the embedded default.toml.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		// default.toml is compiled in; failing here is a build defect.
		panic(fmt.Sprintf("config: embedded default.toml: %v", err))
	}
	return cfg
}

// Load reads path over the defaults. A missing file yields the
// defaults; an unreadable or invalid one is an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}

	return cfg, cfg.Validate()
}

// Validate checks every value that can be checked without touching
// the system.
func (c *Config) Validate() error {
	var errs []error
	if c.Sysfs.Base == "" {
		errs = append(errs, errors.New("sysfs.base must not be empty"))
	}
	if _, err := kmem.ParseStrategyName(c.Memory.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("memory.strategy: %w", err))
	}
	if _, err := c.Memory.Floor(); err != nil {
		errs = append(errs, fmt.Errorf("memory.kernel_floor: %w", err))
	}
	if _, err := logging.ParseSpec(c.Logging.ToSpec()); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging.format: %w", err))
	}
	if _, err := c.Monitor.PollInterval(); err != nil {
		errs = append(errs, fmt.Errorf("monitor.interval: %w", err))
	}
	return errors.Join(errs...)
}

// Floor parses KernelFloor. Empty means vhoststats.DefaultKernelFloor.
func (c *MemoryConfig) Floor() (vhoststats.KernelAddress, error) {
	if strings.TrimSpace(c.KernelFloor) == "" {
		return vhoststats.DefaultKernelFloor, nil
	}
	return vhoststats.ParseKernelAddress(c.KernelFloor)
}

// Options converts the memory section into kmem options.
func (c *MemoryConfig) Options(logger *slog.Logger) (kmem.Options, error) {
	floor, err := c.Floor()
	if err != nil {
		return kmem.Options{}, err
	}
	return kmem.Options{
		Strategy:    c.Strategy,
		Device:      c.Device,
		Floor:       floor,
		CopySyscall: uintptr(c.CopySyscall),
		Logger:      logger,
	}, nil
}

// PollInterval parses Interval. It must be positive; empty means one
// second.
func (c *MonitorConfig) PollInterval() (time.Duration, error) {
	if strings.TrimSpace(c.Interval) == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %s must be positive", d)
	}
	return d, nil
}
