// Package config loads the treekeep configuration: built-in defaults, an
// optional YAML file, then TREEKEEP_* environment variables, each layer
// overriding the previous one.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/treekeep/treekeep/internal/treekeep/filter"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// EnvPrefix is the prefix of environment variables that override file and
// default values, e.g. TREEKEEP_SOURCE or TREEKEEP_FILTERS__MIN_SIZE.
const EnvPrefix = "TREEKEEP_"

// DefaultConfigPaths lists where a config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"treekeep.yaml",
	"treekeep.yml",
}

// FiltersConfig declares the filter chain in configuration form.
type FiltersConfig struct {
	ExcludePaths []string `koanf:"exclude_paths"`
	IncludeTypes []string `koanf:"include_types"`
	MinSize      uint64   `koanf:"min_size"`
	MaxSize      uint64   `koanf:"max_size"`
	NameInclude  []string `koanf:"name_include"`
	NameExclude  []string `koanf:"name_exclude"`
	MtimeAfter   uint64   `koanf:"mtime_after"`
	MtimeBefore  uint64   `koanf:"mtime_before"`
	Extensions   []string `koanf:"extensions"`
	UseIgnore    bool     `koanf:"use_ignore_file"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
}

// Config is the full application configuration.
type Config struct {
	Source          string        `koanf:"source"`
	Destination     string        `koanf:"destination"`
	Compress        bool          `koanf:"compress"`
	Package         bool          `koanf:"package"`
	PackageFileName string        `koanf:"package_file_name"`
	Password        string        `koanf:"password"`
	IntervalSeconds int           `koanf:"interval_seconds"`
	DebounceMs      int           `koanf:"debounce_ms"`
	Filters         FiltersConfig `koanf:"filters"`
	Logging         LoggingConfig `koanf:"logging"`
}

func defaultConfig() *Config {
	return &Config{
		PackageFileName: types.DefaultPackageFileName,
		IntervalSeconds: 60,
		DebounceMs:      1000,
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load builds the configuration from defaults, the first existing config
// file (or the explicit path, which must then exist), and environment
// variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	paths := DefaultConfigPaths
	required := false
	if path != "" {
		paths = []string{path}
		required = true
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if required {
				return nil, fmt.Errorf("config: %s: %w", p, err)
			}
			continue
		}
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", p, err)
		}
		break
	}

	// TREEKEEP_FILTERS__MIN_SIZE -> filters.min_size
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// BackupConfig converts the loaded configuration into the task parameter
// set.
func (c *Config) BackupConfig() types.BackupConfig {
	return types.BackupConfig{
		SourceDir:       c.Source,
		DestinationDir:  c.Destination,
		Compress:        c.Compress,
		Package:         c.Package,
		PackageFileName: c.PackageFileName,
		Password:        c.Password,
		IntervalSeconds: c.IntervalSeconds,
		DebounceMs:      c.DebounceMs,
	}
}

// BuildFilters compiles the configured filter chain. Regex and ignore-file
// errors surface here, at registration.
func (c *Config) BuildFilters() (filter.Chain, error) {
	var chain filter.Chain

	if len(c.Filters.ExcludePaths) > 0 {
		chain = append(chain, filter.NewPathExclude(c.Filters.ExcludePaths...))
	}
	if len(c.Filters.IncludeTypes) > 0 {
		chain = append(chain, filter.NewTypeInclude(c.Filters.IncludeTypes...))
	}
	if c.Filters.MinSize > 0 || c.Filters.MaxSize > 0 {
		chain = append(chain, filter.NewSizeRange(c.Filters.MinSize, c.Filters.MaxSize))
	}
	if len(c.Filters.NameInclude) > 0 {
		f, err := filter.NewNameInclude(c.Filters.NameInclude...)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	if len(c.Filters.NameExclude) > 0 {
		f, err := filter.NewNameExclude(c.Filters.NameExclude...)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	if c.Filters.MtimeAfter > 0 || c.Filters.MtimeBefore > 0 {
		end := c.Filters.MtimeBefore
		if end == 0 {
			end = ^uint64(0)
		}
		chain = append(chain, filter.NewTimeRange(c.Filters.MtimeAfter, end))
	}
	if len(c.Filters.Extensions) > 0 {
		chain = append(chain, filter.NewExtensionInclude(c.Filters.Extensions...))
	}
	if c.Filters.UseIgnore && c.Source != "" {
		f, err := filter.NewIgnoreFile(c.Source)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	return chain, nil
}
