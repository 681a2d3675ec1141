// Package config loads llist CLI configuration.
//
// Precedence (highest to lowest): flags > LLIST_* env vars > llist.yaml >
// defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// Transports.
const (
	TransportHTTP = "http"
	TransportExec = "exec"
)

// Output formats.
const (
	OutputTable = "table"
	OutputYAML  = "yaml"
	OutputJSON  = "json"
)

// Defaults.
const (
	DefaultTransport = TransportHTTP
	DefaultURL       = "http://127.0.0.1:8080"
	DefaultPrefix    = "/vgi"
	DefaultTimeout   = 10 * time.Second
	DefaultLogLevel  = "warn"
	DefaultOutput    = OutputTable
	DefaultNamespace = "test"
	DefaultSet       = "demo"
	DefaultBin       = "list"

	envPrefix = "LLIST_"
)

// Config holds all CLI configuration options.
type Config struct {
	Transport        string        `koanf:"transport"`
	URL              string        `koanf:"url"`
	Prefix           string        `koanf:"prefix"`
	Command          string        `koanf:"command"`
	Timeout          time.Duration `koanf:"timeout"`
	LogLevel         string        `koanf:"log_level"`
	RemoteLogLevel   string        `koanf:"remote_log_level"`
	CompressionLevel int           `koanf:"compression_level"`
	RateLimit        float64       `koanf:"rate_limit"`
	RateBurst        int           `koanf:"rate_burst"`
	Namespace        string        `koanf:"namespace"`
	Set              string        `koanf:"set"`
	Key              string        `koanf:"key"`
	Bin              string        `koanf:"bin"`
	UserModule       string        `koanf:"user_module"`
	Trace            bool          `koanf:"trace"`
	Output           string        `koanf:"output"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// findConfigFile finds the config file to use.
// Priority: explicit path > llist.yaml > llist.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"llist.yaml", "llist.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration from defaults, the config file, environment
// variables and flags. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"transport":         DefaultTransport,
		"url":               DefaultURL,
		"prefix":            DefaultPrefix,
		"timeout":           DefaultTimeout.String(),
		"log_level":         DefaultLogLevel,
		"compression_level": 0,
		"rate_limit":        0.0,
		"rate_burst":        1,
		"namespace":         DefaultNamespace,
		"set":               DefaultSet,
		"bin":               DefaultBin,
		"trace":             false,
		"output":            DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment variables: LLIST_USER_MODULE -> user_module
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	cfg.Transport = strings.ToLower(cfg.Transport)
	cfg.Output = strings.ToLower(cfg.Output)
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("url is required for the %s transport", TransportHTTP)
		}
	case TransportExec:
		if len(c.CommandArgs()) == 0 {
			return fmt.Errorf("command is required for the %s transport", TransportExec)
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportHTTP, TransportExec)
	}
	if !slices.Contains([]string{OutputTable, OutputYAML, OutputJSON}, c.Output) {
		return fmt.Errorf("unknown output format %q (want table, yaml or json)", c.Output)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 0 and 22")
	}
	if c.Bin == "" {
		return fmt.Errorf("bin is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := vgirpc.ParseLogLevel(c.RemoteLogLevel); err != nil {
		return fmt.Errorf("remote_log_level: %w", err)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// CommandArgs splits Command into the worker's argv.
func (c *Config) CommandArgs() []string {
	return strings.Fields(c.Command)
}
