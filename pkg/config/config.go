// Package config loads svgicon settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults ([Default])
//  2. svgicon.toml in the working directory, or the file named by --config
//  3. SVGICON_* environment variables
//  4. command-line flags the user set explicitly (applied by the CLI)
//
// Example svgicon.toml:
//
//	source = "assets/svg"
//	target = "src/icons"
//	ext = "js"
//	es6 = true
//	timeout = "5s"
//
//	[cache]
//	redis_url = "redis://localhost:6379/0"
//
//	[preview]
//	addr = "127.0.0.1:7070"
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/caarlos0/env/v11"

	"github.com/matzehuels/svgicon/pkg/asset"
	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/template"
)

// FileName is the config file looked up in the working directory.
const FileName = "svgicon.toml"

// Config holds every setting of a run.
type Config struct {
	Source   string        `toml:"source"   env:"SVGICON_SOURCE"`
	Target   string        `toml:"target"   env:"SVGICON_TARGET"`
	Pattern  string        `toml:"pattern"  env:"SVGICON_PATTERN"`
	Ext      string        `toml:"ext"      env:"SVGICON_EXT"`
	Template string        `toml:"template" env:"SVGICON_TEMPLATE"`
	ES6      bool          `toml:"es6"      env:"SVGICON_ES6"`
	Workers  int           `toml:"workers"  env:"SVGICON_WORKERS"`
	Timeout  time.Duration `toml:"timeout"  env:"SVGICON_TIMEOUT"`

	Cache   CacheConfig   `toml:"cache"   envPrefix:"SVGICON_CACHE_"`
	Preview PreviewConfig `toml:"preview" envPrefix:"SVGICON_PREVIEW_"`
	Watch   WatchConfig   `toml:"watch"   envPrefix:"SVGICON_WATCH_"`
}

// CacheConfig selects the sanitize cache backend. RedisURL wins over Dir.
type CacheConfig struct {
	Disabled bool          `toml:"disabled"  env:"DISABLED"`
	Dir      string        `toml:"dir"       env:"DIR"`
	RedisURL string        `toml:"redis_url" env:"REDIS_URL"`
	Prefix   string        `toml:"prefix"    env:"PREFIX"`
	TTL      time.Duration `toml:"ttl"       env:"TTL"`
}

// PreviewConfig configures the preview server.
type PreviewConfig struct {
	Addr string `toml:"addr" env:"ADDR"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `toml:"debounce" env:"DEBOUNCE"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Pattern: asset.DefaultPattern,
		Ext:     "js",
		Cache: CacheConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Preview: PreviewConfig{
			Addr: "127.0.0.1:7070",
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Load builds a Config from defaults, the config file and the environment.
// An empty path reads FileName from the working directory if it exists;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, required := path, true
	if file == "" {
		file, required = FileName, false
	}
	if err := cfg.decodeFile(file, required); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse environment")
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown key %q in %s", undecoded[0].String(), path)
	}
	return nil
}

// Style returns the module style selected by ES6.
func (c *Config) Style() template.Style {
	if c.ES6 {
		return template.StyleImport
	}
	return template.StyleRequire
}

// Validate checks field formats. Whether source and target are present is
// left to the command that needs them.
func (c *Config) Validate() error {
	if err := errors.ValidateExtension(c.Ext); err != nil {
		return err
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid pattern %q", c.Pattern)
	}
	if c.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must not be negative, got %d", c.Workers)
	}
	if c.Timeout < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "timeout must not be negative, got %s", c.Timeout)
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Watch.Debounce < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "watch debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}
