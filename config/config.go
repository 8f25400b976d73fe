// Package config loads bundlectl settings from an optional file and
// BUNDLECTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/infracollect/bundle-descriptor/cachepath"
)

// EnvPrefix prefixes every environment override, e.g. BUNDLECTL_STORE_URL.
const EnvPrefix = "BUNDLECTL"

// Config is the resolved tool configuration.
type Config struct {
	// CacheRoot overrides the platform default cache root.
	CacheRoot  string        `mapstructure:"cache_root"`
	SiteURL    string        `mapstructure:"site_url"`
	Platform   string        `mapstructure:"platform"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	TempDir    string        `mapstructure:"temp_dir"`
	Store      StoreConfig   `mapstructure:"store"`
	Log        LogConfig     `mapstructure:"log"`

	// FallbackRoots are read-only bundle caches searched after the primary
	// one. The environment form is comma separated.
	FallbackRoots []string `mapstructure:"fallback_roots"`
}

type StoreConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Load reads the file at path, if any, layers environment overrides on
// top and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), mapstructure.StringToSliceHookFunc(","))
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.CacheRoot != "" {
		abs, err := filepath.Abs(cfg.CacheRoot)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve cache root: %w", err)
		}
		cfg.CacheRoot = abs
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_root", "")
	v.SetDefault("site_url", "")
	v.SetDefault("platform", "")
	v.SetDefault("retry_delay", "500ms")
	v.SetDefault("temp_dir", "")
	v.SetDefault("fallback_roots", []string{})
	v.SetDefault("store.url", "")
	v.SetDefault("store.token", "")
	v.SetDefault("store.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay))
	}
	if c.Store.Timeout < 0 {
		errs = append(errs, fmt.Errorf("store.timeout must not be negative, got %s", c.Store.Timeout))
	}
	if !validLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level))
	}
	if c.Log.MaxSize < 0 || c.Log.MaxBackups < 0 {
		errs = append(errs, errors.New("log.max_size and log.max_backups must not be negative"))
	}
	if c.Platform != "" {
		if _, err := cachepath.ParsePlatform(c.Platform); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResolvedPlatform returns the configured platform, or the running one.
func (c *Config) ResolvedPlatform() cachepath.Platform {
	if c.Platform == "" {
		return cachepath.CurrentPlatform()
	}
	p, err := cachepath.ParsePlatform(c.Platform)
	if err != nil {
		return cachepath.CurrentPlatform()
	}
	return p
}

// Resolver returns a cache path resolver rooted at CacheRoot, or at the
// platform default when unset.
func (c *Config) Resolver() (*cachepath.Resolver, error) {
	if c.CacheRoot != "" {
		return &cachepath.Resolver{Root: c.CacheRoot}, nil
	}
	return cachepath.NewResolver()
}

func validLevel(level string) bool {
	for _, l := range logLevels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

// durationDecodeHook accepts Go duration strings or a bare number of
// seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return time.Duration(0), nil
			}
			if d, err := time.ParseDuration(v); err == nil {
				return d, nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("cannot parse duration %q", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case time.Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}
