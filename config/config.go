// Package config loads client and storefront settings from a YAML file with
// environment overrides.
package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/query"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file.
const (
	EnvStaleTime       = "QUERY_STALE_TIME"
	EnvCacheTime       = "QUERY_CACHE_TIME"
	EnvGCInterval      = "QUERY_GC_INTERVAL"
	EnvRetry           = "QUERY_RETRY"
	EnvRetryDelay      = "QUERY_RETRY_DELAY"
	EnvLogLevel        = logger.EnvLogLevel
	EnvStorefrontURL   = "STOREFRONT_URL"
	EnvStorefrontToken = "STOREFRONT_TOKEN"
	EnvConfigFile      = "QUERY_CONFIG"
)

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration read from strings such as "90s", "1d" or
// "infinity".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	if time.Duration(d) == query.Forever {
		return "infinity", nil
	}
	return str2duration.String(time.Duration(d)), nil
}

// ParseDuration parses a duration, accepting day and week units. "infinity"
// (or "forever") maps to query.Forever.
func ParseDuration(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "infinity", "inf", "forever":
		return query.Forever, nil
	}
	d, err := str2duration.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	return d, nil
}

// QueryConfig holds the client defaults.
type QueryConfig struct {
	StaleTime  Duration `yaml:"stale_time" validate:"gte=0"`
	CacheTime  Duration `yaml:"cache_time" validate:"gte=0"`
	GCInterval Duration `yaml:"gc_interval" validate:"gte=0"`
	// Retry is the number of additional attempts after a failed fetch.
	Retry      int      `yaml:"retry" validate:"gte=0,lte=10"`
	RetryDelay Duration `yaml:"retry_delay" validate:"gte=0"`
}

// StorefrontConfig locates the storefront API.
type StorefrontConfig struct {
	URL     string   `yaml:"url" validate:"required,url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout" validate:"gte=0"`
}

// Config is the complete configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error none off"`
	Query      QueryConfig      `yaml:"query"`
	Storefront StorefrontConfig `yaml:"storefront"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Query: QueryConfig{
			CacheTime:  Duration(query.DefaultCacheTime),
			GCInterval: Duration(query.DefaultGCInterval),
			Retry:      query.DefaultRetryCount,
		},
		Storefront: StorefrontConfig{
			URL:     "http://localhost:8080",
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Load reads the file at path on top of the defaults, applies the
// environment and validates the result. An empty path skips the file.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := readFile(ctx, path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(path)
		ch <- result{data, err}
	}()
	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ApplyEnv overrides fields from the environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	durations := []struct {
		name   string
		target *Duration
	}{
		{EnvStaleTime, &c.Query.StaleTime},
		{EnvCacheTime, &c.Query.CacheTime},
		{EnvGCInterval, &c.Query.GCInterval},
		{EnvRetryDelay, &c.Query.RetryDelay},
	}
	for _, d := range durations {
		val, ok := lookup(d.name)
		if !ok {
			continue
		}
		v, err := ParseDuration(val)
		if err != nil {
			return errors.Wrapf(err, "env %s", d.name)
		}
		*d.target = Duration(v)
	}
	if val, ok := lookup(EnvRetry); ok {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return errors.Wrapf(err, "env %s", EnvRetry)
		}
		c.Query.Retry = n
	}
	if val, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if val, ok := lookup(EnvStorefrontURL); ok {
		c.Storefront.URL = val
	}
	if val, ok := lookup(EnvStorefrontToken); ok {
		c.Storefront.Token = val
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "config validation failed"), ErrInvalid)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logger.LogLevel {
	return logger.ParseLevel(c.LogLevel, logger.LevelInfo)
}

// Logger returns a console logger at the configured level.
func (c *Config) Logger() logger.Logger {
	return logger.NewConsoleLogger(c.Level())
}

// ClientOptions converts the query settings into client options.
func (c *Config) ClientOptions(log logger.Logger) []query.Option {
	opts := []query.Option{
		query.WithStaleTime(time.Duration(c.Query.StaleTime)),
		query.WithCacheTime(time.Duration(c.Query.CacheTime)),
		query.WithGCInterval(time.Duration(c.Query.GCInterval)),
	}
	if c.Query.Retry == 0 {
		opts = append(opts, query.WithRetry(query.RetryNever))
	} else {
		opts = append(opts, query.WithRetry(query.RetryCount(c.Query.Retry)))
	}
	if c.Query.RetryDelay > 0 {
		opts = append(opts, query.WithRetryDelay(query.ConstantDelay(time.Duration(c.Query.RetryDelay))))
	}
	if log != nil {
		opts = append(opts, query.WithLogger(log))
	}
	return opts
}
