// Package config loads the harvester CLI configuration.
//
// Values are resolved in order: built-in defaults, the optional YAML file,
// environment variables, then command-line flags (applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/client"
	"github.com/Sternrassler/listing-harvester/pkg/logging"
	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvEndpoint    = "HARVESTER_ENDPOINT"
	EnvBearerToken = "HARVESTER_BEARER_TOKEN"
	EnvAuthToken   = "HARVESTER_AUTH_TOKEN"
	EnvLogLevel    = "HARVESTER_LOG_LEVEL"
	EnvRedisURL    = "REDIS_URL"
)

// Config is the complete CLI configuration.
type Config struct {
	Endpoint    string            `yaml:"endpoint"`
	UserAgent   string            `yaml:"user_agent"`
	BearerToken string            `yaml:"bearer_token"`
	AuthToken   string            `yaml:"auth_token"`
	Origin      string            `yaml:"origin"`
	Referer     string            `yaml:"referer"`
	Headers     map[string]string `yaml:"headers"`

	Concurrency      int           `yaml:"concurrency"`
	RetryConcurrency int           `yaml:"retry_concurrency"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"`

	// MaxConnsPerHost of zero sizes the pool to Concurrency.
	MaxConnsPerHost int `yaml:"max_conns_per_host"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Output OutputConfig `yaml:"output"`
	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`

	// MetricsAddr serves /metrics when set (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr"`
}

// OutputConfig configures the JSONL file export. An empty Dir disables it.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// RedisConfig configures the Redis export. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SQLiteConfig configures the SQLite export. An empty Path disables it.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in defaults.
func Default() Config {
	hc := pagination.DefaultConfig()
	cc := client.DefaultConfig("")

	return Config{
		UserAgent:        cc.UserAgent,
		Headers:          cc.Headers,
		Concurrency:      hc.Concurrency,
		RetryConcurrency: hc.RetryConcurrency,
		RequestTimeout:   cc.RequestTimeout,
		LogLevel:         string(logging.LevelInfo),
		Output: OutputConfig{
			Dir:    ".",
			Prefix: "listing",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path and the
// environment. An empty path skips the file. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if value, ok := lookup(key); ok && value != "" {
			*dst = value
		}
	}
	set(EnvEndpoint, &c.Endpoint)
	set(EnvBearerToken, &c.BearerToken)
	set(EnvAuthToken, &c.AuthToken)
	set(EnvLogLevel, &c.LogLevel)
	set(EnvRedisURL, &c.Redis.Addr)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1 (got %d)", c.Concurrency))
	}
	if c.RetryConcurrency < 1 {
		errs = append(errs, fmt.Errorf("retry_concurrency must be >= 1 (got %d)", c.RetryConcurrency))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be > 0 (got %s)", c.RequestTimeout))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run_timeout must be >= 0 (got %s)", c.RunTimeout))
	}
	if c.MaxConnsPerHost < 0 {
		errs = append(errs, fmt.Errorf("max_conns_per_host must be >= 0 (got %d)", c.MaxConnsPerHost))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error (got %q)", c.LogLevel))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must be >= 0 (got %d)", c.Redis.DB))
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis.ttl must be >= 0 (got %s)", c.Redis.TTL))
	}

	return errors.Join(errs...)
}

// ClientConfig returns the listing client configuration. The connection pool
// is never smaller than the primary concurrency.
func (c Config) ClientConfig() client.Config {
	cc := client.DefaultConfig(c.Endpoint)
	cc.UserAgent = c.UserAgent
	cc.BearerToken = c.BearerToken
	cc.AuthToken = c.AuthToken
	cc.Origin = c.Origin
	cc.Referer = c.Referer
	cc.Headers = c.Headers
	cc.RequestTimeout = c.RequestTimeout
	cc.MaxConnsPerHost = max(c.MaxConnsPerHost, c.Concurrency)
	cc.MaxIdleConns = max(cc.MaxIdleConns, cc.MaxConnsPerHost)
	return cc
}

// HarvesterConfig returns the harvester configuration.
func (c Config) HarvesterConfig() pagination.Config {
	hc := pagination.DefaultConfig()
	hc.Concurrency = c.Concurrency
	hc.RetryConcurrency = c.RetryConcurrency
	hc.RunTimeout = c.RunTimeout
	return hc
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.LogLevel)
	lc.Pretty = c.LogPretty
	return lc
}
