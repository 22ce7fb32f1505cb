package couchhelper

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/biyonik/go-couch-helper/driver"
	"github.com/biyonik/go-couch-helper/internal/config"
	"github.com/biyonik/go-couch-helper/internal/validation"
)

// ----------------------------------------------------------------------------
// Timeout
// ----------------------------------------------------------------------------

// Timeout holds the per-service timeouts of a session. Each one applies to
// every operation of its kind issued through the session.
type Timeout struct {
	Connect time.Duration `yaml:"connect" env:"COUCHBASE_CONNECT_TIMEOUT"`
	KV      time.Duration `yaml:"kv" env:"COUCHBASE_KV_TIMEOUT"`
	Query   time.Duration `yaml:"query" env:"COUCHBASE_QUERY_TIMEOUT"`
}

// DefaultTimeout returns 10s connect, 5s key-value and 30s query timeouts.
func DefaultTimeout() Timeout {
	return Timeout{
		Connect: 10 * time.Second,
		KV:      5 * time.Second,
		Query:   30 * time.Second,
	}
}

// UniformTimeout uses d for every service.
func UniformTimeout(d time.Duration) Timeout {
	return Timeout{Connect: d, KV: d, Query: d}
}

// withDefaults fills zero values from DefaultTimeout.
func (t Timeout) withDefaults() Timeout {
	def := DefaultTimeout()
	if t.Connect <= 0 {
		t.Connect = def.Connect
	}
	if t.KV <= 0 {
		t.KV = def.KV
	}
	if t.Query <= 0 {
		t.Query = def.Query
	}
	return t
}

// ----------------------------------------------------------------------------
// Config
// ----------------------------------------------------------------------------

// Config describes a cluster session. It can be built in code, loaded from
// YAML with LoadConfig, or overridden by COUCHBASE_* environment variables.
type Config struct {
	Host           string  `yaml:"host" env:"COUCHBASE_HOST"`
	Username       string  `yaml:"username" env:"COUCHBASE_USERNAME"`
	Password       string  `yaml:"password" env:"COUCHBASE_PASSWORD"`
	Bucket         string  `yaml:"bucket" env:"COUCHBASE_BUCKET"`
	Scope          string  `yaml:"scope" env:"COUCHBASE_SCOPE"`
	Collection     string  `yaml:"collection" env:"COUCHBASE_COLLECTION"`
	TLS            bool    `yaml:"tls" env:"COUCHBASE_TLS"`
	WANDevelopment bool    `yaml:"wan_development" env:"COUCHBASE_WAN"`
	ShowQueries    bool    `yaml:"show_queries" env:"COUCHBASE_SHOW_QUERIES"`
	Timeout        Timeout `yaml:"timeout"`
}

// DefaultConfig returns a local, non-TLS configuration on the default
// scope and collection.
func DefaultConfig() *Config {
	return &Config{
		Host:       "localhost",
		Scope:      "_default",
		Collection: "_default",
		Timeout:    DefaultTimeout(),
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig and then
// applies environment overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		return nil, WrapError("load config", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can open a session.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.Wrap(ErrInvalidConfig, "host is required")
	}
	if c.Username == "" {
		return errors.Wrap(ErrInvalidConfig, "username is required")
	}
	if c.Bucket != "" {
		if err := validation.ValidateBucket(c.Bucket); err != nil {
			return driver.WithSentinel(err, ErrInvalidConfig)
		}
	}
	if c.Scope != "" {
		if err := validation.ValidateScope(c.Scope); err != nil {
			return driver.WithSentinel(err, ErrInvalidConfig)
		}
	}
	if c.Collection != "" {
		if err := validation.ValidateCollection(c.Collection); err != nil {
			return driver.WithSentinel(err, ErrInvalidConfig)
		}
	}
	return nil
}

// ConnectionString returns couchbase://host, or couchbases://host with TLS.
func (c *Config) ConnectionString() string {
	if c.TLS {
		return "couchbases://" + c.Host
	}
	return "couchbase://" + c.Host
}

func (c *Config) connectOptions() driver.ConnectOptions {
	t := c.Timeout.withDefaults()
	return driver.ConnectOptions{
		Username:       c.Username,
		Password:       c.Password,
		TLS:            c.TLS,
		WANDevelopment: c.WANDevelopment,
		ConnectTimeout: t.Connect,
		KVTimeout:      t.KV,
		QueryTimeout:   t.Query,
		ShowQueries:    c.ShowQueries,
	}
}
