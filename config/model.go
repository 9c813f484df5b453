// Package config holds the settings of the REST driver.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrInvalid = errors.New("invalid config")

type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

type AuthConfig struct {
	// Secret signs HS256 bearer tokens. No token is sent when it is empty.
	Secret  string        `yaml:"secret,omitempty" toml:"secret,omitempty"`
	Issuer  string        `yaml:"issuer,omitempty" toml:"issuer,omitempty"`
	Subject string        `yaml:"subject,omitempty" toml:"subject,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty" toml:"ttl,omitempty"`
}

type LogConfig struct {
	Level  string    `yaml:"level" toml:"level"`
	Format LogFormat `yaml:"format" toml:"format"`
}

type CacheConfig struct {
	// Statements is the number of parsed statements kept. Zero disables the
	// cache.
	Statements int `yaml:"statements" toml:"statements"`
}

type Config struct {
	BaseURL string        `yaml:"baseUrl" toml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	// Methods replaces the default operation to verb mapping when set.
	Methods map[string]string `yaml:"methods,omitempty" toml:"methods,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`
	Auth    AuthConfig        `yaml:"auth,omitempty" toml:"auth,omitempty"`
	Log     LogConfig         `yaml:"log" toml:"log"`
	Cache   CacheConfig       `yaml:"cache" toml:"cache"`
}

func Default() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "warn",
			Format: LogText,
		},
		Cache: CacheConfig{
			Statements: 128,
		},
	}
}

var operations = []string{"INSERT", "UPDATE", "DELETE", "SELECT"}

// Validate reports the first problem found in cfg.
func (cfg Config) Validate() error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: baseUrl: %s", ErrInvalid, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: baseUrl %q is not an http url", ErrInvalid, cfg.BaseURL)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}
	for op, verb := range cfg.Methods {
		if !isOperation(op) {
			return fmt.Errorf("%w: methods: unknown operation %q", ErrInvalid, op)
		}
		if strings.TrimSpace(verb) == "" {
			return fmt.Errorf("%w: methods: empty verb for %s", ErrInvalid, op)
		}
	}
	if cfg.Auth.TTL < 0 {
		return fmt.Errorf("%w: negative auth ttl", ErrInvalid)
	}
	if cfg.Log.Level != "" {
		if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("%w: log level: %s", ErrInvalid, err)
		}
	}
	switch cfg.Log.Format {
	case "", LogText, LogJSON:
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, cfg.Log.Format)
	}
	if cfg.Cache.Statements < 0 {
		return fmt.Errorf("%w: negative cache size", ErrInvalid)
	}
	return nil
}

func isOperation(op string) bool {
	for _, o := range operations {
		if strings.EqualFold(o, op) {
			return true
		}
	}
	return false
}

// NewLogger builds a logger from the log settings.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	log := logrus.New()
	level := logrus.WarnLevel
	if c.Level != "" {
		l, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: log level: %s", ErrInvalid, err)
		}
		level = l
	}
	log.SetLevel(level)
	if c.Format == LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}
