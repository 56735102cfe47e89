// Package config reads client settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	// ErrInvalidConfig is returned when a parsed value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the client settings.
type Config struct {
	APIURL    string        `env:"QUICKNOTES_API_URL" envDefault:"http://localhost:5000"`
	Home      string        `env:"QUICKNOTES_HOME,expand" envDefault:"${HOME}/.quicknotes"`
	Timeout   time.Duration `env:"QUICKNOTES_TIMEOUT" envDefault:"30s"`
	LogLevel  slog.Level    `env:"QUICKNOTES_LOG_LEVEL" envDefault:"info"`
	LogFormat string        `env:"QUICKNOTES_LOG_FORMAT" envDefault:"text"`
}

// Load reads .env from the working directory if present (existing variables
// win), then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // the .env file is optional
	return parse(env.Options{})
}

// LoadFrom parses cfg from vars only. The process environment is ignored.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot check through types alone.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: QUICKNOTES_API_URL %q is not an http(s) URL", ErrInvalidConfig, c.APIURL)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: QUICKNOTES_TIMEOUT must be positive", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: QUICKNOTES_LOG_FORMAT %q (want text or json)", ErrInvalidConfig, c.LogFormat)
	}
	if c.Home == "" || c.Home == "/.quicknotes" {
		return fmt.Errorf("%w: QUICKNOTES_HOME is empty and HOME is not set", ErrInvalidConfig)
	}
	return nil
}
