package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"vea/internal/domain"
	"vea/internal/feed"
	"vea/internal/ratelimiter"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath            = "config.yaml"
	defaultOutputDirectory = "output"
	defaultLogLevel        = "info"
)

type Config struct {
	Keywords          []string          `yaml:"keywords"            env:"VEA_KEYWORDS"`
	Feeds             map[string]string `yaml:"feeds"`
	OutputDirectory   string            `yaml:"output_directory"    env:"VEA_OUTPUT_DIRECTORY"`
	LogLevel          string            `yaml:"log_level"           env:"VEA_LOG_LEVEL"`
	LogFile           string            `yaml:"log_file"            env:"VEA_LOG_FILE"`
	FetchTimeout      time.Duration     `yaml:"fetch_timeout"       env:"VEA_FETCH_TIMEOUT"`
	FetchRetries      int               `yaml:"fetch_retries"       env:"VEA_FETCH_RETRIES"`
	FetchRetryBackoff time.Duration     `yaml:"fetch_retry_backoff" env:"VEA_FETCH_RETRY_BACKOFF"`
	HostInterval      time.Duration     `yaml:"host_interval"       env:"VEA_HOST_INTERVAL"`
	MaxConcurrency    int               `yaml:"max_concurrency"     env:"VEA_MAX_CONCURRENCY"`
	DBPath            string            `yaml:"db_path"             env:"VEA_DB_PATH"`
}

type location struct {
	Path string `env:"VEA_CONFIG" envDefault:"config.yaml"`
}

// Load reads the file named by VEA_CONFIG (config.yaml by default) and
// applies VEA_* overrides. A missing default file is not an error.
func Load() (Config, error) {
	var loc location
	if err := env.Parse(&loc); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg, err := LoadFrom(loc.Path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && loc.Path == DefaultPath {
		cfg, err = LoadFrom("")
	}

	return cfg, err
}

// LoadFrom reads the YAML file at path (skipped when path is empty), applies
// VEA_* overrides and defaults, then validates the result.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}

		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file (path = %s): %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration used for keys absent from both the file
// and the environment.
func Default() Config {
	return Config{
		OutputDirectory:   defaultOutputDirectory,
		LogLevel:          defaultLogLevel,
		FetchTimeout:      feed.DefaultTimeout,
		FetchRetries:      feed.DefaultRetries,
		FetchRetryBackoff: feed.DefaultRetryBackoff,
		HostInterval:      ratelimiter.DefaultHostInterval,
	}
}

func (c *Config) applyDefaults() {
	c.OutputDirectory = strings.TrimSpace(c.OutputDirectory)
	if c.OutputDirectory == "" {
		c.OutputDirectory = defaultOutputDirectory
	}

	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.FetchTimeout <= 0 {
		c.FetchTimeout = feed.DefaultTimeout
	}

	if c.FetchRetryBackoff <= 0 {
		c.FetchRetryBackoff = feed.DefaultRetryBackoff
	}

	c.DBPath = strings.TrimSpace(c.DBPath)
	c.LogFile = strings.TrimSpace(c.LogFile)
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch_retries must not be negative (got %d)", c.FetchRetries))
	}

	if c.HostInterval < 0 {
		errs = append(errs, fmt.Errorf("host_interval must not be negative (got %s)", c.HostInterval))
	}

	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must not be negative (got %d)", c.MaxConcurrency))
	}

	for name, rawURL := range c.Feeds {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("feed name is empty (url = %s)", rawURL))
			continue
		}

		if err := validateFeedURL(rawURL); err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func validateFeedURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return errors.New("feed URL is empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("URL must be absolute http(s) (got %s)", rawURL)
	}

	return nil
}

// Sources returns the configured feeds ordered by name.
func (c *Config) Sources() []domain.FeedSource {
	names := slices.Sorted(maps.Keys(c.Feeds))
	sources := make([]domain.FeedSource, 0, len(names))

	for _, name := range names {
		sources = append(sources, domain.FeedSource{
			Name: strings.TrimSpace(name),
			URL:  strings.TrimSpace(c.Feeds[name]),
		})
	}

	return sources
}

// ParseLevel accepts slog level names plus "warning" and "critical".
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "warning":
		return slog.LevelWarn, nil
	case "critical", "fatal":
		return slog.LevelError, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", raw, err)
	}

	return level, nil
}
