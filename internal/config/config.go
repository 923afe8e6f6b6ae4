package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pfrederiksen/race-alerts/internal/availability"
	"github.com/pfrederiksen/race-alerts/internal/scraper"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Environment keys
const (
	EnvEmailFrom      = "EMAIL_FROM"
	EnvResendAPIKey   = "RESEND_API_KEY"
	EnvEmailTo        = "EMAIL_TO"
	EnvSourceURL      = "SOURCE_URL"
	EnvPaymentChannel = "PAYMENT_CHANNEL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvNavRate        = "NAV_RATE_PER_SECOND"
)

const (
	DefaultChannel      = "PAY WITH CHANNEL"
	DefaultInterval     = 15 * time.Minute
	DefaultConcurrency  = 3
	DefaultSubject      = "Race registrations available"
	DefaultDataDir      = "~/.local/share/race-alerts"
	DefaultEmailAPI     = "https://api.resend.com"
	DefaultEmailTimeout = 15 * time.Second
)

// EmailConfig holds delivery settings. APIKey and To normally come from the environment.
type EmailConfig struct {
	From    string   `yaml:"from"`
	APIKey  string   `yaml:"-"`
	To      []string `yaml:"to"`
	BaseURL string   `yaml:"base_url"`
	Subject string   `yaml:"subject"`

	Timeout time.Duration `yaml:"timeout"` // per API request
}

// Config is the complete watcher configuration
type Config struct {
	SourceURL        string        `yaml:"source_url"`
	Channel          string        `yaml:"channel"`
	Interval         time.Duration `yaml:"interval"`
	Concurrency      int           `yaml:"concurrency"`
	PageTimeout      time.Duration `yaml:"page_timeout"`
	ListingTimeout   time.Duration `yaml:"listing_timeout"`
	NavRatePerSecond float64       `yaml:"nav_rate_per_second"` // 0 disables pacing
	Headless         bool          `yaml:"headless"`
	ChromePath       string        `yaml:"chrome_path"`
	DumpPath         string        `yaml:"dump_path"`
	DataDir          string        `yaml:"data_dir"`
	Dedup            bool          `yaml:"dedup"`
	MetricsTextfile  string        `yaml:"metrics_textfile"`
	LogLevel         string        `yaml:"log_level"`

	Email EmailConfig `yaml:"email"`

	Listing      scraper.Selectors      `yaml:"listing_selectors"`
	Registration availability.Selectors `yaml:"registration_selectors"`
	Literals     availability.Literals  `yaml:"literals"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Channel:        DefaultChannel,
		Interval:       DefaultInterval,
		Concurrency:    DefaultConcurrency,
		PageTimeout:    scraper.PageTimeout,
		ListingTimeout: scraper.ListingTimeout,
		Headless:       true,
		DataDir:        DefaultDataDir,
		LogLevel:       "info",
		Email: EmailConfig{
			BaseURL: DefaultEmailAPI,
			Subject: DefaultSubject,
			Timeout: DefaultEmailTimeout,
		},
		Listing:      scraper.DefaultSelectors(),
		Registration: availability.DefaultSelectors(),
		Literals:     availability.DefaultLiterals(),
	}
}

// Load builds a configuration from the defaults, the YAML file at path on fs
// (skipped when path is empty) and the process environment
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg. Keys absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with the non-empty environment values returned by getenv
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvEmailFrom)); v != "" {
		c.Email.From = v
	}
	if v := strings.TrimSpace(getenv(EnvResendAPIKey)); v != "" {
		c.Email.APIKey = v
	}
	if v := getenv(EnvEmailTo); strings.TrimSpace(v) != "" {
		c.Email.To = ParseRecipients(v)
	}
	if v := strings.TrimSpace(getenv(EnvSourceURL)); v != "" {
		c.SourceURL = v
	}
	// The channel label is compared exactly, so only surrounding whitespace is trimmed
	if v := strings.TrimSpace(getenv(EnvPaymentChannel)); v != "" {
		c.Channel = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvNavRate)); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvNavRate, err)
		}
		c.NavRatePerSecond = rate
	}
	return nil
}

// ParseRecipients splits a comma-separated recipient list, dropping empty entries
func ParseRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ConfigurationError lists the required settings that are missing
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// Validate checks that the delivery credentials and recipient list are present.
// It returns a *ConfigurationError naming every missing key.
func (c *Config) Validate() error {
	var missing []string
	if c.Email.From == "" {
		missing = append(missing, EnvEmailFrom)
	}
	if c.Email.APIKey == "" {
		missing = append(missing, EnvResendAPIKey)
	}
	if len(c.Email.To) == 0 {
		missing = append(missing, EnvEmailTo)
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// Check verifies the settings every mode needs, credentials excluded
func (c *Config) Check() error {
	if c.SourceURL == "" {
		return &ConfigurationError{Missing: []string{EnvSourceURL}}
	}
	u, err := url.Parse(c.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid source URL %q: must be an absolute http(s) URL", c.SourceURL)
	}
	if c.Channel == "" {
		return errors.New("payment channel label must not be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid interval %s: must be positive", c.Interval)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency %d: must be at least 1", c.Concurrency)
	}
	if c.NavRatePerSecond < 0 {
		return fmt.Errorf("invalid navigation rate %v: must not be negative", c.NavRatePerSecond)
	}
	return nil
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
