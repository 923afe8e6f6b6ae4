package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Channel != "PAY WITH CHANNEL" {
		t.Errorf("Channel = %q", cfg.Channel)
	}
	if cfg.Interval != 15*time.Minute {
		t.Errorf("Interval = %s, want 15m", cfg.Interval)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.Dedup {
		t.Error("Dedup should be off by default")
	}
	if cfg.Registration.Info == "" || cfg.Listing.Container == "" {
		t.Error("default selectors should be populated")
	}
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com, b@example.com", []string{"a@example.com", "b@example.com"}},
		{"a@example.com,,b@example.com,", []string{"a@example.com", "b@example.com"}},
		{" , ,", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseRecipients(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseRecipients(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvEmailFrom:      "alerts@example.com",
		EnvResendAPIKey:   "re_123",
		EnvEmailTo:        "a@example.com, b@example.com",
		EnvSourceURL:      "https://races.example.com/calendario",
		EnvPaymentChannel: " PAY WITH BIZUM ",
		EnvNavRate:        "2.5",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Email.From != "alerts@example.com" || cfg.Email.APIKey != "re_123" {
		t.Errorf("Email = %+v", cfg.Email)
	}
	if !reflect.DeepEqual(cfg.Email.To, []string{"a@example.com", "b@example.com"}) {
		t.Errorf("To = %v", cfg.Email.To)
	}
	if cfg.SourceURL != "https://races.example.com/calendario" {
		t.Errorf("SourceURL = %q", cfg.SourceURL)
	}
	if cfg.Channel != "PAY WITH BIZUM" {
		t.Errorf("Channel = %q", cfg.Channel)
	}
	if cfg.NavRatePerSecond != 2.5 {
		t.Errorf("NavRatePerSecond = %v", cfg.NavRatePerSecond)
	}
}

func TestApplyEnv_EmptyKeepsCurrent(t *testing.T) {
	cfg := Default()
	cfg.Email.From = "file@example.com"

	if err := cfg.ApplyEnv(envMap(nil)); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Email.From != "file@example.com" {
		t.Errorf("From = %q, empty env should not override", cfg.Email.From)
	}
	if cfg.Channel != DefaultChannel {
		t.Errorf("Channel = %q", cfg.Channel)
	}
}

func TestApplyEnv_BadRate(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{EnvNavRate: "fast"})); err == nil {
		t.Error("ApplyEnv() should reject a non-numeric rate")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		from, key   string
		to          []string
		wantMissing []string
	}{
		{"complete", "alerts@example.com", "re_123", []string{"a@example.com"}, nil},
		{"missing from", "", "re_123", []string{"a@example.com"}, []string{EnvEmailFrom}},
		{"missing key", "alerts@example.com", "", []string{"a@example.com"}, []string{EnvResendAPIKey}},
		{"empty recipients", "alerts@example.com", "re_123", nil, []string{EnvEmailTo}},
		{"nothing set", "", "", nil, []string{EnvEmailFrom, EnvResendAPIKey, EnvEmailTo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Email.From = tt.from
			cfg.Email.APIKey = tt.key
			cfg.Email.To = tt.to

			err := cfg.Validate()
			if tt.wantMissing == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigurationError", err)
			}
			if !reflect.DeepEqual(cfgErr.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", cfgErr.Missing, tt.wantMissing)
			}
			for _, key := range tt.wantMissing {
				if !strings.Contains(err.Error(), key) {
					t.Errorf("error %q should name %s", err, key)
				}
			}
		})
	}
}

func TestValidate_RecipientsOfOnlyCommas(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{
		EnvEmailFrom:    "alerts@example.com",
		EnvResendAPIKey: "re_123",
		EnvEmailTo:      ", ,",
	})); err != nil {
		t.Fatal(err)
	}

	err := cfg.Validate()
	if !IsConfigurationError(fmt.Errorf("startup: %w", err)) {
		t.Fatalf("Validate() error = %v, want configuration error", err)
	}
}

func TestCheck(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.SourceURL = "https://races.example.com/calendario"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no source", func(c *Config) { c.SourceURL = "" }, true},
		{"relative source", func(c *Config) { c.SourceURL = "/calendario" }, true},
		{"ftp source", func(c *Config) { c.SourceURL = "ftp://races.example.com" }, true},
		{"empty channel", func(c *Config) { c.Channel = "" }, true},
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"negative rate", func(c *Config) { c.NavRatePerSecond = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Check(); (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	for _, key := range []string{EnvEmailFrom, EnvResendAPIKey, EnvEmailTo, EnvSourceURL, EnvPaymentChannel, EnvLogLevel, EnvNavRate} {
		t.Setenv(key, "")
	}
	t.Setenv(EnvResendAPIKey, "re_env")

	fs := afero.NewMemMapFs()
	path := "/etc/race-alerts.yaml"
	data := `
source_url: https://races.example.com/calendario
channel: PAY WITH BIZUM
interval: 5m
concurrency: 2
dedup: true
email:
  from: alerts@example.com
  to: [a@example.com]
  timeout: 30s
literals:
  price_prefix: "price"
`
	if err := afero.WriteFile(fs, path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SourceURL != "https://races.example.com/calendario" || cfg.Channel != "PAY WITH BIZUM" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Interval != 5*time.Minute || cfg.Concurrency != 2 || !cfg.Dedup {
		t.Errorf("interval/concurrency/dedup = %s/%d/%v", cfg.Interval, cfg.Concurrency, cfg.Dedup)
	}
	if cfg.Email.Timeout != 30*time.Second {
		t.Errorf("Email.Timeout = %s, want 30s", cfg.Email.Timeout)
	}
	if cfg.Email.APIKey != "re_env" {
		t.Errorf("APIKey = %q, want value from environment", cfg.Email.APIKey)
	}
	if cfg.Literals.PricePrefix != "price" {
		t.Errorf("PricePrefix = %q", cfg.Literals.PricePrefix)
	}
	// Unset keys keep their defaults
	if cfg.Literals.StatusSoldOut != "Agotado" || cfg.Email.BaseURL != DefaultEmailAPI {
		t.Errorf("defaults lost: %+v", cfg.Literals)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	for _, key := range []string{EnvEmailFrom, EnvResendAPIKey, EnvEmailTo, EnvSourceURL, EnvPaymentChannel, EnvLogLevel, EnvNavRate} {
		t.Setenv(key, "")
	}

	cfg, err := Load(afero.NewMemMapFs(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Channel != DefaultChannel || cfg.Email.Timeout != DefaultEmailTimeout {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := Load(fs, "/etc/missing.yaml"); err == nil {
		t.Error("Load() should fail for a missing file")
	}

	if err := afero.WriteFile(fs, "/etc/bad.yaml", []byte("interval: [not a duration"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(fs, "/etc/bad.yaml"); err == nil {
		t.Error("Load() should fail for malformed YAML")
	}
}
