package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "latinevents/internal/log"
	"latinevents/internal/model"
)

// Environment variables that override the file values.
const (
	EnvListen   = "LATINEVENTS_LISTEN"
	EnvFeedURL  = "LATINEVENTS_FEED_URL"
	EnvTimezone = "LATINEVENTS_TIMEZONE"
	EnvLogLevel = "LATINEVENTS_LOG_LEVEL"
	EnvCacheDir = "LATINEVENTS_CACHE_DIR"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Europe/Zurich"
	defaultFeedURL     = "./public/events.csv"
	defaultCacheDir    = "./var/feed-cache"
	defaultRefreshCron = "0 */6 * * *"
	defaultWindowDays  = 14
	defaultSessionTTL  = 2 * time.Hour
	defaultLogLevel    = "info"
	defaultCrawlerTO   = 10 * time.Minute
)

// FilterDefaults is the filter selection a new session starts with.
type FilterDefaults struct {
	Region string `yaml:"region" json:"region"`
	Label  string `yaml:"label" json:"label"`
	Style  string `yaml:"style" json:"style"`
}

// CrawlerConfig describes the external program that regenerates the feed.
type CrawlerConfig struct {
	// Command is the argv of the crawler; the first element is the program.
	Command []string `yaml:"command" json:"command"`
	// Dir is the working directory. Empty means the current directory.
	Dir string `yaml:"dir" json:"dir"`
	// Timeout bounds a single run.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// Timezone is the IANA timezone that defines "today" (e.g. "Europe/Zurich").
	Timezone string `yaml:"timezone" json:"timezone"`

	// FeedURL is the CSV feed. http(s) URLs are fetched, anything else is
	// read as a local file.
	FeedURL string `yaml:"feed_url" json:"feed_url" validate:"required"`

	// CacheDir holds the conditional-request cache of the feed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a standard five-field cron spec (e.g. "0 */6 * * *")
	// for the silent background reload of all sessions.
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required,cronspec"`

	// WindowDays is the initial reveal window and reveal step.
	WindowDays int `yaml:"window_days" json:"window_days" validate:"gte=1"`

	// Dedupe drops same-day events with the same normalized name.
	Dedupe *bool `yaml:"dedupe" json:"dedupe"`

	// SessionTTL is how long an idle session is kept.
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`

	DefaultFilters FilterDefaults `yaml:"default_filters" json:"default_filters"`

	Crawler CrawlerConfig `yaml:"crawler" json:"crawler"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	dedupe := true
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		FeedURL:     defaultFeedURL,
		CacheDir:    defaultCacheDir,
		RefreshCron: defaultRefreshCron,
		WindowDays:  defaultWindowDays,
		Dedupe:      &dedupe,
		SessionTTL:  defaultSessionTTL,
		LogLevel:    defaultLogLevel,
		DefaultFilters: FilterDefaults{
			Region: "Region Bern",
			Label:  model.ExcludeCourseOnly,
			Style:  model.All,
		},
		Crawler: CrawlerConfig{
			Command: []string{"python3", "scripts/crawl_events.py"},
			Timeout: defaultCrawlerTO,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.FeedURL == "" {
		c.FeedURL = defaultFeedURL
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.WindowDays <= 0 {
		c.WindowDays = defaultWindowDays
	}
	if c.Dedupe == nil {
		dedupe := true
		c.Dedupe = &dedupe
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.DefaultFilters.Region == "" {
		c.DefaultFilters.Region = model.All
	}
	if c.DefaultFilters.Label == "" {
		c.DefaultFilters.Label = model.All
	}
	if c.DefaultFilters.Style == "" {
		c.DefaultFilters.Style = model.All
	}
	if c.Crawler.Timeout <= 0 {
		c.Crawler.Timeout = defaultCrawlerTO
	}
}

// DedupeEnabled reports whether same-day duplicates are dropped.
func (c *Config) DedupeEnabled() bool {
	return c.Dedupe == nil || *c.Dedupe
}

// Filters returns the default filter selection as a model value. The start
// date is left empty; sessions fill in today.
func (c *Config) Filters() model.Filters {
	return model.Filters{
		Region: c.DefaultFilters.Region,
		Label:  c.DefaultFilters.Label,
		Style:  c.DefaultFilters.Style,
	}
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// ApplyEnv loads a .env file from the working directory, if present, and
// applies the LATINEVENTS_* overrides.
func (c *Config) ApplyEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read .env file", "error", err.Error())
	}

	override := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(EnvListen, &c.Listen)
	override(EnvFeedURL, &c.FeedURL)
	override(EnvTimezone, &c.Timezone)
	override(EnvLogLevel, &c.LogLevel)
	override(EnvCacheDir, &c.CacheDir)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cronspec", validateCronSpec)
	return v
}

func validateCronSpec(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("config: %s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML over the defaults
//   - normalize zero values
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Keys missing from the file keep their default values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".latinevents-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
