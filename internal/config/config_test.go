package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latinevents/internal/model"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
feed_url: https://example.org/events.csv
window_days: 7
dedupe: false
session_ttl: 30m
crawler:
  command: ["./crawl.sh", "--all"]
  timeout: 90s
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/events.csv", cfg.FeedURL)
	assert.Equal(t, 7, cfg.WindowDays)
	assert.False(t, cfg.DedupeEnabled())
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"./crawl.sh", "--all"}, cfg.Crawler.Command)
	assert.Equal(t, 90*time.Second, cfg.Crawler.Timeout)

	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "Europe/Zurich", cfg.Timezone)
	assert.Equal(t, model.Filters{Region: "Region Bern", Label: model.ExcludeCourseOnly, Style: model.All}, cfg.Filters())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, defaultWindowDays, cfg.WindowDays)
	assert.True(t, cfg.DedupeEnabled())
	assert.Equal(t, defaultSessionTTL, cfg.SessionTTL)
	assert.Equal(t, model.All, cfg.DefaultFilters.Region)
	assert.Equal(t, defaultCrawlerTO, cfg.Crawler.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Listen = ""
	cfg.FeedURL = ""
	cfg.RefreshCron = "every tuesday"
	cfg.WindowDays = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"Listen", "FeedURL", "RefreshCron", "WindowDays", "LogLevel"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidateAcceptsDescriptors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshCron = "@every 30m"

	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvListen, ":9090")
	t.Setenv(EnvFeedURL, "https://example.org/feed.csv")
	t.Setenv(EnvTimezone, "")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "https://example.org/feed.csv", cfg.FeedURL)
	assert.Equal(t, "Europe/Zurich", cfg.Timezone, "empty values do not override")
}

func TestApplyEnvReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvCacheDir+"=/tmp/latin-cache\n"), 0o600))
	t.Setenv(EnvCacheDir, "")
	os.Unsetenv(EnvCacheDir)

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "/tmp/latin-cache", cfg.CacheDir)
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"

	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}
