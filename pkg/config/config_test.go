package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
	  "api_key": "key",
	  "api_secret": "secret",
	  "user_agent": "test-runner",
	  "start_date": "2021-01-01T00:00:00Z"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.JobPollInterval)
	assert.Equal(t, 10*time.Minute, cfg.JobPollTimeout)
	assert.Equal(t, 1, cfg.DateWindowDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `{
	  "api_key": "key",
	  "api_secret": "secret",
	  "user_agent": "test-runner",
	  "start_date": "2021-01-01T00:00:00Z",
	  "request_timeout": "30s",
	  "date_window_days": 7,
	  "retry": {"max_attempts": 2},
	  "log_level": "debug"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 7, cfg.DateWindowDays)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `{"user_agent": "ua", "start_date": "2021-01-01T00:00:00Z"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingUserAgent(t *testing.T) {
	path := writeConfig(t, `{
	  "api_key": "k",
	  "api_secret": "s",
	  "start_date": "2021-01-01T00:00:00Z"
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingStartDate(t *testing.T) {
	path := writeConfig(t, `{"api_key": "k", "api_secret": "s", "user_agent": "ua"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadStartDate(t *testing.T) {
	path := writeConfig(t, `{
	  "api_key": "k",
	  "api_secret": "s",
	  "user_agent": "ua",
	  "start_date": "01/01/2021"
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestStartTime(t *testing.T) {
	cfg := New()
	cfg.StartDate = "2021-06-15T00:00:00Z"

	got, err := cfg.StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), got)
}
