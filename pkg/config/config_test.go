package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears every GCS-related environment variable so each
// test starts from Load's built-in defaults.
func clearEnvVars() {
	envVars := []string{
		"APP_ENV", "LOG_LEVEL",
		"GCS_ICS_FEED_URL", "GCS_ICS_FEED_USERNAME", "GCS_ICS_FEED_PASSWORD", "GCS_ICS_FETCH_TIMEOUT",
		"GCS_CALDAV_BASE_URL", "GCS_CALDAV_USERNAME", "GCS_CALDAV_PASSWORD", "GCS_CALDAV_CALENDAR_PATH",
		"GCS_OAUTH_PROVIDER", "GCS_OAUTH_CLIENT_ID", "GCS_OAUTH_CLIENT_SECRET", "GCS_OAUTH_TOKEN_URL",
		"GCS_SCHEDULER_STATE_DIR", "GCS_SCHEDULER_CALENDAR_SCOPE",
		"GCS_STATE_BACKEND", "GCS_STATE_DIR", "GCS_STATE_DATABASE_URL",
		"GCS_SYNC_MODE", "GCS_TIE_BREAK_WINNER", "GCS_HORIZON_DAYS",
		"GCS_ORACLE_PLUGIN_PATH", "GCS_ORACLE_CACHE_URL",
		"GCS_CIRCUIT_BREAKER_ENABLED", "GCS_CIRCUIT_BREAKER_MAX_REQUESTS",
		"GCS_CIRCUIT_BREAKER_OPEN_TIMEOUT", "GCS_CIRCUIT_BREAKER_FAILURE_RATIO",
		"GCS_EVENT_BUS_ENABLED", "GCS_RABBITMQ_URL",
		"GCS_WORKER_HEALTH_ADDR", "GCS_WORKER_POLL_INTERVAL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.Equal(t, "file", cfg.StateBackend)
	assert.False(t, cfg.UsesSQLiteState())
	assert.NotEmpty(t, cfg.StateDir)
	assert.Equal(t, cfg.StateDir, cfg.SchedulerStateDir)

	assert.Equal(t, "both", cfg.SyncMode)
	assert.Equal(t, "scheduler", cfg.TieBreakWinner)
	assert.Equal(t, 90, cfg.HorizonDays)

	assert.Equal(t, 15*time.Second, cfg.ICSFetchTimeout)
	assert.True(t, cfg.CircuitBreakerEnabled)
	assert.Equal(t, uint32(1), cfg.CircuitBreakerMaxRequests)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreakerOpenTimeout)
	assert.InDelta(t, 0.6, cfg.CircuitBreakerFailureRatio, 0.0001)

	assert.False(t, cfg.EventBusEnabled)
	assert.Equal(t, "0.0.0.0:8081", cfg.WorkerHealthAddr)
	assert.Equal(t, 5*time.Minute, cfg.WorkerPollInterval)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("GCS_STATE_BACKEND", "sqlite")
	os.Setenv("GCS_SYNC_MODE", "calendar_to_scheduler")
	os.Setenv("GCS_TIE_BREAK_WINNER", "calendar")
	os.Setenv("GCS_HORIZON_DAYS", "30")
	os.Setenv("GCS_ICS_FEED_URL", "https://example.com/calendar.ics")
	os.Setenv("GCS_CALDAV_BASE_URL", "https://caldav.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StateBackend)
	assert.True(t, cfg.UsesSQLiteState())
	assert.Equal(t, "calendar_to_scheduler", cfg.SyncMode)
	assert.Equal(t, "calendar", cfg.TieBreakWinner)
	assert.Equal(t, 30, cfg.HorizonDays)
	assert.Equal(t, "https://example.com/calendar.ics", cfg.ICSFeedURL)
	assert.Equal(t, "https://caldav.example.com/", cfg.CalDAVBaseURL)
}

func TestLoad_RejectsUnknownStateBackend(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("GCS_STATE_BACKEND", "mongodb")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsUnknownSyncMode(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("GCS_SYNC_MODE", "sideways")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveHorizon(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("GCS_HORIZON_DAYS", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestConfig_IsDevelopmentIsProduction(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("APP_ENV", "production")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
