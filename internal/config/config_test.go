package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("ISSUES_DEFAULT_PAGE_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "issue-service", cfg.App.Name)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, "issue-events", cfg.Redis.EventsChannel)
	assert.Equal(t, DefaultIssuesConfig(), cfg.Issues)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ISSUES_DEFAULT_PAGE_SIZE", "25")
	t.Setenv("ISSUES_CODE_ALLOCATION_RETRIES", "3")
	t.Setenv("REDIS_EVENTS_CHANNEL", "ops-issues")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, 25, cfg.Issues.DefaultPageSize)
	assert.Equal(t, 3, cfg.Issues.CodeAllocationRetries)
	assert.Equal(t, "ops-issues", cfg.Redis.EventsChannel)
}

func TestLoadRejectsBadLimits(t *testing.T) {
	t.Setenv("ISSUES_DEFAULT_PAGE_SIZE", "500")
	t.Setenv("ISSUES_MAX_PAGE_SIZE", "100")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}
