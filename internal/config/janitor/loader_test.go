package janitor_config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", cfg.Janitor.Schedule)
	assert.Equal(t, 30*24*time.Hour, cfg.Janitor.ListingRetention)
	assert.Equal(t, "flatwatch/janitor", cfg.Log.AsLoggerConfig(cfg.App).App)

	r := cfg.Janitor.Reminders
	assert.True(t, r.Enabled)
	assert.Equal(t, "0 * * * *", r.Schedule)
	loc, err := r.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Kyiv", loc.String())
}

func TestRemindersNeedToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")

	t.Setenv("JANITOR_REMINDERS_ENABLED", "false")
	_, err = Load("")
	require.NoError(t, err)
}

func TestRemindersRejectUnknownTimezone(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("JANITOR_REMINDERS_TIMEZONE", "Mars/Olympus")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
