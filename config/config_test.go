package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{
		"MAX_FILE_SIZE", "DOWNLOAD_TIMEOUT", "TELEGRAM_FILE_LIMIT", "RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_PERIOD", "MAX_CONCURRENT_DOWNLOADS", "MAX_DOWNLOADS_PER_USER", "ADMIN_IDS",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(209715200), cfg.MaxFileSize)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, int64(52428800), cfg.TelegramFileLimit)
	assert.Equal(t, 5, cfg.RateLimitRequests)
	assert.Equal(t, 10*time.Second, cfg.RateLimitPeriod)
	assert.Equal(t, 10, cfg.MaxConcurrentDownloads)
	assert.Equal(t, 2, cfg.MaxDownloadsPerUser)
	assert.Empty(t, cfg.AdminIDs)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RATE_LIMIT_PERIOD", "60")
	t.Setenv("DOWNLOAD_TIMEOUT", "2m")
	t.Setenv("MAX_CONCURRENT_DOWNLOADS", "4")
	t.Setenv("MAX_DOWNLOADS_PER_USER", "1")
	t.Setenv("ADMIN_IDS", "12, 34,bad,-5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.RateLimitPeriod)
	assert.Equal(t, 2*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrentDownloads)
	assert.Equal(t, []int64{12, 34}, cfg.AdminIDs)
	assert.True(t, cfg.IsAdmin(34))
	assert.False(t, cfg.IsAdmin(5))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MaxFileSize:            DefaultMaxFileSize,
			TelegramFileLimit:      DefaultTelegramFileLimit,
			DownloadTimeout:        DefaultDownloadTimeout,
			RateLimitRequests:      DefaultRateLimitRequests,
			RateLimitPeriod:        DefaultRateLimitPeriod,
			MaxConcurrentDownloads: DefaultMaxConcurrentDownloads,
			MaxDownloadsPerUser:    DefaultMaxDownloadsPerUser,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero file size", func(c *Config) { c.MaxFileSize = 0 }, "MAX_FILE_SIZE"},
		{"zero period", func(c *Config) { c.RateLimitPeriod = 0 }, "RATE_LIMIT_PERIOD"},
		{"per user above global", func(c *Config) { c.MaxDownloadsPerUser = 11 }, "exceeds"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "MAX_RETRIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireTelegram(t *testing.T) {
	c := &Config{}
	err := c.RequireTelegram()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
	assert.Contains(t, err.Error(), "API_ID")

	c = &Config{BotToken: "t", AppID: 1, AppHash: "h"}
	assert.NoError(t, c.RequireTelegram())
}
