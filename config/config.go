package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultMaxFileSize            int64 = 200 * 1024 * 1024
	DefaultTelegramFileLimit      int64 = 50 * 1024 * 1024
	DefaultDownloadTimeout              = 30 * time.Second
	DefaultRateLimitRequests            = 5
	DefaultRateLimitPeriod              = 10 * time.Second
	DefaultMaxConcurrentDownloads       = 10
	DefaultMaxDownloadsPerUser          = 2
	DefaultMaxRetries                   = 3
	DefaultRetryDelay                   = 5 * time.Second
	DefaultRateWindowSweep              = 10 * time.Minute
	DefaultRateWindowMaxIdle            = time.Hour
)

type Config struct {
	BotToken   string
	AppID      int
	AppHash    string
	SessionDir string
	AdminIDs   []int64

	MaxFileSize            int64
	DownloadTimeout        time.Duration
	TelegramFileLimit      int64
	RateLimitRequests      int
	RateLimitPeriod        time.Duration
	MaxConcurrentDownloads int
	MaxDownloadsPerUser    int
	MaxRetries             int
	RetryDelay             time.Duration

	LogLevel    string
	LogFile     string
	MetricsAddr string

	YtDlpPath    string
	YtDlpCookies string
	DownloadDir  string
}

// Load reads .env files (when present) and then the process environment.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{
		BotToken:   os.Getenv("BOT_TOKEN"),
		AppID:      getInt("API_ID", 0),
		AppHash:    os.Getenv("API_HASH"),
		SessionDir: getEnv("SESSION_DIR", ".session"),
		AdminIDs:   getInt64List("ADMIN_IDS"),

		MaxFileSize:            getInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
		DownloadTimeout:        getDuration("DOWNLOAD_TIMEOUT", DefaultDownloadTimeout),
		TelegramFileLimit:      getInt64("TELEGRAM_FILE_LIMIT", DefaultTelegramFileLimit),
		RateLimitRequests:      getInt("RATE_LIMIT_REQUESTS", DefaultRateLimitRequests),
		RateLimitPeriod:        getDuration("RATE_LIMIT_PERIOD", DefaultRateLimitPeriod),
		MaxConcurrentDownloads: getInt("MAX_CONCURRENT_DOWNLOADS", DefaultMaxConcurrentDownloads),
		MaxDownloadsPerUser:    getInt("MAX_DOWNLOADS_PER_USER", DefaultMaxDownloadsPerUser),
		MaxRetries:             getInt("MAX_RETRIES", DefaultMaxRetries),
		RetryDelay:             getDuration("RETRY_DELAY", DefaultRetryDelay),

		LogLevel:    strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		LogFile:     os.Getenv("LOG_FILE"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		YtDlpPath:    getEnv("YTDLP_PATH", "yt-dlp"),
		YtDlpCookies: os.Getenv("YTDLP_COOKIES"),
		DownloadDir:  getEnv("DOWNLOAD_DIR", os.TempDir()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the limits only. Telegram credentials are checked by
// RequireTelegram so the local fetch command can run without them.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize))
	}
	if c.TelegramFileLimit <= 0 {
		errs = append(errs, fmt.Errorf("TELEGRAM_FILE_LIMIT must be positive, got %d", c.TelegramFileLimit))
	}
	if c.DownloadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_TIMEOUT must be positive, got %s", c.DownloadTimeout))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests))
	}
	if c.RateLimitPeriod <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PERIOD must be positive, got %s", c.RateLimitPeriod))
	}
	if c.MaxConcurrentDownloads <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be positive, got %d", c.MaxConcurrentDownloads))
	}
	if c.MaxDownloadsPerUser <= 0 {
		errs = append(errs, fmt.Errorf("MAX_DOWNLOADS_PER_USER must be positive, got %d", c.MaxDownloadsPerUser))
	}
	if c.MaxDownloadsPerUser > c.MaxConcurrentDownloads {
		errs = append(errs, fmt.Errorf("MAX_DOWNLOADS_PER_USER (%d) exceeds MAX_CONCURRENT_DOWNLOADS (%d)",
			c.MaxDownloadsPerUser, c.MaxConcurrentDownloads))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries))
	}
	return errors.Join(errs...)
}

func (c *Config) RequireTelegram() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is not set"))
	}
	if c.AppID == 0 {
		errs = append(errs, errors.New("API_ID is not set"))
	}
	if c.AppHash == "" {
		errs = append(errs, errors.New("API_HASH is not set"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func loadEnvFiles() {
	env := getEnv("APP_ENV", "development")
	for _, f := range []string{".env.local", ".env." + env, ".env"} {
		if _, err := os.Stat(f); err == nil {
			// godotenv never overrides variables that are already set, so
			// earlier files take precedence.
			_ = godotenv.Load(f)
		}
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// getDuration accepts either a Go duration ("45s") or plain seconds ("45").
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func getInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}
