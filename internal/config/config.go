package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIBaseURL はストーリー共有APIの既定のオリジン。
const DefaultAPIBaseURL = "https://hack-or-snooze-v3.herokuapp.com"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL    string
	HTTPTimeout   time.Duration
	RateLimit     float64 // req/sec。0の場合は制限しない
	RateBurst     int
	SafeTransport bool
	ReadRetries   int // 読み取りコマンドが通信失敗時に再試行する回数

	// Credential store
	CredentialStore string

	// Logging
	LogLevel slog.Level

	// Metrics
	MetricsFile string

	// Fake API server
	FakeAddr string
}

// Load は環境変数からConfigを読み込む。
// APIのオリジンが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(getEnvString("SNOOZE_API_BASE_URL", DefaultAPIBaseURL), "/")
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("SNOOZE_API_BASE_URL must be an absolute http(s) URL: %q", cfg.APIBaseURL)
	}

	cfg.HTTPTimeout = getEnvDuration("SNOOZE_HTTP_TIMEOUT", 5*time.Second)
	cfg.RateLimit = getEnvFloat("SNOOZE_RATE_LIMIT", 0)
	cfg.RateBurst = getEnvInt("SNOOZE_RATE_BURST", 5)
	cfg.ReadRetries = getEnvInt("SNOOZE_READ_RETRIES", 2)
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
	cfg.SafeTransport = getEnvBool("SNOOZE_SAFE_TRANSPORT", strings.HasPrefix(cfg.APIBaseURL, "https://"))
	cfg.CredentialStore = getEnvString("SNOOZE_CREDENTIAL_STORE", defaultCredentialStore())
	cfg.LogLevel = getEnvLevel("SNOOZE_LOG_LEVEL", slog.LevelInfo)
	cfg.MetricsFile = getEnvString("SNOOZE_METRICS_FILE", "")
	cfg.FakeAddr = getEnvString("SNOOZE_FAKE_ADDR", ":8099")

	return cfg, nil
}

// defaultCredentialStore はホームディレクトリ配下のSQLiteファイルパスを返す。
func defaultCredentialStore() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".snooze", "credentials.db")
	}
	return filepath.Join(home, ".snooze", "credentials.db")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
