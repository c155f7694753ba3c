package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config は起動時に環境変数から読み込む設定。読み込み後は変更しない。
type Config struct {
	// Database
	DatabaseURL string

	// Remote
	RemoteBaseURL         string
	RemoteAPIToken        string
	RemoteTimeout         time.Duration
	RemoteRateLimit       float64
	RemoteBurst           int
	RemoteRestrictNetwork bool

	// Cache
	PageSize int

	// Sync
	SyncInterval time.Duration
	SyncPageSize int
	ServeSync    bool // serve プロセス内で同期とクリーンアップも実行する

	// Store
	StoreRetentionDays int
	CleanupInterval    time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数から Config を組み立てる。
// DATABASE_URL と REMOTE_BASE_URL は必須。任意項目は未設定や解釈できない値なら既定値を使う。
func Load() (*Config, error) {
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:   required("DATABASE_URL"),
		RemoteBaseURL: required("REMOTE_BASE_URL"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if !isAbsoluteHTTPURL(cfg.RemoteBaseURL) {
		return nil, fmt.Errorf("REMOTE_BASE_URL must be an absolute http(s) URL: %q", cfg.RemoteBaseURL)
	}

	cfg.RemoteAPIToken = env("REMOTE_API_TOKEN", "", parseString)
	cfg.RemoteTimeout = env("REMOTE_TIMEOUT", 10*time.Second, time.ParseDuration)
	cfg.RemoteRateLimit = env("REMOTE_RATE_LIMIT", 5.0, parseFloat)
	cfg.RemoteBurst = env("REMOTE_BURST", 10, strconv.Atoi)
	cfg.RemoteRestrictNetwork = env("REMOTE_RESTRICT_NETWORK", false, strconv.ParseBool)

	cfg.PageSize = env("PAGE_SIZE", 20, strconv.Atoi)
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive: %d", cfg.PageSize)
	}

	cfg.SyncInterval = env("SYNC_INTERVAL", 5*time.Minute, time.ParseDuration)
	cfg.SyncPageSize = env("SYNC_PAGE_SIZE", 50, strconv.Atoi)
	cfg.ServeSync = env("SERVE_SYNC", true, strconv.ParseBool)
	cfg.StoreRetentionDays = env("STORE_RETENTION_DAYS", 90, strconv.Atoi)
	cfg.CleanupInterval = env("CLEANUP_INTERVAL", 24*time.Hour, time.ParseDuration)
	cfg.LogLevel = env("LOG_LEVEL", "info", parseString)
	cfg.ServerPort = env("SERVER_PORT", "8080", parseString)
	cfg.CORSAllowedOrigin = env("CORS_ALLOWED_ORIGIN", "http://localhost:3000", parseString)

	return cfg, nil
}

// env は key の値を parse で変換する。未設定か変換に失敗した場合は def を返す。
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
