// Package config manages banchod's configuration using koanf/v2.
//
// Supports YAML files and environment variables, layered on top of
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration structures
// -------------------------------------------------------------------------

// Config holds the complete banchod configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Token    TokenConfig    `koanf:"token"`
	GeoIP    GeoIPConfig    `koanf:"geoip"`
	Reapers  ReapersConfig  `koanf:"reapers"`
	Password PasswordConfig `koanf:"password"`
}

// HTTPConfig holds the Bancho HTTP transport listen configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// GRPCConfig holds the gRPC-facade/health server configuration.
type GRPCConfig struct {
	// Addr is the gRPC listen address (e.g., ":50051").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// StoreConfig configures the user repository.
type StoreConfig struct {
	// SQLitePath, when non-empty, selects the local SQLite-backed
	// repository. Mutually exclusive with RemoteURL.
	SQLitePath string `koanf:"sqlite_path"`
	// RemoteURL, when non-empty and SQLitePath is empty, selects the
	// remote HTTP-JSON repository.
	RemoteURL string `koanf:"remote_url"`
}

// TokenConfig configures the Ed25519 session token signer.
type TokenConfig struct {
	// PEMPath is where the signer's private key is persisted. When the
	// file does not exist, a fresh keypair is generated and written there.
	PEMPath string `koanf:"pem_path"`
}

// GeoIPConfig configures IP geolocation.
type GeoIPConfig struct {
	// MMDBPath, when non-empty, selects the local MaxMind database.
	MMDBPath string `koanf:"mmdb_path"`
	// RemoteURL, when non-empty and MMDBPath is empty, selects the
	// remote HTTP resolver. Neither set degrades to a no-op resolver.
	RemoteURL string `koanf:"remote_url"`
}

// ReapersConfig configures the three background reaper loops.
type ReapersConfig struct {
	// SessionIntervalMillis is the session reaper's tick period.
	SessionIntervalMillis int64 `koanf:"session_interval_millis"`
	// SessionDeadMillis is how long a session may go without activity
	// before the reaper considers it dead.
	SessionDeadMillis int64 `koanf:"session_dead_millis"`
	// NotifyIntervalMillis is the notify-queue reaper's tick period.
	NotifyIntervalMillis int64 `koanf:"notify_interval_millis"`
	// LogoutGraceMillis is the post-login grace period during which a
	// UserLogout packet is suppressed (spec Open Question: resolved as
	// configurable, default 1000ms).
	LogoutGraceMillis int64 `koanf:"logout_grace_millis"`
}

// PasswordConfig configures the Argon2 verification-result cache.
type PasswordConfig struct {
	CacheTTLMillis             int64 `koanf:"cache_ttl_millis"`
	CacheCleanupIntervalMillis int64 `koanf:"cache_cleanup_interval_millis"`
}

// -------------------------------------------------------------------------
// Duration accessors
// -------------------------------------------------------------------------

func (r ReapersConfig) SessionInterval() time.Duration {
	return time.Duration(r.SessionIntervalMillis) * time.Millisecond
}

func (r ReapersConfig) SessionDead() time.Duration {
	return time.Duration(r.SessionDeadMillis) * time.Millisecond
}

func (r ReapersConfig) NotifyInterval() time.Duration {
	return time.Duration(r.NotifyIntervalMillis) * time.Millisecond
}

func (r ReapersConfig) LogoutGrace() time.Duration {
	return time.Duration(r.LogoutGraceMillis) * time.Millisecond
}

func (p PasswordConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLMillis) * time.Millisecond
}

func (p PasswordConfig) CacheCleanupInterval() time.Duration {
	return time.Duration(p.CacheCleanupIntervalMillis) * time.Millisecond
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		GRPC: GRPCConfig{Addr: ":50051"},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			SQLitePath: "banchod.db",
		},
		Token: TokenConfig{
			PEMPath: "banchod-signing.pem",
		},
		Reapers: ReapersConfig{
			SessionIntervalMillis: 180_000,
			SessionDeadMillis:     180_000,
			NotifyIntervalMillis:  300_000,
			LogoutGraceMillis:     1_000,
		},
		Password: PasswordConfig{
			CacheTTLMillis:             86_400_000,
			CacheCleanupIntervalMillis: 43_200_000,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for banchod configuration.
// Variables are named BANCHOD_<section>_<key>, e.g. BANCHOD_HTTP_ADDR.
const envPrefix = "BANCHOD_"

// Load reads configuration from a YAML file at path (if it exists),
// overlays environment variable overrides (BANCHOD_ prefix), and merges
// on top of DefaultConfig(). Missing fields inherit defaults. An empty
// path skips the file layer entirely.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms BANCHOD_HTTP_ADDR -> http.addr. Only the first
// underscore separates section from key, so BANCHOD_STORE_SQLITE_PATH maps
// to store.sqlite_path.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"http.addr":                            d.HTTP.Addr,
		"grpc.addr":                            d.GRPC.Addr,
		"metrics.addr":                         d.Metrics.Addr,
		"metrics.path":                         d.Metrics.Path,
		"log.level":                            d.Log.Level,
		"log.format":                           d.Log.Format,
		"store.sqlite_path":                    d.Store.SQLitePath,
		"store.remote_url":                     d.Store.RemoteURL,
		"token.pem_path":                       d.Token.PEMPath,
		"geoip.mmdb_path":                      d.GeoIP.MMDBPath,
		"geoip.remote_url":                     d.GeoIP.RemoteURL,
		"reapers.session_interval_millis":      d.Reapers.SessionIntervalMillis,
		"reapers.session_dead_millis":          d.Reapers.SessionDeadMillis,
		"reapers.notify_interval_millis":       d.Reapers.NotifyIntervalMillis,
		"reapers.logout_grace_millis":          d.Reapers.LogoutGraceMillis,
		"password.cache_ttl_millis":            d.Password.CacheTTLMillis,
		"password.cache_cleanup_interval_millis": d.Password.CacheCleanupIntervalMillis,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

var (
	ErrEmptyHTTPAddr           = errors.New("http.addr must not be empty")
	ErrEmptyGRPCAddr           = errors.New("grpc.addr must not be empty")
	ErrBothStoreBackends       = errors.New("store: sqlite_path and remote_url are mutually exclusive")
	ErrNoStoreBackend          = errors.New("store: one of sqlite_path or remote_url must be set")
	ErrInvalidSessionDead      = errors.New("reapers.session_dead_millis must be > 0")
	ErrInvalidSessionInterval  = errors.New("reapers.session_interval_millis must be > 0")
	ErrInvalidNotifyInterval   = errors.New("reapers.notify_interval_millis must be > 0")
	ErrInvalidLogoutGrace      = errors.New("reapers.logout_grace_millis must be >= 0")
)

// Validate checks the configuration for logical errors. Returns the
// first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return ErrEmptyHTTPAddr
	}
	if cfg.GRPC.Addr == "" {
		return ErrEmptyGRPCAddr
	}
	if cfg.Store.SQLitePath != "" && cfg.Store.RemoteURL != "" {
		return ErrBothStoreBackends
	}
	if cfg.Store.SQLitePath == "" && cfg.Store.RemoteURL == "" {
		return ErrNoStoreBackend
	}
	if cfg.Reapers.SessionIntervalMillis <= 0 {
		return ErrInvalidSessionInterval
	}
	if cfg.Reapers.SessionDeadMillis <= 0 {
		return ErrInvalidSessionDead
	}
	if cfg.Reapers.NotifyIntervalMillis <= 0 {
		return ErrInvalidNotifyInterval
	}
	if cfg.Reapers.LogoutGraceMillis < 0 {
		return ErrInvalidLogoutGrace
	}
	return nil
}

// -------------------------------------------------------------------------
// Log level parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
