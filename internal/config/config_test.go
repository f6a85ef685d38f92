package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"banchod/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "banchod.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestDefaultConfigPassesValidation(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("DefaultConfig() failed validation: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":8080")
	}
	if cfg.Reapers.LogoutGrace().Milliseconds() != 1000 {
		t.Errorf("LogoutGrace() = %v, want 1000ms", cfg.Reapers.LogoutGrace())
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `
http:
  addr: ":9999"
log:
  level: "debug"
store:
  sqlite_path: "test.db"
reapers:
  logout_grace_millis: 2500
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q): %v", path, err)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":9999")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Reapers.LogoutGraceMillis != 2500 {
		t.Errorf("LogoutGraceMillis = %d, want 2500", cfg.Reapers.LogoutGraceMillis)
	}
	if cfg.Store.RemoteURL != "" {
		t.Errorf("RemoteURL should stay empty when sqlite_path is set, got %q", cfg.Store.RemoteURL)
	}
}

func TestLoadWithEmptyPathSkipsFileLayer(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default HTTP.Addr, got %q", cfg.HTTP.Addr)
	}
}

func TestValidateRejectsBothStoreBackends(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Store.RemoteURL = "http://example.invalid"
	if err := config.Validate(cfg); err != config.ErrBothStoreBackends {
		t.Fatalf("expected ErrBothStoreBackends, got %v", err)
	}
}

func TestValidateRejectsNoStoreBackend(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Store.SQLitePath = ""
	if err := config.Validate(cfg); err != config.ErrNoStoreBackend {
		t.Fatalf("expected ErrNoStoreBackend, got %v", err)
	}
}

func TestParseLogLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	if got := config.ParseLogLevel("nonsense"); got.String() != "INFO" {
		t.Errorf("ParseLogLevel(nonsense) = %v, want INFO", got)
	}
}
