package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intraview.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "DUCKDB_PATH", "HOST", "PORT", "ALLOWED_ORIGINS",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_DATA_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL", "LOG_FORMAT", "INTRAVIEW_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/intraview/data"
  sqlite_path: "/tmp/intraview/intraview.db"
  duckdb_path: "/tmp/intraview/explorer.duckdb"
  tree_refresh: 1m
server:
  host: "127.0.0.1"
  port: 8080
  grpc_port: 9090
  allowed_origins: ["http://localhost:5173"]
query:
  max_rows: 500
  timeout: 5s
chart:
  max_points: 1000
ingest:
  source_dir: "/tmp/intraview/csv"
  max_workers: 8
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
  rate_burst: 5
logging:
  level: "debug"
  format: "text"
prefs:
  max_recent: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/intraview/data" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.DuckDBPath != "/tmp/intraview/explorer.duckdb" {
		t.Errorf("Storage.DuckDBPath = %q", cfg.Storage.DuckDBPath)
	}

	// -- Server --
	if got := cfg.Server.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Server.Addr() = %q, want %q", got, "127.0.0.1:8080")
	}
	if got := cfg.Server.GRPCAddr(); got != "127.0.0.1:9090" {
		t.Errorf("Server.GRPCAddr() = %q, want %q", got, "127.0.0.1:9090")
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	// -- Query / Chart / Ingest --
	if cfg.Query.MaxRows != 500 || cfg.Query.Timeout != 5*time.Second {
		t.Errorf("Query = %+v, want max_rows 500 timeout 5s", cfg.Query)
	}
	if cfg.Chart.MaxPoints != 1000 {
		t.Errorf("Chart.MaxPoints = %d, want 1000", cfg.Chart.MaxPoints)
	}
	if cfg.Chart.Width != 1024 {
		t.Errorf("Chart.Width = %d, want default 1024", cfg.Chart.Width)
	}
	if cfg.Ingest.MaxWorkers != 8 || cfg.Ingest.BatchSize != 1000 {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}

	// -- Alpaca / Logging / Prefs --
	if cfg.Storage.TreeRefresh != time.Minute {
		t.Errorf("Storage.TreeRefresh = %s, want 1m", cfg.Storage.TreeRefresh)
	}
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "sip" || cfg.Alpaca.RateBurst != 5 {
		t.Errorf("Alpaca = %+v", cfg.Alpaca)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Prefs.MaxRecent != 5 || cfg.Prefs.Path != "data/prefs.json" {
		t.Errorf("Prefs = %+v", cfg.Prefs)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.GRPCAddr() != "" {
		t.Errorf("GRPCAddr() = %q, want disabled", cfg.Server.GRPCAddr())
	}
	if len(cfg.Server.AllowedOrigins) != 4 {
		t.Errorf("AllowedOrigins = %v, want the four localhost dev origins", cfg.Server.AllowedOrigins)
	}
	if cfg.Query.MaxRows != 10000 || cfg.Chart.MaxPoints != 2000 {
		t.Errorf("Query.MaxRows = %d, Chart.MaxPoints = %d", cfg.Query.MaxRows, cfg.Chart.MaxPoints)
	}
	if cfg.Storage.TreeRefresh != 30*time.Second {
		t.Errorf("Storage.TreeRefresh = %s, want 30s", cfg.Storage.TreeRefresh)
	}
	if cfg.Alpaca.RateLimitPerMin != 200 || cfg.Alpaca.RateBurst != 1 {
		t.Errorf("Alpaca rate = %d/min burst %d, want 200/min burst 1", cfg.Alpaca.RateLimitPerMin, cfg.Alpaca.RateBurst)
	}
	if cfg.Ingest.MaxWorkers != 4 || cfg.Prefs.MaxRecent != 10 {
		t.Errorf("Ingest.MaxWorkers = %d, Prefs.MaxRecent = %d", cfg.Ingest.MaxWorkers, cfg.Prefs.MaxRecent)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
server:
  port: 8000
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("Alpaca.APIKey = %q, want APCA_API_KEY_ID to win", cfg.Alpaca.APIKey)
	}
}

func TestLoadDefaultMissingFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() without a config file: %v", err)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("Storage.DataDir = %q, want default", cfg.Storage.DataDir)
	}

	t.Setenv("INTRAVIEW_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadDefault(); err == nil {
		t.Fatal("LoadDefault() with an explicit missing file should fail")
	}
}
