package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when INTRAVIEW_CONFIG is not set.
const DefaultPath = "config/intraview.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for intraview.
type Config struct {
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	Query   Query   `yaml:"query"`
	Chart   Chart   `yaml:"chart"`
	Ingest  Ingest  `yaml:"ingest"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Logging Logging `yaml:"logging"`
	Prefs   Prefs   `yaml:"prefs"`
}

// Storage holds paths for data persistence. An empty DuckDBPath runs DuckDB
// in memory.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	DuckDBPath string `yaml:"duckdb_path"`
	// TreeRefresh is how often the file tree is rebuilt if the directory
	// watcher cannot run.
	TreeRefresh time.Duration `yaml:"tree_refresh"`
}

// Server holds network listener configuration.
type Server struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	GRPCPort       int      `yaml:"grpc_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for the HTTP listener.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns host:grpc_port, or "" when gRPC is disabled.
func (s Server) GRPCAddr() string {
	if s.GRPCPort <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// Query bounds explorer queries.
type Query struct {
	MaxRows int           `yaml:"max_rows"`
	Timeout time.Duration `yaml:"timeout"`
}

// Chart holds charting defaults.
type Chart struct {
	MaxPoints int `yaml:"max_points"`
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
}

// Ingest controls CSV conversion and loading.
type Ingest struct {
	SourceDir  string `yaml:"source_dir"`
	MaxWorkers int    `yaml:"max_workers"`
	BatchSize  int    `yaml:"batch_size"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	RateBurst       int    `yaml:"rate_burst"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// Prefs configures the preferences file.
type Prefs struct {
	Path      string `yaml:"path"`
	MaxRecent int    `yaml:"max_recent"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// LoadDefault loads the file named by INTRAVIEW_CONFIG (or DefaultPath). A
// missing default file is not an error: defaults and env overrides apply.
func LoadDefault() (*Config, error) {
	path := os.Getenv("INTRAVIEW_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		applyEnvOverrides(cfg)
		applyDefaults(cfg)
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config %s: %w", path, err)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DUCKDB_PATH"); v != "" {
		cfg.Storage.DuckDBPath = v
	}

	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills every zero field that has a sensible default.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/intraview.db"
	}
	if cfg.Storage.TreeRefresh <= 0 {
		cfg.Storage.TreeRefresh = 30 * time.Second
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
			"http://localhost:3002",
			"http://localhost:3003",
		}
	}

	if cfg.Query.MaxRows <= 0 {
		cfg.Query.MaxRows = 10000
	}
	if cfg.Query.Timeout <= 0 {
		cfg.Query.Timeout = 30 * time.Second
	}

	if cfg.Chart.MaxPoints <= 0 {
		cfg.Chart.MaxPoints = 2000
	}
	if cfg.Chart.Width <= 0 {
		cfg.Chart.Width = 1024
	}
	if cfg.Chart.Height <= 0 {
		cfg.Chart.Height = 400
	}

	if cfg.Ingest.MaxWorkers <= 0 {
		cfg.Ingest.MaxWorkers = 4
	}
	if cfg.Ingest.BatchSize <= 0 {
		cfg.Ingest.BatchSize = 1000
	}

	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Alpaca.RateLimitPerMin <= 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Alpaca.RateBurst <= 0 {
		cfg.Alpaca.RateBurst = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Prefs.Path == "" {
		cfg.Prefs.Path = "data/prefs.json"
	}
	if cfg.Prefs.MaxRecent <= 0 {
		cfg.Prefs.MaxRecent = 10
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
