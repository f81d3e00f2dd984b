package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"duckweb/internal/strategy"
)

// writeConfig writes content to a temporary YAML file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duckweb.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// clearEnv unsets every override so the host environment cannot interfere.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "CLICKHOUSE_DSN", "POSTGRES_DSN", "BAR_SOURCE",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_DATA_URL", "LOG_LEVEL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  bar_source: "sqlite"
  data_dir: "/tmp/duckweb/data"
  sqlite_path: "/tmp/duckweb/bars.db"
server:
  host: "0.0.0.0"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  feed: "iex"
logging:
  level: "debug"
  format: "json"
gather:
  index: "spy"
  symbol: "SPY"
  timeframe: "5min"
  start_date: "2024-01-01"
  rate_limit_per_min: 100
backtest:
  risk_rewards: ["1.0", "2.5", "Until Opposite Signal"]
  workers: 4
  warmup_bars: 200
  indicators:
    - indicator: ema
      period: 50
    - indicator: supertrend
      period: 7
      multiplier: 2.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.BarSource != SourceSQLite {
		t.Errorf("Storage.BarSource = %q, want %q", cfg.Storage.BarSource, SourceSQLite)
	}
	if cfg.Storage.SQLitePath != "/tmp/duckweb/bars.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/duckweb/bars.db")
	}

	// -- Server --
	if got := cfg.Server.HTTPAddr(); got != "0.0.0.0:8081" {
		t.Errorf("Server.HTTPAddr() = %q, want %q", got, "0.0.0.0:8081")
	}
	if got := cfg.Server.GRPCAddr(); got != "0.0.0.0:9091" {
		t.Errorf("Server.GRPCAddr() = %q, want %q", got, "0.0.0.0:9091")
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "iex")
	}

	// -- Gather --
	if cfg.Gather.Timeframe != "5min" {
		t.Errorf("Gather.Timeframe = %q, want %q", cfg.Gather.Timeframe, "5min")
	}
	if cfg.Gather.RateLimitPerMin != 100 {
		t.Errorf("Gather.RateLimitPerMin = %d, want %d", cfg.Gather.RateLimitPerMin, 100)
	}

	// -- Backtest --
	rrs, err := cfg.Backtest.RiskRewardSettings()
	if err != nil {
		t.Fatalf("RiskRewardSettings() returned error: %v", err)
	}
	if len(rrs) != 3 || rrs[1].Ratio != 2.5 || !rrs[2].HoldUntilFlip {
		t.Errorf("RiskRewardSettings() = %+v", rrs)
	}
	if len(cfg.Backtest.Indicators) != 2 {
		t.Fatalf("Backtest.Indicators has %d entries, want 2", len(cfg.Backtest.Indicators))
	}
	if got := cfg.Backtest.Indicators[1].Normalize().Label(); got != "SuperTrend(7,2.5)" {
		t.Errorf("Indicators[1].Label() = %q, want %q", got, "SuperTrend(7,2.5)")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "logging:\n  format: json\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.BarSource != SourceParquet {
		t.Errorf("Storage.BarSource = %q, want %q", cfg.Storage.BarSource, SourceParquet)
	}
	if cfg.Server.Port != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server ports = %d/%d, want 8080/9090", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	rrs, err := cfg.Backtest.RiskRewardSettings()
	if err != nil || len(rrs) != 7 {
		t.Errorf("RiskRewardSettings() = %d settings, err %v; want 7 defaults", len(rrs), err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() returned error: %v", err)
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
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("BAR_SOURCE", "clickhouse")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/market")
	t.Setenv("APCA_API_SECRET_KEY", "apca-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "apca-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (APCA override)", cfg.Alpaca.APISecret, "apca-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Storage.BarSource != SourceClickHouse {
		t.Errorf("Storage.BarSource = %q, want %q", cfg.Storage.BarSource, SourceClickHouse)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() returned error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown source", Config{Storage: Storage{BarSource: "duckdb"}}},
		{"postgres without dsn", Config{Storage: Storage{BarSource: SourcePostgres}}},
		{"bad risk reward", Config{
			Storage:  Storage{BarSource: SourceMemory},
			Backtest: BacktestConfig{RiskRewards: []string{"0"}},
		}},
		{"bad indicator", Config{
			Storage: Storage{BarSource: SourceMemory},
			Backtest: BacktestConfig{Indicators: []strategy.Config{
				{Indicator: "ema", Period: 1000},
			}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("DUCKWEB_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("DUCKWEB_CONFIG", "/etc/duckweb.yaml")
	if got := Path(); got != "/etc/duckweb.yaml" {
		t.Errorf("Path() = %q, want %q", got, "/etc/duckweb.yaml")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("BAR_SOURCE", "memory")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault error: %v", err)
	}
	if cfg.Storage.BarSource != SourceMemory {
		t.Errorf("BarSource = %q, want %q", cfg.Storage.BarSource, SourceMemory)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}

	bad := writeConfig(t, "storage: [not, a, map]\n")
	if _, err := LoadOrDefault(bad); err == nil {
		t.Error("expected parse error for malformed file")
	}
}
