package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"duckweb/internal/backtest"
	"duckweb/internal/strategy"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Bar sources understood by the store factory.
const (
	SourceParquet    = "parquet"
	SourceSQLite     = "sqlite"
	SourceClickHouse = "clickhouse"
	SourcePostgres   = "postgres"
	SourceMemory     = "memory"
)

// DefaultPath is where commands look for the config file unless
// DUCKWEB_CONFIG is set.
const DefaultPath = "config/duckweb.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for duckweb.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage selects the bar store and holds its connection settings.
type Storage struct {
	BarSource     string `yaml:"bar_source"`
	DataDir       string `yaml:"data_dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// HTTPAddr returns host:port of the HTTP listener.
func (s Server) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCAddr returns host:port of the gRPC listener.
func (s Server) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// Alpaca holds credentials and the market data endpoint.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls the bar gatherer.
type GatherConfig struct {
	// Index names the stored series, e.g. "spy" for SPY bars.
	Index           string   `yaml:"index"`
	Symbol          string   `yaml:"symbol"`
	Timeframe       string   `yaml:"timeframe"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	Symbols         []string `yaml:"symbols"`
}

// BacktestConfig holds the defaults applied to backtest requests.
type BacktestConfig struct {
	RiskRewards []string          `yaml:"risk_rewards"`
	Workers     int               `yaml:"workers"`
	WarmupBars  int               `yaml:"warmup_bars"`
	Indicators  []strategy.Config `yaml:"indicators"`
}

// RiskRewardSettings parses RiskRewards, or returns the default sweep when
// none are configured.
func (b BacktestConfig) RiskRewardSettings() ([]backtest.RiskReward, error) {
	if len(b.RiskRewards) == 0 {
		return backtest.DefaultRiskRewards(), nil
	}
	return backtest.ParseRiskRewards(b.RiskRewards)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns DUCKWEB_CONFIG when set, DefaultPath otherwise.
func Path() string {
	if v := os.Getenv("DUCKWEB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults and then environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.BarSource == "" {
		cfg.Storage.BarSource = SourceParquet
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Gather.Timeframe == "" {
		cfg.Gather.Timeframe = "1day"
	}
	if cfg.Gather.RateLimitPerMin == 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
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

	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}

	if v := os.Getenv("BAR_SOURCE"); v != "" {
		cfg.Storage.BarSource = v
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

	// Standard Alpaca env vars take precedence; the SDK uses these names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate checks the bar source and its connection settings, the
// risk-reward labels and the default indicator configurations.
func (c *Config) Validate() error {
	c.Storage.BarSource = strings.ToLower(c.Storage.BarSource)
	switch c.Storage.BarSource {
	case SourceParquet:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("%w: parquet source needs storage.data_dir", ErrInvalid)
		}
	case SourceSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite source needs storage.sqlite_path", ErrInvalid)
		}
	case SourceClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("%w: clickhouse source needs storage.clickhouse_dsn", ErrInvalid)
		}
	case SourcePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres source needs storage.postgres_dsn", ErrInvalid)
		}
	case SourceMemory:
	default:
		return fmt.Errorf("%w: unknown bar source %q", ErrInvalid, c.Storage.BarSource)
	}

	if _, err := c.Backtest.RiskRewardSettings(); err != nil {
		return fmt.Errorf("%w: backtest.risk_rewards: %w", ErrInvalid, err)
	}
	if c.Backtest.Workers < 0 || c.Backtest.WarmupBars < 0 {
		return fmt.Errorf("%w: backtest workers and warmup_bars must not be negative", ErrInvalid)
	}
	for i, ind := range c.Backtest.Indicators {
		if err := ind.Normalize().Validate(); err != nil {
			return fmt.Errorf("%w: backtest.indicators[%d]: %w", ErrInvalid, i, err)
		}
	}
	return nil
}
