package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Logger      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logger"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		RateLimit       struct {
			Burst     float64 `yaml:"burst"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	AlphaVantage struct {
		Endpoint   string        `yaml:"endpoint"`
		APIKey     string        `yaml:"api_key"`
		Tickers    []string      `yaml:"tickers"`
		OutputSize string        `yaml:"outputsize"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"alphavantage"`
	Budget struct {
		DailyLimit int    `yaml:"daily_limit"`
		Backend    string `yaml:"backend"` // file or cache
		File       string `yaml:"file"`
	} `yaml:"budget"`
	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`
	Cache struct {
		Backend  string        `yaml:"backend"` // memory, redis or layered
		TTL      time.Duration `yaml:"ttl"`
		MaxSize  int           `yaml:"max_size"`
		L1TTL    time.Duration `yaml:"l1_ttl"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ReportsTopic string   `yaml:"reports_topic"`
		RefreshTopic string   `yaml:"refresh_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
		LogCollector struct {
			Enabled        bool          `yaml:"enabled"`
			FlushInterval  time.Duration `yaml:"flush_interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`
	Scheduler struct {
		Enabled    bool   `yaml:"enabled"`
		RefreshAt  string `yaml:"refresh_at"` // cron spec
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"scheduler"`
	Analysis struct {
		MAWindow      int     `yaml:"ma_window"`
		TestRatio     float64 `yaml:"test_ratio"`
		Seed          int64   `yaml:"seed"`
		PredictTicker string  `yaml:"predict_ticker"`
	} `yaml:"analysis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the given environment lookup.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.AlphaVantage.APIKey = v
	}
	if v := getenv("TICKERS"); v != "" {
		c.AlphaVantage.Tickers = splitList(v)
	}
	if v := getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stdout"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 20
	}
	if c.Server.RateLimit.PerSecond == 0 {
		c.Server.RateLimit.PerSecond = 5
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.AlphaVantage.Endpoint == "" {
		c.AlphaVantage.Endpoint = "https://www.alphavantage.co/query"
	}
	if c.AlphaVantage.OutputSize == "" {
		c.AlphaVantage.OutputSize = "full"
	}
	if c.AlphaVantage.Timeout == 0 {
		c.AlphaVantage.Timeout = 30 * time.Second
	}
	if c.Budget.DailyLimit == 0 {
		c.Budget.DailyLimit = 25
	}
	if c.Budget.Backend == "" {
		c.Budget.Backend = "file"
	}
	if c.Budget.File == "" {
		c.Budget.File = "api_tracker.txt"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.L1TTL == 0 {
		c.Cache.L1TTL = 30 * time.Second
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "bankstats"
	}
	if c.Scheduler.RefreshAt == "" {
		c.Scheduler.RefreshAt = "0 30 22 * * 1-5"
	}
	if c.Analysis.MAWindow == 0 {
		c.Analysis.MAWindow = 20
	}
	if c.Analysis.TestRatio == 0 {
		c.Analysis.TestRatio = 0.25
	}
	if c.Analysis.PredictTicker == "" {
		c.Analysis.PredictTicker = "JPM"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.AlphaVantage.Tickers) == 0 {
		return fmt.Errorf("alphavantage.tickers cannot be empty")
	}
	if c.Budget.Backend != "file" && c.Budget.Backend != "cache" {
		return fmt.Errorf("budget.backend must be 'file' or 'cache', got '%s'", c.Budget.Backend)
	}
	if c.Budget.DailyLimit < 0 {
		return fmt.Errorf("budget.daily_limit must not be negative")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis", "layered":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for %s backend", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Analysis.MAWindow < 2 {
		return fmt.Errorf("analysis.ma_window must be at least 2")
	}
	if c.Analysis.TestRatio <= 0 || c.Analysis.TestRatio >= 1 {
		return fmt.Errorf("analysis.test_ratio must be in (0, 1)")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
