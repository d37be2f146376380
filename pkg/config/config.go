package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"TruthGate/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Opportunities string `yaml:"opportunities"`
			Evaluations   string `yaml:"evaluations"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Evaluator struct {
		EntryTolerance time.Duration `yaml:"entry_tolerance"` // entry candle lookup window around issue time
		ATRPeriod      int           `yaml:"atr_period"`
		TieBreak       string        `yaml:"tie_break"` // target_wins or stop_wins
		Workers        int           `yaml:"workers"`
		Interval       time.Duration `yaml:"interval"`
		StoreTimeout   time.Duration `yaml:"store_timeout"`
	} `yaml:"evaluator"`
	Calibration struct {
		Interval     time.Duration `yaml:"interval"`
		LookbackDays int           `yaml:"lookback_days"`
		MinSamples   int           `yaml:"min_samples"`
	} `yaml:"calibration"`
	Gateway struct {
		CooldownWindow time.Duration `yaml:"cooldown_window"`
		IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
		StoreTimeout   time.Duration `yaml:"store_timeout"`
	} `yaml:"gateway"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	// Validate required fields
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

	// Override with environment variables
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PORT"); v != "" {
		c.ClickHouse.Port = util.ParseIntDefault(v, c.ClickHouse.Port)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = util.ParseIntDefault(v, c.Redis.Port)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Evaluator.EntryTolerance <= 0 {
		c.Evaluator.EntryTolerance = 2 * time.Minute
	}
	if c.Evaluator.ATRPeriod <= 0 {
		c.Evaluator.ATRPeriod = 14
	}
	if c.Evaluator.TieBreak == "" {
		c.Evaluator.TieBreak = "target_wins"
	}
	if c.Evaluator.Workers <= 0 {
		c.Evaluator.Workers = 4
	}
	if c.Evaluator.Interval <= 0 {
		c.Evaluator.Interval = 15 * time.Minute
	}
	if c.Evaluator.StoreTimeout <= 0 {
		c.Evaluator.StoreTimeout = 10 * time.Second
	}
	if c.Calibration.Interval <= 0 {
		c.Calibration.Interval = time.Hour
	}
	if c.Calibration.LookbackDays <= 0 {
		c.Calibration.LookbackDays = 30
	}
	if c.Calibration.MinSamples <= 0 {
		c.Calibration.MinSamples = 10
	}
	if c.Gateway.CooldownWindow <= 0 {
		c.Gateway.CooldownWindow = 60 * time.Minute
	}
	if c.Gateway.IdempotencyTTL <= 0 {
		c.Gateway.IdempotencyTTL = 24 * time.Hour
	}
	if c.Gateway.StoreTimeout <= 0 {
		c.Gateway.StoreTimeout = 3 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if c.Evaluator.TieBreak != "target_wins" && c.Evaluator.TieBreak != "stop_wins" {
		return fmt.Errorf("evaluator.tie_break must be 'target_wins' or 'stop_wins', got '%s'", c.Evaluator.TieBreak)
	}
	return nil
}
