package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Storage struct {
		BasePath            string `yaml:"base_path" default:"data"`
		HotDataDays         int    `yaml:"hot_data_days" default:"30"`
		MaxWorkers          int    `yaml:"max_workers" default:"4"`
		BackupEnabled       bool   `yaml:"backup_enabled"`
		BackupRetentionDays int    `yaml:"backup_retention_days" default:"7"`
		ArchiveAfterDays    int    `yaml:"archive_after_days" default:"180"`
		RetentionDays       int    `yaml:"retention_days" default:"730"`
	} `yaml:"storage"`
	Cache struct {
		Dir                    string `yaml:"dir" default:"data/cache"`
		MaxSizeMB              int    `yaml:"max_size_mb" default:"1000"`
		CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds" default:"3600"`
		CompressionEnabled     bool   `yaml:"compression_enabled" default:"true"`
		UseMetadataIndex       bool   `yaml:"use_metadata_index" default:"true"`
		Redis                  struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Alignment struct {
		BaseTimeframe   string   `yaml:"base_timeframe" default:"5m"`
		Timeframes      []string `yaml:"timeframes"`
		RequiredSymbols []string `yaml:"required_symbols"`
		CoverageFloor   float64  `yaml:"coverage_floor" default:"0.95"`
	} `yaml:"alignment"`
	Coordinator struct {
		SpanCoverageWeight     float64            `yaml:"span_coverage_weight" default:"0.3"`
		PriceConsistencyWeight float64            `yaml:"price_consistency_weight" default:"0.7"`
		MinAggregationQuality  float64            `yaml:"min_aggregation_quality" default:"0.8"`
		Tolerances             map[string]float64 `yaml:"tolerances"`
	} `yaml:"coordinator"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"candlegrid"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled     bool     `yaml:"enabled"`
		Brokers     []string `yaml:"brokers"`
		Topic       string   `yaml:"topic" default:"candlegrid.sessions"`
		Compression string   `yaml:"compression" default:"snappy"`
	} `yaml:"kafka"`
	Source struct {
		BaseURL string        `yaml:"base_url" default:"https://api.binance.com"`
		Timeout time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"source"`
	Maintenance struct {
		CompactCron string `yaml:"compact_cron" default:"0 0 2 * * *"`
		ArchiveCron string `yaml:"archive_cron" default:"0 30 2 * * 0"`
		CleanupCron string `yaml:"cleanup_cron" default:"0 0 3 * * 0"`
		BackupCron  string `yaml:"backup_cron" default:"0 0 4 * * *"`
	} `yaml:"maintenance"`
}

// Load reads and parses a YAML configuration file, filling defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Alignment.Timeframes) == 0 {
		c.Alignment.Timeframes = []string{"5m", "15m", "1h", "4h", "1d"}
	}
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

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Alignment.RequiredSymbols = strings.Split(v, ",")
	}
	if v := os.Getenv("STORAGE_BASE_PATH"); v != "" {
		c.Storage.BasePath = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("storage.base_path is required")
	}
	if c.Storage.HotDataDays <= 0 {
		return fmt.Errorf("storage.hot_data_days must be positive")
	}
	if len(c.Alignment.RequiredSymbols) == 0 {
		return fmt.Errorf("alignment.required_symbols cannot be empty")
	}
	if w := c.Coordinator.SpanCoverageWeight + c.Coordinator.PriceConsistencyWeight; w <= 0 || w > 1.0001 {
		return fmt.Errorf("coordinator quality weights must sum to at most 1, got %v", w)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}
