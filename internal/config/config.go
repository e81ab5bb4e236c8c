package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Reconciler ReconcilerConfig
	Broker     BrokerConfig
	Risk       RiskConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	TradeTopic string
	FillTopic  string
	GroupID    string
}

// RedisConfig holds Redis configuration for the reconciliation lock
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ReconcilerConfig controls the polling schedule
type ReconcilerConfig struct {
	Interval     time.Duration
	OrderLimit   int
	FetchTimeout time.Duration
	Workers      int
	LockTTL      time.Duration
}

// BrokerConfig holds brokerage API defaults
type BrokerConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

// RiskConfig holds portfolio risk ceilings
type RiskConfig struct {
	MaxPositionSizePercent float64
	MaxPortfolioHeat       float64
	RiskFreeRate           float64
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, after loading a .env
// file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "tradeledger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Enabled:    boolFromEnv("KAFKA_ENABLED", true),
			Brokers:    listFromEnv("KAFKA_BROKERS", "localhost:9092"),
			TradeTopic: getEnv("KAFKA_TRADE_TOPIC", "trade-events"),
			FillTopic:  getEnv("KAFKA_FILL_TOPIC", "order-fills"),
			GroupID:    getEnv("KAFKA_GROUP_ID", "trade-ledger"),
		},
		Redis: RedisConfig{
			Enabled:  boolFromEnv("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intFromEnv("REDIS_DB", 0),
		},
		Reconciler: ReconcilerConfig{
			Interval:     durationFromEnv("RECONCILE_INTERVAL", "10s"),
			OrderLimit:   intFromEnv("RECONCILE_ORDER_LIMIT", 10),
			FetchTimeout: durationFromEnv("RECONCILE_FETCH_TIMEOUT", "15s"),
			Workers:      intFromEnv("RECONCILE_WORKERS", 4),
			LockTTL:      durationFromEnv("RECONCILE_LOCK_TTL", "60s"),
		},
		Broker: BrokerConfig{
			BaseURL:     getEnv("BROKER_BASE_URL", "https://paper-api.alpaca.markets"),
			HTTPTimeout: durationFromEnv("BROKER_HTTP_TIMEOUT", "10s"),
		},
		Risk: RiskConfig{
			MaxPositionSizePercent: floatFromEnv("RISK_MAX_POSITION_SIZE_PCT", 10),
			MaxPortfolioHeat:       floatFromEnv("RISK_MAX_PORTFOLIO_HEAT", 20),
			RiskFreeRate:           floatFromEnv("RISK_FREE_RATE", 0.02),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	r := c.Reconciler
	if r.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", r.Interval)
	}
	if r.OrderLimit <= 0 {
		return fmt.Errorf("RECONCILE_ORDER_LIMIT must be positive, got %d", r.OrderLimit)
	}
	if r.FetchTimeout <= 0 {
		return fmt.Errorf("RECONCILE_FETCH_TIMEOUT must be positive, got %s", r.FetchTimeout)
	}
	if r.Workers <= 0 {
		return fmt.Errorf("RECONCILE_WORKERS must be positive, got %d", r.Workers)
	}
	if c.Redis.Enabled && r.LockTTL <= 0 {
		return fmt.Errorf("RECONCILE_LOCK_TTL must be positive when Redis is enabled, got %s", r.LockTTL)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func listFromEnv(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
