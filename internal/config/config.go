package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Kafka      KafkaConfig      `json:"kafka"`
	Logger     LoggerConfig     `json:"logger"`
	Pricing    PricingConfig    `json:"pricing"`
	Promotions PromotionsConfig `json:"promotions"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig holds broker addresses and topic names.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics lists the Kafka topics the service publishes to.
type Topics struct {
	Orders   string `json:"orders"`
	Loyalty  string `json:"loyalty"`
	Invoices string `json:"invoices"`
}

// LoggerConfig holds logger settings.
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// PricingConfig holds the order pricing constants.
// TaxRate is a fraction (0.13 means 13%). ReconcileEpsilon is the largest
// currency difference tolerated when a reconstructed invoice total is
// compared against the stored one.
type PricingConfig struct {
	DeliveryFee      float64 `json:"delivery_fee"`
	TaxRate          float64 `json:"tax_rate"`
	ReconcileEpsilon float64 `json:"reconcile_epsilon"`
}

// PromotionsConfig holds promotion lookup settings.
type PromotionsConfig struct {
	CacheTTLMinutes int `json:"cache_ttl_minutes"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
}

// Load reads the configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "sunsets_user"),
			Password: getEnv("DB_PASSWORD", "sunsets_pass"),
			DBName:   getEnv("DB_NAME", "sunsets_ordering"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "ordering-service"),
			Topics: Topics{
				Orders:   getEnv("KAFKA_TOPIC_ORDERS", "orders"),
				Loyalty:  getEnv("KAFKA_TOPIC_LOYALTY", "loyalty"),
				Invoices: getEnv("KAFKA_TOPIC_INVOICES", "invoices"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Pricing: PricingConfig{
			DeliveryFee:      getEnvAsFloat("PRICING_DELIVERY_FEE", 1500.0),
			TaxRate:          getEnvAsFloat("PRICING_TAX_RATE", 0.13),
			ReconcileEpsilon: getEnvAsFloat("PRICING_RECONCILE_EPSILON", 1.0),
		},
		Promotions: PromotionsConfig{
			CacheTTLMinutes: getEnvAsInt("PROMOTIONS_CACHE_TTL_MINUTES", 5),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable parsed as int or a default.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat returns the environment variable parsed as float64 or a default.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool returns the environment variable parsed as bool or a default.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
