package config

import (
	"fmt"
	"time"

	"github.com/AaryaPoriya/QuantumCoders/pkg/config"
	"github.com/AaryaPoriya/QuantumCoders/pkg/database"
)

// Config holds all runtime configuration for the smartcart service,
// populated from environment variables.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"smartcart"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Cart     CartConfig
	SMS      SMSConfig
}

// PostgresConfig holds the PostgreSQL environment mappings.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"smartcart"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"smartcart_secret"`
	DBName   string `env:"POSTGRES_DB" envDefault:"smartcart"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	MinConns int32  `env:"POSTGRES_MIN_CONNS" envDefault:"5"`
}

// RedisConfig holds the Redis environment mappings.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// KafkaConfig holds the Kafka environment mappings.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"smartcart"`
	ScanTopic     string   `env:"KAFKA_SCAN_TOPIC" envDefault:"smartcart.device.scans"`
	Enabled       bool     `env:"KAFKA_ENABLED" envDefault:"true"`
}

// AuthConfig holds session and OTP settings.
type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	OTPTTL          time.Duration `env:"OTP_TTL" envDefault:"5m"`
	ProfileWindow   time.Duration `env:"PROFILE_WINDOW" envDefault:"10m"`
	OTPRequestEvery time.Duration `env:"OTP_REQUEST_EVERY" envDefault:"30s"`
	OTPRequestBurst int           `env:"OTP_REQUEST_BURST" envDefault:"3"`
}

// CartConfig holds cart engine settings.
type CartConfig struct {
	TTL          time.Duration `env:"CART_TTL" envDefault:"24h"`
	ApplyTimeout time.Duration `env:"CART_APPLY_TIMEOUT" envDefault:"2s"`
}

// SMSConfig holds SMS gateway settings. With no URL configured the service
// logs passcodes instead of sending them, which is what development wants.
type SMSConfig struct {
	GatewayURL string `env:"SMS_GATEWAY_URL" envDefault:""`
	Sender     string `env:"SMS_SENDER" envDefault:"SMRTCT"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must not be empty")
	}
	return cfg, nil
}

// PoolConfig translates the environment mappings into the database package's
// pool configuration.
func (c PostgresConfig) PoolConfig() database.PostgresConfig {
	pc := database.DefaultPostgresConfig()
	pc.Host = c.Host
	pc.Port = c.Port
	pc.User = c.User
	pc.Password = c.Password
	pc.DBName = c.DBName
	pc.SSLMode = c.SSLMode
	pc.MaxConns = c.MaxConns
	pc.MinConns = c.MinConns
	return pc
}

// ClientConfig translates the environment mappings into the database
// package's Redis configuration.
func (c RedisConfig) ClientConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		DB:       c.DB,
	}
}
