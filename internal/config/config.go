package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_PORT"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	HttpServer  ServerConfig
	GrpcServer  GrpcServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Session     SessionConfig
	Catalog     CatalogConfig
	Telemetry   TelemetryConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host         string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port         string `envconfig:"POSTGRES_PORT" default:"5432"`
	User         string `envconfig:"POSTGRES_USER" default:"storefront"`
	Password     string `envconfig:"POSTGRES_PASSWORD"`
	DBName       string `envconfig:"POSTGRES_DBNAME" default:"storefront"`
	SSLMode      string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"10" validate:"gte=1"`
	MaxIdleConns int    `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5" validate:"gte=0"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// RedisConfig points at the session and flash message store.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
}

type SessionConfig struct {
	CookieName string        `envconfig:"SESSION_COOKIE_NAME" default:"sessionid" validate:"required"`
	TTL        time.Duration `envconfig:"SESSION_TTL" default:"336h" validate:"gt=0"`
	KeyPrefix  string        `envconfig:"SESSION_KEY_PREFIX" default:"storefront:"`
	JWTSecret  string        `envconfig:"JWT_SECRET"`
}

type CatalogConfig struct {
	LatestPerFamily int    `envconfig:"CATALOG_LATEST_PER_FAMILY" default:"5" validate:"gte=0"`
	SeedFile        string `envconfig:"CATALOG_SEED_FILE" default:"configs/catalog.yaml"`
}

type TelemetryConfig struct {
	Enabled     bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`
	ServiceName string `envconfig:"TELEMETRY_SERVICE_NAME" default:"storefront-service"`
}

var validate = validator.New()

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.AppEnv == "production" && cfg.Session.JWTSecret == "" {
		return nil, fmt.Errorf("invalid configuration: JWT_SECRET is required in production")
	}
	return &cfg, nil
}
