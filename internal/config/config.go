// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreTypePostgres = "postgres"
	StoreTypeMongo    = "mongo"
	StoreTypeMemory   = "memory"

	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type          string `env:"DB_TYPE" envDefault:"postgres"`
	URI           string `env:"DATABASE_URL"`
	Host          string `env:"DB_HOST" envDefault:"localhost"`
	Port          int    `env:"DB_PORT" envDefault:"5432"`
	User          string `env:"DB_USER"`
	Password      string `env:"DB_PASSWORD"`
	Name          string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode       string `env:"DB_SSL_MODE" envDefault:"require"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"investafrik"`
}

// RegistryConfig selects the connection registry backend.
type RegistryConfig struct {
	Backend  string `env:"REGISTRY_BACKEND" envDefault:"memory"`
	RedisURL string `env:"REDIS_URL"`
}

type AuthConfig struct {
	JWTSecret      string `env:"JWT_SECRET"`
	JWTIssuer      string `env:"JWT_ISSUER" envDefault:"investafrik"`
	InternalAPIKey string `env:"INTERNAL_API_KEY"`
}

// RealtimeConfig bounds per-connection resources and store offloading.
type RealtimeConfig struct {
	SendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"256"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"8192"`
	PongWait       time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WriteWait      time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	TypingInterval time.Duration `env:"TYPING_INTERVAL" envDefault:"1s"`
	StoreWorkers   int           `env:"STORE_WORKERS" envDefault:"8"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

// Config holds the complete application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Registry       RegistryConfig
	Auth           AuthConfig
	Realtime       RealtimeConfig
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Debug          bool     `env:"DEBUG"`
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/engine
		filepath.Join(os.Getenv("GOPATH"), "src/investafrik-messaging/.env"),
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	if c.Debug {
		c.LogLevel = "debug"
	}

	switch c.Database.Type {
	case StoreTypePostgres:
		if c.Database.URI != "" {
			c.Database.SSLMode = sslModeFromURI(c.Database.URI)
			break
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		c.Database.URI = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(c.Database.User),
			url.QueryEscape(c.Database.Password),
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
			c.Database.SSLMode,
		)
	case StoreTypeMongo, StoreTypeMemory:
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}

	switch c.Registry.Backend {
	case RegistryMemory:
	case RegistryRedis:
		if c.Registry.RedisURL == "" {
			return fmt.Errorf("REDIS_URL environment variable is required when REGISTRY_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unsupported REGISTRY_BACKEND %q", c.Registry.Backend)
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.Realtime.StoreWorkers <= 0 {
		return fmt.Errorf("STORE_WORKERS must be positive")
	}
	return nil
}

// sslModeFromURI extracts sslmode from a DSN, defaulting to "require".
func sslModeFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "require"
	}
	if mode := parsed.Query().Get("sslmode"); mode != "" {
		return mode
	}
	return "require"
}
