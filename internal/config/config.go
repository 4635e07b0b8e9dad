package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Graph     GraphConfig
	Auth      AuthConfig
	Generator GeneratorConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOriginsCSV string
}

// DatabaseConfig describes the relational store and its connection pool.
type DatabaseConfig struct {
	Driver         string // postgres|mysql|sqlite
	URL            string
	MaxConnections int
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
}

// GraphConfig describes the optional Neo4j projection target.
type GraphConfig struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
	WriteTimeout   time.Duration
}

// AuthConfig controls API key verification.
type AuthConfig struct {
	HeaderName string
	CacheTTL   time.Duration
}

// GeneratorConfig controls the background transaction generator.
type GeneratorConfig struct {
	Interval  time.Duration
	AutoStart bool
}

// RateLimitConfig bounds the request rate accepted by the API. Zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8000
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
	defaultDBDriver        = "postgres"
	defaultDBMaxConns      = 20
	defaultAcquireTimeout  = 5 * time.Second
	defaultQueryTimeout    = 10 * time.Second
	defaultGraphMaxConns   = 10
	defaultGraphTxTimeout  = 5 * time.Second
	defaultAuthHeader      = "access_token"
	defaultAuthCacheTTL    = 30 * time.Second
	defaultGenInterval     = time.Second
	defaultRateLimitRPS    = 10
	defaultRateLimitBurst  = 30
)

// ErrMissingDatabaseURL indicates DATABASE_URL is not provided.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Load reads configuration from an optional .env file and environment
// variables, applying defaults. Variables already set in the environment win
// over the .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:              valueOrDefault("SERVER_HOST", defaultHost),
			AllowedOriginsCSV: os.Getenv("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(valueOrDefault("DATABASE_DRIVER", defaultDBDriver)),
			URL:            os.Getenv("DATABASE_URL"),
			MaxConnections: parseIntWithDefault("DATABASE_MAX_CONNECTIONS", defaultDBMaxConns),
		},
		Graph: GraphConfig{
			URI:            os.Getenv("GRAPH_URI"),
			Database:       valueOrDefault("GRAPH_DATABASE", ""),
			Username:       os.Getenv("GRAPH_USERNAME"),
			Password:       os.Getenv("GRAPH_PASSWORD"),
			MaxConnections: parseIntWithDefault("GRAPH_MAX_CONNECTIONS", defaultGraphMaxConns),
		},
		Auth: AuthConfig{
			HeaderName: valueOrDefault("AUTH_HEADER", defaultAuthHeader),
		},
		Generator: GeneratorConfig{
			AutoStart: parseBoolWithDefault("GENERATOR_AUTOSTART", false),
		},
		RateLimit: RateLimitConfig{
			RPS:   parseFloatWithDefault("RATE_LIMIT_RPS", defaultRateLimitRPS),
			Burst: parseIntWithDefault("RATE_LIMIT_BURST", defaultRateLimitBurst),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", defaultReadTimeout, &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", defaultWriteTimeout, &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", defaultIdleTimeout, &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout},
		{"DATABASE_ACQUIRE_TIMEOUT", defaultAcquireTimeout, &cfg.Database.AcquireTimeout},
		{"DATABASE_QUERY_TIMEOUT", defaultQueryTimeout, &cfg.Database.QueryTimeout},
		{"GRAPH_WRITE_TIMEOUT", defaultGraphTxTimeout, &cfg.Graph.WriteTimeout},
		{"AUTH_CACHE_TTL", defaultAuthCacheTTL, &cfg.Auth.CacheTTL},
		{"GENERATOR_INTERVAL", defaultGenInterval, &cfg.Generator.Interval},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if cfg.Generator.Interval <= 0 {
		return Config{}, fmt.Errorf("GENERATOR_INTERVAL must be positive, got %s", cfg.Generator.Interval)
	}

	switch cfg.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseFloatWithDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			return val
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
