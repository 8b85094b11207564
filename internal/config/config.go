package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Logger LoggerConfig

	RateLimit RateLimitConfig

	Security SecurityConfig
}

type LoggerConfig struct {
	Level string
}

// RateLimitConfig configures the redis-backed ingest limiter.
// Disabled unless a redis address is provided.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	IngestRate    float64
	IngestBurst   int
}

// SecurityConfig carries the tunables of the risk rule engine.
type SecurityConfig struct {
	// FailedLoginThreshold is the number of prior failures inside
	// FailedLoginWindowMinutes that triggers a burst alert.
	FailedLoginThreshold     int
	FailedLoginWindowMinutes int

	// NoveltyWindowSize is how many recent successful logins the new-IP and
	// new-device rules compare against. NoveltyWindowDays additionally bounds
	// that window in time when > 0.
	NoveltyWindowSize int
	NoveltyWindowDays int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	redisAddr := strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", ""))

	return Config{
		AppName:     getenv("APP_SERVICE", "sentinel"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sentinel"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},

		RateLimit: RateLimitConfig{
			Enabled:       redisAddr != "",
			RedisAddr:     redisAddr,
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			IngestRate:    getenvFloat("RATE_LIMIT_INGEST_RATE", 50),
			IngestBurst:   getenvInt("RATE_LIMIT_INGEST_BURST", 100),
		},

		Security: SecurityConfig{
			FailedLoginThreshold:     getenvInt("SECURITY_FAILED_LOGIN_THRESHOLD", 5),
			FailedLoginWindowMinutes: getenvInt("SECURITY_FAILED_LOGIN_WINDOW_MINUTES", 60),
			NoveltyWindowSize:        getenvInt("SECURITY_NOVELTY_WINDOW_SIZE", 10),
			NoveltyWindowDays:        getenvInt("SECURITY_NOVELTY_WINDOW_DAYS", 0),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// Module wires application and quota configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewQuotaConfigHolder,
	),
)
