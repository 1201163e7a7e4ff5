// Package config loads Detecta configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

// Load builds the runtime configuration. It starts from the tier defaults
// and applies DETECTA_* environment overrides. A .env file in the working
// directory is read first when present.
func Load() *domain.Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := domain.DefaultConfig()
	if strings.EqualFold(getEnv("DETECTA_TIER", ""), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	// Server
	cfg.Server.Host = getEnv("DETECTA_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("DETECTA_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvInt("DETECTA_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvInt("DETECTA_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	// Repository
	cfg.Repository.Driver = getEnv("DETECTA_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("DETECTA_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("DETECTA_PG_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("DETECTA_PG_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresDB = getEnv("DETECTA_PG_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresUser = getEnv("DETECTA_PG_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("DETECTA_PG_PASSWORD", cfg.Repository.PostgresPassword)

	// Cache
	cfg.Cache.Type = getEnv("DETECTA_CACHE_TYPE", cfg.Cache.Type)
	cfg.Cache.LocalMaxSize = getEnvInt("DETECTA_CACHE_MAX_SIZE", cfg.Cache.LocalMaxSize)
	cfg.Cache.LocalTTL = getEnvDuration("DETECTA_CACHE_TTL", cfg.Cache.LocalTTL)
	cfg.Cache.RedisAddr = getEnv("DETECTA_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("DETECTA_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("DETECTA_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.EnableTwoPhase = getEnvBool("DETECTA_CACHE_TWO_PHASE", cfg.Cache.EnableTwoPhase)

	// Event bus
	cfg.EventBus.Type = getEnv("DETECTA_BUS_TYPE", cfg.EventBus.Type)
	cfg.EventBus.ChannelBufferSize = getEnvInt("DETECTA_BUS_BUFFER", cfg.EventBus.ChannelBufferSize)
	cfg.EventBus.NATSUrl = getEnv("DETECTA_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("DETECTA_NATS_TOKEN", cfg.EventBus.NATSToken)

	// Models
	cfg.Models.BasePath = getEnv("DETECTA_MODEL_PATH", cfg.Models.BasePath)
	cfg.Models.TrainTimeout = getEnvInt("DETECTA_TRAIN_TIMEOUT", cfg.Models.TrainTimeout)

	// Rate limiting
	cfg.RateLimitPerMinute = int64(getEnvInt("DETECTA_RATE_LIMIT", int(cfg.RateLimitPerMinute)))

	// Observability
	cfg.Logging.Level = getEnv("DETECTA_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("DETECTA_LOG_FORMAT", cfg.Logging.Format)
	cfg.Tracing.Enabled = getEnvBool("DETECTA_TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = getEnv("DETECTA_TRACING_SERVICE", cfg.Tracing.ServiceName)
	cfg.Tracing.Endpoint = getEnv("DETECTA_TRACING_ENDPOINT", cfg.Tracing.Endpoint)

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", value)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
	}
	return fallback
}
