package config

import (
	"testing"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Models.BasePath != "./models" {
		t.Errorf("expected model path './models', got %s", cfg.Models.BasePath)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DETECTA_PORT", "9090")
	t.Setenv("DETECTA_MODEL_PATH", "/var/lib/detecta/models")
	t.Setenv("DETECTA_RATE_LIMIT", "250")
	t.Setenv("DETECTA_CACHE_TTL", "90s")
	t.Setenv("DETECTA_LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Models.BasePath != "/var/lib/detecta/models" {
		t.Errorf("expected overridden model path, got %s", cfg.Models.BasePath)
	}
	if cfg.RateLimitPerMinute != 250 {
		t.Errorf("expected rate limit 250, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.Cache.LocalTTL != 90*time.Second {
		t.Errorf("expected cache TTL 90s, got %s", cfg.Cache.LocalTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Logging.Level)
	}
}

func TestLoadProTier(t *testing.T) {
	t.Setenv("DETECTA_TIER", "pro")

	cfg := Load()

	if cfg.Tier != domain.TierPro {
		t.Errorf("expected pro tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.Repository.Driver)
	}
	if cfg.EventBus.Type != "nats" {
		t.Errorf("expected nats bus, got %s", cfg.EventBus.Type)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DETECTA_PORT", "not-a-number")
	t.Setenv("DETECTA_TRACING", "maybe")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port on parse failure, got %d", cfg.Server.Port)
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing disabled on parse failure")
	}
}
