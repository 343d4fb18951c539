package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("OUTBOX_POLL_INTERVAL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("expected text logs in development, got %s", cfg.LogFormat)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if cfg.OutboxPollInterval != 5*time.Second {
		t.Fatalf("expected default outbox interval, got %s", cfg.OutboxPollInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:4200" {
		t.Fatalf("unexpected default origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("OUTBOX_POLL_INTERVAL", "750ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "10")
	t.Setenv("PROPOSAL_RATE_LIMIT_RPS", "1.5")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json logs outside development, got %s", cfg.LogFormat)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
	if cfg.OutboxPollInterval != 750*time.Millisecond || cfg.OutboxBatchSize != 10 {
		t.Fatalf("unexpected outbox settings: %s %d", cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	}
	if cfg.ProposalRateLimitRPS != 1.5 {
		t.Fatalf("expected rps override, got %v", cfg.ProposalRateLimitRPS)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("expected default batch size, got %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxPollInterval != 5*time.Second {
		t.Fatalf("expected default interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls default false")
	}
}
