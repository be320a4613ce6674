package config

import (
	"strings"
	"testing"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "local", Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Store.Driver != StoreMemory {
		t.Fatalf("expected memory store default, got %q", c.Store.Driver)
	}
	if c.Aggregator.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", c.Aggregator.MaxAttempts)
	}
	if got := c.Rates().Compute(0, 45_000); got.Cost.String() != "0.675" || got.Margin.String() != "0.27" {
		t.Fatalf("unexpected default rates: %+v", got)
	}
}

func TestValidate_PostgresDefaultsSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		Store: StoreConfig{Driver: StorePostgres},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voice"},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}

	c.DB.MaxConns = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative DB_MAX_CONNS")
	}
}

func TestValidate_ProductionRules(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080, SeedDemoData: true},
		Store: StoreConfig{Driver: StorePostgres},
		DB:    DBConfig{Host: "db", Port: 5432, User: "postgres", Password: "x", Name: "voice"},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected production errors")
	}
	for _, want := range []string{"DB_SSLMODE", "SEED_DEMO_DATA", "JWT_ISSUER", "JWT_AUDIENCE", "VOICE_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}

	c = Config{
		App:  AppConfig{Env: "production", Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret", JWTIssuer: "i", JWTAudience: "a"},
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Fatalf("expected STORE_DRIVER error, got %v", err)
	}
}

func TestValidate_RedisNeedsHost(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "dev", Port: 8080},
		Store: StoreConfig{Driver: StoreRedis},
		Redis: RedisConfig{Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected REDIS_HOST error, got %v", err)
	}
}

func TestValidate_RejectsBadBilling(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "dev", Port: 8080},
		Auth:    AuthConfig{JWTSecret: "secret"},
		Billing: BillingConfig{RatePerSecond: "cheap"},
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "BILLING_RATE_PER_SECOND") {
		t.Fatalf("expected billing error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("AGGREGATOR_MAX_ATTEMPTS", "7")
	t.Setenv("SEED_DEMO_DATA", "true")
	t.Setenv("VOICE_WEBHOOK_SECRET", "hook")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Store.Driver != StoreRedis || c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected redis config: %+v", c.Redis)
	}
	if c.Aggregator.MaxAttempts != 7 || !c.App.SeedDemoData || c.Webhook.Secret != "hook" {
		t.Fatalf("unexpected config: %+v", c)
	}

	t.Setenv("APP_PORT", "nope")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
