package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MOTOTUMEN_JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected addrs: %s %s", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.GranterAttribution != AttributionPlaceholder || cfg.PlaceholderGranterID != "1" {
		t.Fatalf("unexpected attribution: %s/%s", cfg.GranterAttribution, cfg.PlaceholderGranterID)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("MOTOTUMEN_JWT_SECRET", "")
	os.Unsetenv("MOTOTUMEN_JWT_SECRET")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error when JWT secret is missing")
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	t.Setenv("MOTOTUMEN_JWT_SECRET", "from-env")
	path := filepath.Join(t.TempDir(), ".env")
	content := "MOTOTUMEN_GRANTER_ATTRIBUTION=actor\nMOTOTUMEN_CORS_ORIGINS=https://a.kz,https://b.kz\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("MOTOTUMEN_GRANTER_ATTRIBUTION")
		os.Unsetenv("MOTOTUMEN_CORS_ORIGINS")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GranterAttribution != AttributionActor {
		t.Fatalf("expected actor attribution, got %s", cfg.GranterAttribution)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
	if cfg.JWTSecret != "from-env" {
		t.Fatalf("dotenv must not override the environment, got %s", cfg.JWTSecret)
	}
}

func TestValidateRejectsUnknownAttribution(t *testing.T) {
	cfg := &Config{GranterAttribution: "nobody", RateLimitRPS: 1, RateLimitBurst: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown attribution")
	}
}
