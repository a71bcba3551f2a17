package config

import (
	"testing"
)

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DB_HOST", "DB_USER", "DB_NAME", "ADMIN_EMAIL_TO", "SMTP_HOST", "SMTP_FROM",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_FailsFastOnMissingRequiredVar(t *testing.T) {
	clearRequiredEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error when required environment variables are unset")
	}
}

func TestLoad_AppliesDefaultsAndClampsMaxActiveJobs(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "dnsguard")
	t.Setenv("DB_NAME", "dnsguard")
	t.Setenv("ADMIN_EMAIL_TO", "admin@example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")
	t.Setenv("DB_POOL_CONNECTION_LIMIT", "5")
	t.Setenv("MAX_ACTIVE_JOBS", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxActiveJobs != 5 {
		t.Errorf("expected MaxActiveJobs clamped to pool limit 5, got %d", cfg.Scheduler.MaxActiveJobs)
	}
}

func TestLoad_RejectsInvalidAdminEmail(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "dnsguard")
	t.Setenv("DB_NAME", "dnsguard")
	t.Setenv("ADMIN_EMAIL_TO", "not-an-email")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for malformed ADMIN_EMAIL_TO")
	}
}
