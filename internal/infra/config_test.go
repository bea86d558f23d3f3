package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MAX_ATTEMPTS", "")
	t.Setenv("QUALITY_THRESHOLD", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.QualityThreshold != 70 {
		t.Fatalf("QualityThreshold = %v, want 70", cfg.QualityThreshold)
	}
	if cfg.AttemptTimeout != 60*time.Second {
		t.Fatalf("AttemptTimeout = %v, want 60s", cfg.AttemptTimeout)
	}
	if cfg.JobTimeout != 120*time.Second {
		t.Fatalf("JobTimeout = %v, want 120s", cfg.JobTimeout)
	}
	if cfg.GuestDailyLimit != 5 || cfg.UserDailyLimit != 20 {
		t.Fatalf("daily limits = %d/%d, want 5/20", cfg.GuestDailyLimit, cfg.UserDailyLimit)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted empty DATABASE_URL")
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted empty JWT_SECRET")
	}
}

func TestLoadConfigRejectsZeroAttempts(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MAX_ATTEMPTS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted MAX_ATTEMPTS=0")
	}
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("QUALITY_THRESHOLD", "82.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.QualityThreshold != 82.5 {
		t.Fatalf("QualityThreshold = %v, want 82.5", cfg.QualityThreshold)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %#v, want %#v", cfg.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.AllowedOrigins[i] != want[i] {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], want[i])
		}
	}
}
