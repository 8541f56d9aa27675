package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROVIDER_API_BASE_URL", "https://api.provider.test")
	t.Setenv("PROVIDER_API_KEY", "pk_test")
	t.Setenv("STATE_SIGNING_SECRET", "state-secret")
	t.Setenv("CLAIM_SUCCESS_URL", "https://app.test/claimed")
	t.Setenv("CLAIM_ERROR_URL", "https://app.test/claim-error")
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxTTLMs != 86400000 {
		t.Errorf("MaxTTLMs = %d, want 86400000", cfg.MaxTTLMs)
	}
	if cfg.MinTTLMs != 1800000 {
		t.Errorf("MinTTLMs = %d, want 1800000", cfg.MinTTLMs)
	}
	if cfg.DeletionJobSchedule != "@every 30s" {
		t.Errorf("DeletionJobSchedule = %q", cfg.DeletionJobSchedule)
	}
	if cfg.CreateRateLimit != 30 || cfg.CreateRateWindowSeconds != 60 {
		t.Errorf("unexpected create rate defaults: %d/%ds", cfg.CreateRateLimit, cfg.CreateRateWindowSeconds)
	}
}

func TestLoadConfig_ReadsEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequiredEnv(t)
	t.Setenv("CREATE_RATE_LIMIT", "5")
	t.Setenv("CREATE_RATE_WINDOW_SECONDS", "120")
	t.Setenv("STALE_SWEEP_SCHEDULE", "0 * * * *")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CreateRateLimit != 5 {
		t.Errorf("CreateRateLimit = %d, want 5", cfg.CreateRateLimit)
	}
	if cfg.CreateRateWindowSeconds != 120 {
		t.Errorf("CreateRateWindowSeconds = %d, want 120", cfg.CreateRateWindowSeconds)
	}
	if cfg.StaleSweepSchedule != "0 * * * *" {
		t.Errorf("StaleSweepSchedule = %q", cfg.StaleSweepSchedule)
	}
}

func TestLoadConfig_FailsWhenProviderKeyMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequiredEnv(t)
	t.Setenv("PROVIDER_API_KEY", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected missing provider key error")
	}
	if !strings.Contains(err.Error(), "PROVIDER_API_KEY") {
		t.Fatalf("expected error to mention PROVIDER_API_KEY, got %v", err)
	}
}
