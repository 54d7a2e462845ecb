package common

import "testing"

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("VIRE_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_EngineDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Engine.StringComparer != "ordinal" {
		t.Errorf("Engine.StringComparer default = %q, want %q", cfg.Engine.StringComparer, "ordinal")
	}
	if cfg.Engine.InboxCapacity != 1024 {
		t.Errorf("Engine.InboxCapacity default = %d, want 1024", cfg.Engine.InboxCapacity)
	}
	if cfg.Engine.MirrorEnabled {
		t.Error("Engine.MirrorEnabled default should be false")
	}
}

func TestConfig_EngineEnvOverrides(t *testing.T) {
	t.Setenv("VIRE_ENGINE_STRING_COMPARER", "ordinal_ignore_case")
	t.Setenv("VIRE_ENGINE_INBOX_CAPACITY", "256")
	t.Setenv("VIRE_ENGINE_MIRROR_ENABLED", "true")
	t.Setenv("VIRE_ENGINE_MAX_STATE_HISTORY_LENGTH", "50")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Engine.StringComparer != "ordinal_ignore_case" {
		t.Errorf("Engine.StringComparer = %q, want %q", cfg.Engine.StringComparer, "ordinal_ignore_case")
	}
	if cfg.Engine.InboxCapacity != 256 {
		t.Errorf("Engine.InboxCapacity = %d, want 256", cfg.Engine.InboxCapacity)
	}
	if !cfg.Engine.MirrorEnabled {
		t.Error("Engine.MirrorEnabled should be true after override")
	}
	if cfg.Engine.MaxStateHistoryLength != 50 {
		t.Errorf("Engine.MaxStateHistoryLength = %d, want 50", cfg.Engine.MaxStateHistoryLength)
	}
}

func TestEngineConfig_GetCommandTimeout_InvalidFallsBack(t *testing.T) {
	cfg := &EngineConfig{CommandTimeout: "not-a-duration"}
	if got := cfg.GetCommandTimeout(); got.String() != "10s" {
		t.Errorf("GetCommandTimeout() = %v, want 10s fallback", got)
	}
}

func TestEngineConfig_GetEvictionInterval_Configured(t *testing.T) {
	cfg := &EngineConfig{EvictionInterval: "1s"}
	if got := cfg.GetEvictionInterval(); got.String() != "1s" {
		t.Errorf("GetEvictionInterval() = %v, want 1s", got)
	}
}

func TestConfig_AuthEnvOverrides(t *testing.T) {
	t.Setenv("VIRE_AUTH_JWT_SECRET", "secret-from-env")
	t.Setenv("VIRE_AUTH_ADMIN_TOKEN", "admin-token-from-env")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Auth.JWTSecret != "secret-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "secret-from-env")
	}
	if cfg.Auth.AdminToken != "admin-token-from-env" {
		t.Errorf("Auth.AdminToken = %q, want %q", cfg.Auth.AdminToken, "admin-token-from-env")
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.IsProduction() {
		t.Error("default config should not report production")
	}
	cfg.Environment = "production"
	if !cfg.IsProduction() {
		t.Error("Environment=production should report production")
	}
}
