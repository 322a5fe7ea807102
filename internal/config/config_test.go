package config

import (
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"https://a.example", []string{"https://a.example"}},
		{"https://a.example, https://b.example", []string{"https://a.example", "https://b.example"}},
		{" , ,", nil},
	}
	for _, tc := range cases {
		got := splitList(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("splitList(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "value")
	t.Setenv("X_BOOL", "off")
	t.Setenv("X_INT", "42")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_BAD_INT", "abc")

	if got := envStr("X_STR", "d"); got != "value" {
		t.Errorf("envStr = %q", got)
	}
	if got := envStr("X_MISSING", "d"); got != "d" {
		t.Errorf("envStr default = %q", got)
	}
	if envBool("X_BOOL", true) {
		t.Error("envBool should honor off")
	}
	if got := envInt("X_INT", 0); got != 42 {
		t.Errorf("envInt = %d", got)
	}
	if got := envInt("X_BAD_INT", 7); got != 7 {
		t.Errorf("envInt should fall back on parse failure, got %d", got)
	}
	if got := envDur("X_DUR", time.Second); got != 90*time.Second {
		t.Errorf("envDur = %s", got)
	}
}

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	cfg := LoadRateLimitConfig()
	if !cfg.Enabled {
		t.Error("rate limit should default to enabled")
	}
	if cfg.Capacity != 20 {
		t.Errorf("capacity = %d, want 20", cfg.Capacity)
	}
	// One token every six seconds is ten per minute.
	if cfg.RefillTokens != 1 || cfg.RefillInterval != 6*time.Second {
		t.Errorf("refill = %d/%s, want 1/6s", cfg.RefillTokens, cfg.RefillInterval)
	}
}

func TestLoadRateLimitConfigRPSOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "5")
	cfg := LoadRateLimitConfig()
	if cfg.RefillTokens != 5 || cfg.RefillInterval != time.Second {
		t.Errorf("refill = %d/%s, want 5/1s", cfg.RefillTokens, cfg.RefillInterval)
	}
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	if !cfg.Methods["GET"] || !cfg.Methods["HEAD"] {
		t.Errorf("methods = %v, want GET and HEAD", cfg.Methods)
	}
	if cfg.Methods["POST"] {
		t.Error("POST must not be cacheable")
	}
}
