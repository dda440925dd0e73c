package main

import "testing"

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Errorf("port %q", cfg.Port)
	}
	if cfg.IndexBackend != "disk" {
		t.Errorf("backend %q", cfg.IndexBackend)
	}
	if cfg.IndexDir != "vector_indexes" || cfg.ImagesDir != "manual_images" {
		t.Errorf("cache dirs %q %q", cfg.IndexDir, cfg.ImagesDir)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("MEDMANUAL_TEST_KEY", "set")
	if got := envOr("MEDMANUAL_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("got %q", got)
	}
	if got := envOr("MEDMANUAL_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestEnvIntAndFloat(t *testing.T) {
	t.Setenv("MEDMANUAL_TEST_INT", "not a number")
	if got := envInt("MEDMANUAL_TEST_INT", 7); got != 7 {
		t.Errorf("bad int should fall back, got %d", got)
	}
	t.Setenv("MEDMANUAL_TEST_RATE", "2.5")
	if got := envFloat("MEDMANUAL_TEST_RATE", 1); got != 2.5 {
		t.Errorf("got %v", got)
	}
}
