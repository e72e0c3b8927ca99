package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.SlotBackend != BackendSQLite {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
	if cfg.ClockInterval != time.Second || cfg.WeatherInterval != 15*time.Minute {
		t.Errorf("intervals = %v, %v", cfg.ClockInterval, cfg.WeatherInterval)
	}
	if cfg.VisionURL != "" {
		t.Errorf("vision url = %q, want empty", cfg.VisionURL)
	}
	if cfg.VisionTimeout != time.Minute {
		t.Errorf("vision timeout = %v, want 1m", cfg.VisionTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLOT_BACKEND", "redis")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SLOT_MAX_BYTES", "1024")
	t.Setenv("VISION_URL", "http://vision:9000")
	t.Setenv("VISION_TIMEOUT", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SlotBackend != BackendRedis || cfg.SlotMaxBytes != 1024 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
	if cfg.VisionURL != "http://vision:9000" || cfg.VisionTimeout != 5*time.Minute {
		t.Errorf("vision = %q, %v", cfg.VisionURL, cfg.VisionTimeout)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SLOT_BACKEND", "floppy")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}
