package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Slot backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	HTTPAddr    string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir      string     `env:"SPA_DIR" envDefault:"../web/dist"`
	CatalogPath string     `env:"CATALOG_PATH"`

	SlotBackend  string `env:"SLOT_BACKEND" envDefault:"sqlite"`
	SlotMaxBytes int    `env:"SLOT_MAX_BYTES" envDefault:"5242880"`
	DBPath       string `env:"DB_PATH" envDefault:"data/fieldquest.db"`
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"fieldquest:"`

	// An empty VisionURL leaves photo checks unavailable.
	VisionURL     string        `env:"VISION_URL"`
	VisionTimeout time.Duration `env:"VISION_TIMEOUT" envDefault:"60s"`

	WeatherURL      string        `env:"WEATHER_URL"`
	WeatherLat      float64       `env:"WEATHER_LAT" envDefault:"25.0312"`
	WeatherLng      float64       `env:"WEATHER_LNG" envDefault:"121.5806"`
	WeatherInterval time.Duration `env:"WEATHER_INTERVAL" envDefault:"15m"`

	ClockInterval time.Duration `env:"CLOCK_INTERVAL" envDefault:"1s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.SlotBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown SLOT_BACKEND %q", cfg.SlotBackend)
	}
	return &cfg, nil
}
