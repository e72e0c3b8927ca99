package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/fieldquest/internal/config"
	"github.com/playperu/fieldquest/internal/database"
	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/handler/health"
	"github.com/playperu/fieldquest/internal/migrations"
	"github.com/playperu/fieldquest/internal/savecodec"
	"github.com/playperu/fieldquest/internal/server"
	"github.com/playperu/fieldquest/internal/session"
	"github.com/playperu/fieldquest/internal/slot"
	"github.com/playperu/fieldquest/internal/vision"
	"github.com/playperu/fieldquest/internal/weather"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	catalog, err := fieldquest.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	logger.Info("catalog loaded",
		"mission", catalog.ID,
		"main", len(catalog.Main),
		"side", len(catalog.Side),
		"fragments", catalog.FragmentTotal(),
	)

	// --- Save slots ---
	required := map[string]health.Checker{}
	var store slot.Store
	switch cfg.SlotBackend {
	case config.BackendSQLite:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		defer db.Close()

		if err := migrations.Run(db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath)
		store = slot.NewSQLiteStore(db, cfg.SlotMaxBytes)
		required["sqlite"] = health.CheckFunc(db.PingContext)

	case config.BackendRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")
		store = slot.NewRedisStore(rdb, cfg.RedisPrefix, cfg.SlotMaxBytes)
		required["redis"] = health.CheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})

	default:
		logger.Warn("save slots are kept in memory and lost on restart")
		store = slot.NewMemoryStore(cfg.SlotMaxBytes)
	}

	// --- Collaborators ---
	photos := vision.New(vision.Config{
		BaseURL:    cfg.VisionURL,
		HTTPClient: &http.Client{Timeout: cfg.VisionTimeout},
	})
	if !photos.Configured() {
		logger.Warn("VISION_URL not set, photo checks are unavailable")
	}

	forecast := weather.NewPoller(weather.Config{
		URL:      cfg.WeatherURL,
		Lat:      cfg.WeatherLat,
		Lng:      cfg.WeatherLng,
		Interval: cfg.WeatherInterval,
	}, logger)

	broker := server.NewBroker()
	registry := server.NewRegistry(func(ctx context.Context, device string) *session.Controller {
		return session.New(ctx, session.Options{
			Device:      device,
			Catalog:     catalog,
			Codec:       savecodec.New(store, device, catalog, logger),
			Validator:   photos,
			Transformer: photos,
			Capture:     photos,
			Notifier:    broker,
			Logger:      logger,
		})
	})

	optional := map[string]health.Checker{
		"weather": health.CheckFunc(forecast.Check),
	}
	if photos.Configured() {
		optional["vision"] = health.CheckFunc(photos.Ping)
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Registry:      registry,
		Broker:        broker,
		Catalog:       catalog,
		Weather:       forecast,
		Health:        health.NewHandler(logger, required, optional).Routes(),
		SPADir:        cfg.SPADir,
		ClockInterval: cfg.ClockInterval,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return forecast.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
