package server

import (
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Field Mission API", "/openapi.json", "/docs"))
	if d.Health != nil {
		r.Mount("/healthz", d.Health)
	}

	r.Get("/api/puzzles", handlePuzzles(d.Catalog))
	r.Get("/api/weather", handleWeather(d.Weather))
	r.Post("/api/devices", handleNewDevice())

	// Device routes. {device} is resolved by deviceMiddleware.
	r.Route("/api/{device}", func(r chi.Router) {
		r.Use(deviceMiddleware(d.Registry))

		r.Get("/state", handleState())
		r.Post("/game/start", handleStartGame())
		r.Post("/game/resume", handleResumeGame())
		r.Post("/game/reset", handleResetGame())

		r.Post("/puzzles/{id}/select", handleSelectPuzzle())
		r.Post("/puzzle/exit", handleExitPuzzle())
		r.Put("/puzzle/draft", handleUpdateDraft())
		r.Post("/puzzle/answer", handleAnswer())
		r.Post("/puzzle/parts/{part}", handleSubmitPart())
		r.Post("/puzzle/photo", handleCapturePhoto())
		r.Post("/puzzle/validate", handleValidatePhoto())
		r.Post("/puzzle/transform", handleTransformPhoto())
		r.Post("/puzzle/complete", handleCompletePuzzle())

		r.Put("/settings", handleSettings())
		r.Post("/tutorial/seen", handleTutorialSeen())
		r.Get("/report", handleReport())
		r.Get("/events", handleEvents(d.Broker))
		r.Get("/clock", handleClock(logger, clockInterval(d.ClockInterval)))
	})

	if d.SPADir != "" {
		if info, err := os.Stat(d.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", d.SPADir)
			r.NotFound(handleSPA(os.DirFS(d.SPADir)))
		}
	}
}

func clockInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}
