package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/weather"
)

// WeatherSource supplies the latest weather reading.
type WeatherSource interface {
	Current() (weather.Report, bool)
}

type DeviceResponse struct {
	DeviceID string `json:"deviceId"`
}

func handlePuzzles(cat *fieldquest.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cat)
	}
}

func handleWeather(src WeatherSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeError(w, http.StatusServiceUnavailable, "weather not available")
			return
		}
		report, ok := src.Current()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "weather not available")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// handleNewDevice mints an identifier for a device that has none yet.
func handleNewDevice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, DeviceResponse{DeviceID: uuid.NewString()})
	}
}
