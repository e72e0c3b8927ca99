// Package weather polls Open-Meteo for the conditions shown on the mission
// home screen. Readings are presentation only.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const DefaultURL = "https://api.open-meteo.com/v1/forecast"

var errNoReading = errors.New("no weather reading yet")

// Report is one reading.
type Report struct {
	TemperatureC float64   `json:"temperatureC"`
	Code         int       `json:"code"`
	Summary      string    `json:"summary"`
	ObservedAt   time.Time `json:"observedAt"`
}

type Config struct {
	URL        string
	Lat, Lng   float64
	Interval   time.Duration
	HTTPClient *http.Client
}

// Poller keeps the latest reading. A failed refresh keeps the previous
// one.
type Poller struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	last *Report
}

func NewPoller(cfg Config, logger *slog.Logger) *Poller {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Poller{cfg: cfg, logger: logger}
}

// Run refreshes immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()

	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("weather refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Current returns the latest reading, if any.
func (p *Poller) Current() (Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// Check reports whether a reading has been taken.
func (p *Poller) Check(context.Context) error {
	if _, ok := p.Current(); !ok {
		return errNoReading
	}
	return nil
}

type forecast struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// Refresh fetches one reading.
func (p *Poller) Refresh(ctx context.Context) error {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("parsing weather url: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(p.cfg.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(p.cfg.Lng, 'f', 4, 64))
	q.Set("current", "temperature_2m,weather_code")
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching weather: status %d", resp.StatusCode)
	}

	var f forecast
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return fmt.Errorf("decoding weather: %w", err)
	}
	observed, err := time.Parse("2006-01-02T15:04", f.Current.Time)
	if err != nil {
		observed = time.Now().UTC()
	}

	r := Report{
		TemperatureC: f.Current.Temperature,
		Code:         f.Current.WeatherCode,
		Summary:      Summary(f.Current.WeatherCode),
		ObservedAt:   observed,
	}
	p.mu.Lock()
	p.last = &r
	p.mu.Unlock()
	return nil
}

// Summary maps a WMO weather code to a short label.
func Summary(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}
