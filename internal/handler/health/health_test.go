package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playperu/fieldquest/internal/handler/health"
)

func ok(context.Context) error { return nil }

func failing(msg string) health.CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		required   map[string]health.Checker
		optional   map[string]health.Checker
		wantStatus int
		wantBody   map[string]string
	}{
		{
			name:       "all healthy",
			required:   map[string]health.Checker{"sqlite": health.CheckFunc(ok)},
			optional:   map[string]health.Checker{"vision": health.CheckFunc(ok)},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"sqlite": "ok", "vision": "ok"},
		},
		{
			name:       "slot store down",
			required:   map[string]health.Checker{"redis": failing("refused")},
			optional:   map[string]health.Checker{"vision": health.CheckFunc(ok)},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]string{"redis": "error", "vision": "ok"},
		},
		{
			name:       "vision unconfigured",
			required:   map[string]health.Checker{"sqlite": health.CheckFunc(ok)},
			optional:   map[string]health.Checker{"vision": failing("not configured"), "weather": failing("timeout")},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"sqlite": "ok", "vision": "unavailable", "weather": "unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(slog.Default(), tt.required, tt.optional)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]struct{ Status string }
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}

			for name, want := range tt.wantBody {
				if got := body[name].Status; got != want {
					t.Errorf("%s status = %q, want %q", name, got, want)
				}
			}
		})
	}
}
