package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/fieldquest/internal/session"
)

type ctxKey int

const (
	ctxKeyController ctxKey = iota
	ctxKeyDevice
)

func deviceMiddleware(devices *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			device := chi.URLParam(r, "device")
			c, err := devices.Get(r.Context(), device)
			if err != nil {
				writeError(w, http.StatusNotFound, "device not found")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyController, c)
			ctx = context.WithValue(ctx, ctxKeyDevice, device)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func controller(r *http.Request) *session.Controller {
	return r.Context().Value(ctxKeyController).(*session.Controller)
}

func deviceID(r *http.Request) string {
	return r.Context().Value(ctxKeyDevice).(string)
}
