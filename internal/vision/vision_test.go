package vision_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/fieldquest/internal/puzzle"
	"github.com/playperu/fieldquest/internal/vision"
)

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/validate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image           []byte   `json:"image"`
			Title           string   `json:"title"`
			Instruction     string   `json:"instruction"`
			ReferenceImages []string `json:"referenceImages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		valid := string(req.Image) == "sandstone" && len(req.ReferenceImages) == 1
		json.NewEncoder(w).Encode(map[string]any{
			"isValid":  valid,
			"feedback": "checked " + req.Title + ": " + req.Instruction,
		})
	})
	r.Post("/transform", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image  []byte `json:"image"`
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "" {
			http.Error(w, "prompt required", http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(map[string][]byte{"image": append(req.Image, '!')})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestValidate(t *testing.T) {
	srv := fakeService(t)
	c := vision.New(vision.Config{BaseURL: srv.URL + "/"})

	v, err := c.Validate(context.Background(), puzzle.PhotoRequest{
		Photo:       []byte("sandstone"),
		Title:       "Strata",
		Instruction: "show the layers",
		References:  []string{"https://example.com/ref.jpg"},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !v.IsValid || v.Feedback != "checked Strata: show the layers" {
		t.Errorf("verdict = %+v", v)
	}

	v, err = c.Validate(context.Background(), puzzle.PhotoRequest{Photo: []byte("selfie")})
	if err != nil || v.IsValid {
		t.Errorf("verdict = %+v, err = %v; want invalid", v, err)
	}
}

func TestTransform(t *testing.T) {
	srv := fakeService(t)
	c := vision.New(vision.Config{BaseURL: srv.URL})

	out, err := c.Transform(context.Background(), []byte("ridge"), "overlay a grid")
	if err != nil || string(out) != "ridge!" {
		t.Fatalf("transform = %q, %v", out, err)
	}

	_, err = c.Transform(context.Background(), []byte("ridge"), "")
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Errorf("err = %v, want status 422", err)
	}
}

func TestPing(t *testing.T) {
	srv := fakeService(t)
	if err := vision.New(vision.Config{BaseURL: srv.URL}).Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestUnconfigured(t *testing.T) {
	c := vision.New(vision.Config{})
	ctx := context.Background()

	if _, err := c.Validate(ctx, puzzle.PhotoRequest{}); !errors.Is(err, vision.ErrUnavailable) {
		t.Errorf("validate err = %v", err)
	}
	if _, err := c.Transform(ctx, nil, "x"); !errors.Is(err, vision.ErrUnavailable) {
		t.Errorf("transform err = %v", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, vision.ErrUnavailable) {
		t.Errorf("ping err = %v", err)
	}
}
