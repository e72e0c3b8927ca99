package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/puzzle"
	"github.com/playperu/fieldquest/internal/savecodec"
	"github.com/playperu/fieldquest/internal/session"
	"github.com/playperu/fieldquest/internal/slot"
)

const testCatalog = `{
  "id": "test",
  "main": [
    {"id": "a", "title": "Alpha", "xpReward": 300, "fragmentId": 0},
    {"id": "q", "title": "Strata", "xpReward": 300, "fragmentId": 1, "uploadOnly": true,
     "quiz": {"shape": "text", "answer": "南港層", "aliases": ["南港"]}}
  ],
  "side": [
    {"id": "s1", "title": "Drain holes", "xpReward": 50}
  ]
}`

type stubValidator struct {
	verdict puzzle.Verdict
	err     error
}

func (s stubValidator) Validate(context.Context, puzzle.PhotoRequest) (puzzle.Verdict, error) {
	return s.verdict, s.err
}

type testEnv struct {
	router   http.Handler
	registry *Registry
	broker   *Broker
	store    *slot.MemoryStore
}

func setupEnv(t *testing.T, v session.Validator) *testEnv {
	t.Helper()
	return setupEnvWithStore(t, v, slot.NewMemoryStore(0))
}

func setupEnvWithStore(t *testing.T, v session.Validator, store *slot.MemoryStore) *testEnv {
	t.Helper()
	cat, err := fieldquest.ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parsing catalog: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		broker: NewBroker(),
		store:  store,
	}
	env.registry = NewRegistry(func(ctx context.Context, device string) *session.Controller {
		return session.New(ctx, session.Options{
			Device:    device,
			Catalog:   cat,
			Codec:     savecodec.New(env.store, device, cat, logger),
			Validator: v,
			Notifier:  env.broker,
			Logger:    logger,
		})
	})
	env.router = New("", logger, Deps{
		Registry: env.registry,
		Broker:   env.broker,
		Catalog:  cat,
	}).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestStartGame(t *testing.T) {
	env := setupEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "  UNIT-734 "})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	view := decode[session.View](t, rec)
	if !view.HasGame || view.TeamName != "UNIT-734" {
		t.Errorf("view = %+v", view)
	}
	if view.Screen != session.ScreenHome {
		t.Errorf("screen = %q, want home", view.Screen)
	}
	if view.Stats.Level != 1 || view.Stats.Mana != 75 {
		t.Errorf("stats = %+v", view.Stats)
	}
	if view.FragmentTotal != 2 || len(view.Puzzles) != 3 {
		t.Errorf("fragmentTotal = %d, puzzles = %d", view.FragmentTotal, len(view.Puzzles))
	}
	if _, err := env.store.Get(context.Background(), "dev-1/save"); err != nil {
		t.Errorf("game not saved: %v", err)
	}
}

func TestStartGameValidation(t *testing.T) {
	env := setupEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty team", `{"teamName": "   "}`},
		{"malformed", `{"teamName":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/dev-1/game/start", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestInvalidDevice(t *testing.T) {
	env := setupEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/"+strings.Repeat("x", 65)+"/state", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if env.registry.Len() != 0 {
		t.Errorf("registry holds %d controllers", env.registry.Len())
	}
}

func TestQuizAndPhotoFlow(t *testing.T) {
	env := setupEnv(t, stubValidator{verdict: puzzle.Verdict{IsValid: true, Feedback: "looks right"}})
	env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"})

	if rec := env.do(t, http.MethodPost, "/api/dev-1/puzzles/q/select", nil); rec.Code != http.StatusOK {
		t.Fatalf("select: status = %d; body: %s", rec.Code, rec.Body.String())
	}

	// The photo cannot be checked before the quiz is solved.
	env.do(t, http.MethodPost, "/api/dev-1/puzzle/photo", PhotoRequest{Image: []byte("jpeg")})
	if rec := env.do(t, http.MethodPost, "/api/dev-1/puzzle/validate", nil); rec.Code != http.StatusConflict {
		t.Fatalf("early validate: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec := env.do(t, http.MethodPost, "/api/dev-1/puzzle/answer", puzzle.Answer{Text: "wrong"})
	if out := decode[OutcomeResponse](t, rec); out.Outcome.Correct || !out.State.Active.QuizError {
		t.Fatalf("wrong answer outcome = %+v", out.Outcome)
	}

	rec = env.do(t, http.MethodPost, "/api/dev-1/puzzle/answer", puzzle.Answer{Text: "南港"})
	out := decode[OutcomeResponse](t, rec)
	if !out.Outcome.Correct || !out.Outcome.FieldSolved || out.Outcome.Ready {
		t.Fatalf("answer outcome = %+v", out.Outcome)
	}

	if rec := env.do(t, http.MethodPost, "/api/dev-1/puzzle/complete", nil); rec.Code != http.StatusConflict {
		t.Fatalf("complete before photo: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/dev-1/puzzle/photo", bytes.NewReader([]byte("raw-jpeg")))
	req.Header.Set("Content-Type", "image/jpeg")
	prec := httptest.NewRecorder()
	env.router.ServeHTTP(prec, req)
	if photo := decode[PhotoResponse](t, prec); photo.Generation != 2 {
		t.Fatalf("generation = %d, want 2", photo.Generation)
	}

	rec = env.do(t, http.MethodPost, "/api/dev-1/puzzle/validate", nil)
	out = decode[OutcomeResponse](t, rec)
	if !out.Outcome.Ready || out.Outcome.Feedback != "looks right" {
		t.Fatalf("validate outcome = %+v", out.Outcome)
	}

	// Transform is only for puzzles that are not upload-only.
	if rec := env.do(t, http.MethodPost, "/api/dev-1/puzzle/transform", nil); rec.Code != http.StatusConflict {
		t.Errorf("transform: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = env.do(t, http.MethodPost, "/api/dev-1/puzzle/complete", ProgressRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d; body: %s", rec.Code, rec.Body.String())
	}
	view := decode[session.View](t, rec)
	// 100 for the answer, 100 for the photo, 300 on completion.
	if view.Stats.CurrentXP != 500 || view.Stats.Level != 2 {
		t.Errorf("stats = %+v", view.Stats)
	}
	if view.Stats.Mana != 60 {
		t.Errorf("mana = %d, want 60", view.Stats.Mana)
	}
	if len(view.Fragments) != 1 || view.Fragments[0] != 1 {
		t.Errorf("fragments = %v", view.Fragments)
	}
	if view.Active != nil || view.Screen != session.ScreenHome {
		t.Errorf("still on puzzle: %+v", view.Active)
	}
}

func TestSessionErrors(t *testing.T) {
	env := setupEnv(t, stubValidator{err: errors.New("upstream 500")})

	// No game yet.
	if rec := env.do(t, http.MethodPost, "/api/dev-1/puzzles/a/select", nil); rec.Code != http.StatusConflict {
		t.Errorf("select without game: status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if rec := env.do(t, http.MethodPost, "/api/dev-1/game/resume", nil); rec.Code != http.StatusConflict {
		t.Errorf("resume without game: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown puzzle", http.MethodPost, "/api/dev-1/puzzles/zz/select", nil, http.StatusNotFound},
		{"answer without puzzle", http.MethodPost, "/api/dev-1/puzzle/answer", puzzle.Answer{Text: "x"}, http.StatusConflict},
		{"unknown panel", http.MethodPut, "/api/dev-1/settings", SettingsRequest{Panels: map[string]bool{"cockpit": true}}, http.StatusBadRequest},
		{"part not a number", http.MethodPost, "/api/dev-1/puzzle/parts/x", puzzle.PartAnswer{}, http.StatusBadRequest},
		{"empty photo", http.MethodPost, "/api/dev-1/puzzle/photo", PhotoRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, tt.want, rec.Body.String())
			}
			if resp := decode[ErrorResponse](t, rec); resp.Error == "" {
				t.Error("missing error message")
			}
		})
	}

	t.Run("validator failure", func(t *testing.T) {
		env.do(t, http.MethodPost, "/api/dev-1/puzzles/s1/select", nil)
		env.do(t, http.MethodPost, "/api/dev-1/puzzle/photo", PhotoRequest{Image: []byte("jpeg")})
		rec := env.do(t, http.MethodPost, "/api/dev-1/puzzle/validate", nil)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
		}
	})

	t.Run("validator unavailable", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"})
		env.do(t, http.MethodPost, "/api/dev-1/puzzles/s1/select", nil)
		env.do(t, http.MethodPost, "/api/dev-1/puzzle/photo", PhotoRequest{Image: []byte("jpeg")})
		rec := env.do(t, http.MethodPost, "/api/dev-1/puzzle/validate", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestSettingsAndReport(t *testing.T) {
	env := setupEnv(t, nil)
	env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT-734"})

	off := false
	rec := env.do(t, http.MethodPut, "/api/dev-1/settings", SettingsRequest{
		SoundEnabled: &off,
		Panels:       map[string]bool{"treasureMap": true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("settings: status = %d; body: %s", rec.Code, rec.Body.String())
	}
	view := decode[session.View](t, rec)
	if view.SoundEnabled || !view.FogEnabled || !view.Panels.TreasureMap {
		t.Errorf("settings not applied: sound=%v fog=%v panels=%+v", view.SoundEnabled, view.FogEnabled, view.Panels)
	}

	rec = env.do(t, http.MethodGet, "/api/dev-1/report", nil)
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("content-type = %q", got)
	}
	body := rec.Body.String()
	for _, want := range []string{"Team: UNIT-734", "Fragments: 0/2", "Time: in progress", "[pending] Alpha"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q:\n%s", want, body)
		}
	}
}

func TestSettingsRejectUnknownPanelAtomically(t *testing.T) {
	env := setupEnv(t, nil)
	env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"})
	before, _ := env.store.Get(context.Background(), "dev-1/save")

	off := false
	rec := env.do(t, http.MethodPut, "/api/dev-1/settings", SettingsRequest{
		SoundEnabled: &off,
		Panels: map[string]bool{
			"manual":       true,
			"treasureMap":  true,
			"sideMissions": true,
			"cockpit":      true,
			"profile":      true,
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	view := decode[session.View](t, env.do(t, http.MethodGet, "/api/dev-1/state", nil))
	if view.Panels != (fieldquest.Panels{}) || !view.SoundEnabled {
		t.Errorf("rejected request changed settings: sound=%v panels=%+v", view.SoundEnabled, view.Panels)
	}
	after, _ := env.store.Get(context.Background(), "dev-1/save")
	if !bytes.Equal(before, after) {
		t.Error("rejected request was saved")
	}
}

func TestTutorialAndReset(t *testing.T) {
	env := setupEnv(t, nil)
	view := decode[session.View](t, env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"}))
	if !view.TutorialPending {
		t.Fatal("tutorial should be pending after a fresh start")
	}

	view = decode[session.View](t, env.do(t, http.MethodPost, "/api/dev-1/tutorial/seen", nil))
	if view.TutorialPending {
		t.Error("tutorial still pending after seen")
	}

	view = decode[session.View](t, env.do(t, http.MethodPost, "/api/dev-1/game/reset", nil))
	if view.HasGame || view.Screen != session.ScreenIntro {
		t.Errorf("after reset: hasGame=%v screen=%q", view.HasGame, view.Screen)
	}
	if keys := env.store.Keys(); len(keys) != 0 {
		t.Errorf("store keys after reset = %v", keys)
	}
}

func TestProgressSurvivesRestart(t *testing.T) {
	env := setupEnv(t, nil)
	env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"})
	env.do(t, http.MethodPost, "/api/dev-1/puzzles/q/select", nil)
	env.do(t, http.MethodPut, "/api/dev-1/puzzle/draft", fieldquest.PuzzleProgress{QuizInput: "half typed"})
	env.do(t, http.MethodPost, "/api/dev-1/puzzle/exit", nil)

	// A second registry over the same store behaves like a restarted process.
	restarted := setupEnvWithStore(t, nil, env.store)

	view := decode[session.View](t, restarted.do(t, http.MethodGet, "/api/dev-1/state", nil))
	if !view.HasGame || view.Screen != session.ScreenIntro {
		t.Fatalf("restored view: hasGame=%v screen=%q", view.HasGame, view.Screen)
	}
	restarted.do(t, http.MethodPost, "/api/dev-1/game/resume", nil)
	view = decode[session.View](t, restarted.do(t, http.MethodPost, "/api/dev-1/puzzles/q/select", nil))
	if view.Active == nil || view.Active.Progress.QuizInput != "half typed" {
		t.Errorf("draft not restored: %+v", view.Active)
	}
}

func TestPuzzlesAndDevices(t *testing.T) {
	env := setupEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/puzzles", nil)
	cat := decode[fieldquest.Catalog](t, rec)
	if cat.ID != "test" || len(cat.Main) != 2 || len(cat.Side) != 1 {
		t.Errorf("catalog = %+v", cat)
	}

	rec = env.do(t, http.MethodPost, "/api/devices", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	dev := decode[DeviceResponse](t, rec)
	if !deviceRe.MatchString(dev.DeviceID) {
		t.Errorf("minted id %q is not a valid device id", dev.DeviceID)
	}

	if rec := env.do(t, http.MethodGet, "/api/weather", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("weather without source: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
