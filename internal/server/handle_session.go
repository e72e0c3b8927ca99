package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/puzzle"
	"github.com/playperu/fieldquest/internal/session"
	"github.com/playperu/fieldquest/internal/vision"
)

type StartGameRequest struct {
	TeamName string `json:"teamName"`
}

// ProgressRequest optionally carries the player's inputs on exit or
// completion.
type ProgressRequest struct {
	Progress *fieldquest.PuzzleProgress `json:"progress,omitempty"`
}

type OutcomeResponse struct {
	Outcome puzzle.Outcome `json:"outcome"`
	State   session.View   `json:"state"`
}

type PhotoRequest struct {
	Image []byte `json:"image"`
}

type PhotoResponse struct {
	Generation uint64 `json:"generation"`
}

type TransformResponse struct {
	Image []byte `json:"image"`
}

type SettingsRequest struct {
	SoundEnabled *bool           `json:"soundEnabled,omitempty"`
	FogEnabled   *bool           `json:"fogEnabled,omitempty"`
	Panels       map[string]bool `json:"panels,omitempty"`
}

func handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, controller(r).State(r.Context()))
	}
}

func handleStartGame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartGameRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.TeamName = strings.TrimSpace(req.TeamName)
		if req.TeamName == "" {
			writeError(w, http.StatusBadRequest, "teamName is required")
			return
		}

		c := controller(r)
		c.StartNewGame(r.Context(), req.TeamName)
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleResumeGame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controller(r)
		if err := c.ResumeGame(); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleResetGame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controller(r)
		c.Reset(r.Context())
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleSelectPuzzle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controller(r)
		if err := c.SelectPuzzle(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleExitPuzzle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProgressRequest
		if err := readOptionalJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c := controller(r)
		if err := c.ExitPuzzle(r.Context(), req.Progress); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleUpdateDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft fieldquest.PuzzleProgress
		if err := readJSON(w, r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c := controller(r)
		if err := c.UpdateDraft(r.Context(), draft); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ans puzzle.Answer
		if err := readJSON(w, r, &ans); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c := controller(r)
		out, err := c.SubmitAnswer(r.Context(), ans)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out, State: c.State(r.Context())})
	}
}

func handleSubmitPart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		part, err := strconv.Atoi(chi.URLParam(r, "part"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "part must be 1 or 2")
			return
		}
		var ans puzzle.PartAnswer
		if err := readJSON(w, r, &ans); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c := controller(r)
		out, err := c.SubmitPart(r.Context(), part, ans)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out, State: c.State(r.Context())})
	}
}

// handleCapturePhoto accepts either a raw image body (Content-Type image/*)
// or a JSON body with a base64 image.
func handleCapturePhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var photo []byte
		if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "image too large")
				return
			}
			photo = data
		} else {
			var req PhotoRequest
			if err := readJSON(w, r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			photo = req.Image
		}
		if len(photo) == 0 {
			writeError(w, http.StatusBadRequest, "image is required")
			return
		}

		gen, err := controller(r).CapturePhoto(r.Context(), photo)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PhotoResponse{Generation: gen})
	}
}

func handleValidatePhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controller(r)
		out, err := c.ValidatePhoto(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out, State: c.State(r.Context())})
	}
}

func handleTransformPhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := controller(r).TransformPhoto(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, TransformResponse{Image: img})
	}
}

func handleCompletePuzzle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProgressRequest
		if err := readOptionalJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c := controller(r)
		if err := c.CompletePuzzle(r.Context(), req.Progress); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c := controller(r)
		if len(req.Panels) > 0 {
			if err := c.SetPanels(r.Context(), req.Panels); err != nil {
				writeSessionError(w, err)
				return
			}
		}
		if req.SoundEnabled != nil {
			c.SetSoundEnabled(r.Context(), *req.SoundEnabled)
		}
		if req.FogEnabled != nil {
			c.SetFogEnabled(r.Context(), *req.FogEnabled)
		}
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleTutorialSeen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controller(r)
		c.MarkTutorialSeen(r.Context())
		writeJSON(w, http.StatusOK, c.State(r.Context()))
	}
}

func handleReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, controller(r).Report())
	}
}

// writeSessionError maps controller errors onto HTTP statuses. Anything
// unrecognised came from a collaborator call.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownPuzzle):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrUnknownPanel),
		errors.Is(err, puzzle.ErrInvalidPart),
		errors.Is(err, puzzle.ErrWrongShape),
		errors.Is(err, puzzle.ErrNoQuiz):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoGame),
		errors.Is(err, session.ErrNoActivePuzzle),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrPhotoUnverified),
		errors.Is(err, session.ErrTransformNotAllowed),
		errors.Is(err, puzzle.ErrNoPhoto),
		errors.Is(err, puzzle.ErrQuizPending),
		errors.Is(err, puzzle.ErrSideCapReached),
		errors.Is(err, puzzle.ErrStale):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUnavailable), errors.Is(err, vision.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "photo service unavailable")
	default:
		writeError(w, http.StatusBadGateway, "photo service failed, try again")
	}
}
