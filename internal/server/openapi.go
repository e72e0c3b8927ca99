package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/puzzle"
	"github.com/playperu/fieldquest/internal/session"
	"github.com/playperu/fieldquest/internal/weather"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse maps dependency names to their status.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type DevicePath struct {
	Device string `path:"device" description:"Opaque device identifier."`
}

type PuzzlePath struct {
	DevicePath
	ID string `path:"id" description:"Puzzle id from the catalog."`
}

type PartPath struct {
	DevicePath
	Part int `path:"part" minimum:"1" maximum:"2"`
}

type startGameInput struct {
	DevicePath
	StartGameRequest
}

type progressInput struct {
	DevicePath
	ProgressRequest
}

type draftInput struct {
	DevicePath
	fieldquest.PuzzleProgress
}

type answerInput struct {
	DevicePath
	puzzle.Answer
}

type partInput struct {
	PartPath
	puzzle.PartAnswer
}

type photoInput struct {
	DevicePath
	PhotoRequest
}

type settingsInput struct {
	DevicePath
	SettingsRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Field Mission API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Mission progress and persistence engine for the Yongchun Pi field game.")

	add := func(method, path, summary, description string, req, resp any, errStatuses ...int) {
		oc, err := r.NewOperationContext(method, path)
		if err != nil {
			return
		}
		oc.SetSummary(summary)
		oc.SetDescription(description)
		if req != nil {
			oc.AddReqStructure(req)
		}
		oc.AddRespStructure(resp, openapi.WithHTTPStatus(http.StatusOK))
		for _, status := range errStatuses {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}
	stream := func(path, summary, description, contentType string) {
		oc, err := r.NewOperationContext(http.MethodGet, path)
		if err != nil {
			return
		}
		oc.SetSummary(summary)
		oc.SetDescription(description)
		oc.AddReqStructure(DevicePath{})
		oc.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType(contentType))
		_ = r.AddOperation(oc)
	}

	add(http.MethodGet, "/healthz", "Health check",
		"Returns the status of the slot store and optional collaborators.",
		nil, HealthResponse{}, http.StatusServiceUnavailable)
	add(http.MethodGet, "/api/puzzles", "Puzzle catalog",
		"Returns the main and side puzzles of the mission.",
		nil, fieldquest.Catalog{})
	add(http.MethodGet, "/api/weather", "Current weather",
		"Latest reading near the mission area. Presentation only.",
		nil, weather.Report{}, http.StatusServiceUnavailable)
	add(http.MethodPost, "/api/devices", "New device id",
		"Mints an identifier for a device that has no saved game yet.",
		nil, DeviceResponse{})

	// Game lifecycle.
	add(http.MethodGet, "/api/{device}/state", "Session state",
		"Derived view: stats, XP bar, fragments, clock and fog, active puzzle.",
		DevicePath{}, session.View{})
	add(http.MethodPost, "/api/{device}/game/start", "Start new game",
		"Discards any saved mission and starts a fresh one.",
		startGameInput{}, session.View{}, http.StatusBadRequest)
	add(http.MethodPost, "/api/{device}/game/resume", "Resume game",
		"Continues the saved mission.",
		DevicePath{}, session.View{}, http.StatusConflict)
	add(http.MethodPost, "/api/{device}/game/reset", "Reset",
		"Deletes the saved mission and the tutorial flag.",
		DevicePath{}, session.View{})

	// Puzzle attempt.
	add(http.MethodPost, "/api/{device}/puzzles/{id}/select", "Select puzzle",
		"Makes the puzzle active, restoring its saved progress.",
		PuzzlePath{}, session.View{}, http.StatusNotFound, http.StatusConflict)
	add(http.MethodPost, "/api/{device}/puzzle/exit", "Exit puzzle",
		"Returns home, keeping partial progress. Grants nothing.",
		progressInput{}, session.View{}, http.StatusConflict)
	add(http.MethodPut, "/api/{device}/puzzle/draft", "Update draft",
		"Records free-form inputs. Inputs of solved parts are locked.",
		draftInput{}, session.View{}, http.StatusConflict)
	add(http.MethodPost, "/api/{device}/puzzle/answer", "Submit answer",
		"Verifies a single-answer quiz (text or paired selections).",
		answerInput{}, OutcomeResponse{}, http.StatusBadRequest, http.StatusConflict)
	add(http.MethodPost, "/api/{device}/puzzle/parts/{part}", "Submit quiz part",
		"Verifies one part of a two-part quiz. Solved parts are locked.",
		partInput{}, OutcomeResponse{}, http.StatusBadRequest, http.StatusConflict)
	add(http.MethodPost, "/api/{device}/puzzle/photo", "Capture photo",
		"Stores a photo in the active slot. Accepts image/* or JSON with a base64 image.",
		photoInput{}, PhotoResponse{}, http.StatusBadRequest, http.StatusConflict)
	add(http.MethodPost, "/api/{device}/puzzle/validate", "Validate photo",
		"Sends the active photo to the validation service. Superseded results are rejected with 409.",
		DevicePath{}, OutcomeResponse{}, http.StatusConflict, http.StatusBadGateway, http.StatusServiceUnavailable)
	add(http.MethodPost, "/api/{device}/puzzle/transform", "Transform photo",
		"Renders a stylised version of a validated photo.",
		DevicePath{}, TransformResponse{}, http.StatusConflict, http.StatusBadGateway, http.StatusServiceUnavailable)
	add(http.MethodPost, "/api/{device}/puzzle/complete", "Complete puzzle",
		"Runs the completion transition. Rewards apply once per main puzzle.",
		progressInput{}, session.View{}, http.StatusConflict)

	// Settings and presentation.
	add(http.MethodPut, "/api/{device}/settings", "Update settings",
		"Sound, fog overlay and panel visibility.",
		settingsInput{}, session.View{}, http.StatusBadRequest)
	add(http.MethodPost, "/api/{device}/tutorial/seen", "Mark tutorial seen",
		"Suppresses the tutorial on this device until the next reset.",
		DevicePath{}, session.View{})
	add(http.MethodGet, "/api/{device}/clock", "Clock stream",
		"Upgrades to a WebSocket sending one ClockFrame per second.",
		DevicePath{}, ClockFrame{})
	stream("/api/{device}/report", "Mission report", "Plain-text summary of the mission.", "text/plain")
	stream("/api/{device}/events", "SSE event stream",
		"Server-Sent Events: cue, level_up, fragment_collected, mission_complete, fog_active, side_submission, puzzle_completed.",
		"text/event-stream")

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
