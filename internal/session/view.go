package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playperu/fieldquest/internal/clock"
	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/progression"
	"github.com/playperu/fieldquest/internal/puzzle"
)

// Event types published to the Notifier.
const (
	EventCue               = "cue"
	EventLevelUp           = "level_up"
	EventFragmentCollected = "fragment_collected"
	EventMissionComplete   = "mission_complete"
	EventFogActive         = "fog_active"
	EventSideSubmission    = "side_submission"
	EventPuzzleCompleted   = "puzzle_completed"
	EventCapability        = "capability"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// View is the derived presentation state of a device.
type View struct {
	Screen          Screen                 `json:"screen"`
	HasGame         bool                   `json:"hasGame"`
	TutorialPending bool                   `json:"tutorialPending"`
	TeamName        string                 `json:"teamName"`
	Stats           fieldquest.PlayerStats `json:"stats"`
	XPBarPercent    float64                `json:"xpBarPercent"`
	Fragments       []int                  `json:"fragments"`
	FragmentTotal   int                    `json:"fragmentTotal"`
	CompletedIDs    []string               `json:"completedIds"`
	StartTime       *time.Time             `json:"startTime"`
	EndTime         *time.Time             `json:"endTime"`
	Clock           clock.State            `json:"clock"`
	FogVisible      bool                   `json:"fogVisible"`
	SoundEnabled    bool                   `json:"soundEnabled"`
	FogEnabled      bool                   `json:"fogEnabled"`
	Panels          fieldquest.Panels      `json:"panels"`
	Puzzles         []PuzzleStatus         `json:"puzzles"`
	Active          *ActiveView            `json:"active,omitempty"`
}

type PuzzleStatus struct {
	ID    string                `json:"id"`
	Title string                `json:"title"`
	Kind  fieldquest.PuzzleKind `json:"kind"`
	State string                `json:"state"`
}

// ActiveView describes the puzzle on screen.
type ActiveView struct {
	PuzzleID       string                    `json:"puzzleId"`
	State          string                    `json:"state"`
	Progress       fieldquest.PuzzleProgress `json:"progress"`
	QuizError      bool                      `json:"quizError"`
	PartErrors     [2]bool                   `json:"partErrors"`
	Feedback       string                    `json:"feedback,omitempty"`
	PhotoGen       uint64                    `json:"photoGeneration"`
	HasTransformed bool                      `json:"hasTransformed"`
	SideCount      int                       `json:"sideCount"`
	Ready          bool                      `json:"ready"`
}

// State returns the view at the current time.
func (c *Controller) State(ctx context.Context) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, _ := c.observeClock(c.now())
	v := View{
		Screen:          c.screen,
		HasGame:         c.snap.StartTime != nil,
		TutorialPending: c.tutorialPending(ctx),
		TeamName:        c.snap.TeamName,
		Stats:           c.snap.Stats,
		XPBarPercent:    progression.BarPercent(c.snap.Stats),
		Fragments:       append([]int(nil), c.snap.Fragments...),
		FragmentTotal:   c.catalog.FragmentTotal(),
		CompletedIDs:    append([]string(nil), c.snap.CompletedIDs...),
		StartTime:       c.snap.StartTime,
		EndTime:         c.snap.EndTime,
		Clock:           st,
		FogVisible:      c.snap.FogEnabled && c.latch.Active(),
		SoundEnabled:    c.snap.SoundEnabled,
		FogEnabled:      c.snap.FogEnabled,
		Panels:          c.snap.Panels,
		Puzzles:         c.statuses(),
	}
	if a := c.active; a != nil {
		v.Active = &ActiveView{
			PuzzleID:       a.Puzzle().ID,
			State:          a.State().String(),
			Progress:       a.Progress(),
			QuizError:      a.QuizError(),
			PartErrors:     [2]bool{a.PartError(1), a.PartError(2)},
			Feedback:       a.Feedback(),
			PhotoGen:       a.PhotoGeneration(),
			HasTransformed: len(a.Transformed()) > 0,
			SideCount:      a.SideCount(),
			Ready:          a.Ready(),
		}
	}
	return v
}

func (c *Controller) statuses() []PuzzleStatus {
	all := c.catalog.All()
	out := make([]PuzzleStatus, 0, len(all))
	for _, p := range all {
		var prior *fieldquest.PuzzleProgress
		if pp, ok := c.snap.Progress[p.ID]; ok {
			prior = &pp
		}
		completed := p.Kind == fieldquest.KindMain && c.snap.HasCompleted(p.ID)
		out = append(out, PuzzleStatus{
			ID:    p.ID,
			Title: p.Title,
			Kind:  p.Kind,
			State: puzzle.StatusOf(p, prior, completed).String(),
		})
	}
	return out
}

// Report renders the plain-text mission report shown in settings.
func (c *Controller) Report() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	s := c.snap
	team := s.TeamName
	if team == "" {
		team = "-"
	}
	fmt.Fprintf(&b, "Team: %s\n", team)
	fmt.Fprintf(&b, "Rank: %s (Lv.%d)\n", s.Stats.Rank, s.Stats.Level)
	fmt.Fprintf(&b, "XP: %d\n", s.Stats.CurrentXP)
	fmt.Fprintf(&b, "Fragments: %d/%d\n", len(s.Fragments), c.catalog.FragmentTotal())

	switch {
	case s.StartTime == nil:
		b.WriteString("Time: not started\n")
	case s.EndTime == nil:
		b.WriteString("Time: in progress\n")
	default:
		fmt.Fprintf(&b, "Time: %s\n", clock.Duration(clock.Elapsed(*s.StartTime, s.EndTime, *s.EndTime)))
	}

	b.WriteString("\nMissions:\n")
	for _, p := range c.catalog.Main {
		status := "pending"
		if s.HasCompleted(p.ID) {
			status = "done"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", status, p.Title)
		if pp, ok := s.Progress[p.ID]; ok {
			writeNotes(&b, pp)
		}
	}
	return b.String()
}

func writeNotes(b *strings.Builder, p fieldquest.PuzzleProgress) {
	if p.QuizInput != "" {
		fmt.Fprintf(b, "    answer: %s\n", p.QuizInput)
	}
	if p.QuizSelect1 != "" || p.QuizSelect2 != "" {
		fmt.Fprintf(b, "    answer: %s / %s\n", p.QuizSelect1, p.QuizSelect2)
	}
	if p.Reasoning != "" {
		fmt.Fprintf(b, "    reasoning: %s\n", p.Reasoning)
	}
	if p.Note != "" {
		fmt.Fprintf(b, "    note: %s\n", p.Note)
	}
}
