// Package fieldquest defines the core domain types for a field mission:
// puzzles, player stats, per-puzzle progress and the persisted snapshot.
// It has no dependencies outside the standard library.
package fieldquest

import (
	"maps"
	"slices"
	"time"
)

// NoFragment marks a puzzle that does not award a fragment.
const NoFragment = -1

type PuzzleKind string

const (
	KindMain PuzzleKind = "main"
	KindSide PuzzleKind = "side"
)

type QuizShape string

const (
	// ShapeText is a single free-text answer.
	ShapeText QuizShape = "text"
	// ShapePair is a single answer made of two dropdown selections.
	ShapePair QuizShape = "pair"
	// ShapeCompound has two independently verified parts.
	ShapeCompound QuizShape = "compound"
)

type Quiz struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Shape    QuizShape `json:"shape"`

	// Text shape: accepted alias terms and an optional Lua predicate
	// defining check(answer) -> bool.
	Aliases []string `json:"aliases,omitempty"`
	Script  string   `json:"script,omitempty"`

	// Pair shape: accepted (first, second) selections.
	Pairs []Pair `json:"pairs,omitempty"`

	// Compound shape: part 1 checks every range, part 2 needs at least one
	// term from each concept group.
	Ranges        []Range    `json:"ranges,omitempty"`
	ConceptGroups [][]string `json:"conceptGroups,omitempty"`
}

type Pair struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

type Range struct {
	Field string `json:"field"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

type Puzzle struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	PromptHint           string     `json:"promptHint,omitempty"`
	Difficulty           string     `json:"difficulty"`
	XPReward             int        `json:"xpReward"`
	Lat                  float64    `json:"lat"`
	Lng                  float64    `json:"lng"`
	FragmentID           int        `json:"fragmentId"`
	Kind                 PuzzleKind `json:"kind"`
	Quiz                 *Quiz      `json:"quiz,omitempty"`
	UploadInstruction    string     `json:"uploadInstruction,omitempty"`
	UploadOnly           bool       `json:"uploadOnly,omitempty"`
	ReferenceImage       string     `json:"referenceImage,omitempty"`
	ReferenceCheckImages []string   `json:"referenceCheckImages,omitempty"`
}

func (p Puzzle) HasFragment() bool { return p.FragmentID != NoFragment }

// Instruction is the text sent along with a photo for validation.
func (p Puzzle) Instruction() string {
	if p.UploadInstruction != "" {
		return p.UploadInstruction
	}
	return p.Description
}

type PlayerStats struct {
	Level       int    `json:"level"`
	CurrentXP   int    `json:"currentXp"`
	NextLevelXP int    `json:"nextLevelXp"`
	Rank        string `json:"rank"`
	Mana        int    `json:"mana"`
	MaxMana     int    `json:"maxMana"`
	SOSCount    int    `json:"sosCount"`
}

// PuzzleProgress is what a player has entered on a puzzle so far.
type PuzzleProgress struct {
	Measurements map[string]string `json:"measurements,omitempty"`
	Reasoning    string            `json:"reasoning,omitempty"`
	QuizInput    string            `json:"quizInput,omitempty"`
	QuizSelect1  string            `json:"quizSelect1,omitempty"`
	QuizSelect2  string            `json:"quizSelect2,omitempty"`
	Note         string            `json:"note,omitempty"`
	Photo        []byte            `json:"photo"`

	PhotoVerified bool `json:"photoVerified,omitempty"`
	Part1Solved   bool `json:"part1Solved,omitempty"`
	Part2Solved   bool `json:"part2Solved,omitempty"`
	QuizSolved    bool `json:"isQuizSolved"`

	SideEntries []SideMissionEntry `json:"sideEntries,omitempty"`
}

// Clone returns a deep copy.
func (p PuzzleProgress) Clone() PuzzleProgress {
	out := p
	out.Measurements = maps.Clone(p.Measurements)
	out.Photo = slices.Clone(p.Photo)
	if p.SideEntries != nil {
		out.SideEntries = make([]SideMissionEntry, len(p.SideEntries))
		for i, e := range p.SideEntries {
			e.Photo = slices.Clone(e.Photo)
			out.SideEntries[i] = e
		}
	}
	return out
}

// WithoutPhotos returns a copy with every photo payload removed.
func (p PuzzleProgress) WithoutPhotos() PuzzleProgress {
	out := p.Clone()
	out.Photo = nil
	for i := range out.SideEntries {
		out.SideEntries[i].Photo = nil
	}
	return out
}

// SideMissionEntry is one accepted side-mission submission.
type SideMissionEntry struct {
	ID        string    `json:"id"`
	Photo     []byte    `json:"photo"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// Panels records which UI panels were open.
type Panels struct {
	Manual       bool `json:"showManual"`
	Settings     bool `json:"showSettings"`
	TreasureMap  bool `json:"showTreasureMap"`
	SideMissions bool `json:"showSideMissions"`
	Encyclopedia bool `json:"showEncyclopedia"`
	Profile      bool `json:"showProfile"`
}

// Snapshot is the unit of persistence: one in-progress or finished mission.
type Snapshot struct {
	MissionID    string
	Stats        PlayerStats
	TeamName     string
	Fragments    []int
	CompletedIDs []string
	StartTime    *time.Time
	EndTime      *time.Time
	Progress     map[string]PuzzleProgress
	SoundEnabled bool
	FogEnabled   bool
	Panels       Panels
}

func (s *Snapshot) HasFragment(id int) bool { return slices.Contains(s.Fragments, id) }

func (s *Snapshot) HasCompleted(id string) bool { return slices.Contains(s.CompletedIDs, id) }

// Clone returns a deep copy safe to hand to another goroutine.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Fragments = slices.Clone(s.Fragments)
	out.CompletedIDs = slices.Clone(s.CompletedIDs)
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	if s.Progress != nil {
		out.Progress = make(map[string]PuzzleProgress, len(s.Progress))
		for k, v := range s.Progress {
			out.Progress[k] = v.Clone()
		}
	}
	return out
}
