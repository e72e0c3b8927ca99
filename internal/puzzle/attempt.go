// Package puzzle implements the per-puzzle lifecycle: quiz verification
// (single answer and two-part compound), photo validation verdicts and
// side-mission submissions.
//
// An Attempt never touches player stats. Every method returns an Outcome
// that tells the caller which rewards and cues the transition earned.
package puzzle

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/fieldquest/internal/fieldquest"
)

// SideCap is the number of accepted submissions that completes a side
// mission.
const SideCap = 5

var (
	ErrNoQuiz         = errors.New("puzzle has no quiz")
	ErrWrongShape     = errors.New("answer does not fit the quiz shape")
	ErrInvalidPart    = errors.New("invalid quiz part")
	ErrNoPhoto        = errors.New("no photo captured")
	ErrQuizPending    = errors.New("quiz must be solved before submitting a photo")
	ErrStale          = errors.New("result belongs to a superseded photo")
	ErrSideCapReached = errors.New("side mission submissions are complete")
)

type State int

const (
	NotStarted State = iota
	InProgress
	Solved
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Solved:
		return "solved"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Cue is the sound a transition asks the front-end to play.
type Cue string

const (
	CueNone    Cue = ""
	CueSuccess Cue = "success"
	CueError   Cue = "error"
)

// Outcome describes what one transition did.
type Outcome struct {
	Correct bool `json:"correct"`
	// FieldSolved is set the first time a sub-part, single-answer quiz or
	// upload-only main photo is verified. It is never set twice for the
	// same part.
	FieldSolved bool   `json:"fieldSolved"`
	QuizSolved  bool   `json:"isQuizSolved"`
	Ready       bool   `json:"ready"`
	Cue         Cue    `json:"cue,omitempty"`
	Feedback    string `json:"feedback,omitempty"`

	SideAccepted bool `json:"sideAccepted,omitempty"`
	SideCount    int  `json:"sideCount,omitempty"`
}

// Answer is a single-answer submission: free text, or two selections for
// pair-shaped quizzes.
type Answer struct {
	Text    string `json:"text"`
	Select1 string `json:"select1"`
	Select2 string `json:"select2"`
}

// PartAnswer is a compound sub-part submission.
type PartAnswer struct {
	Measurements map[string]string `json:"measurements"`
	Reasoning    string            `json:"reasoning"`
}

// Verdict is the photo validation collaborator's answer.
type Verdict struct {
	IsValid  bool   `json:"isValid"`
	Feedback string `json:"feedback"`
}

// PhotoRequest carries everything needed to validate the active photo.
type PhotoRequest struct {
	Generation  uint64
	Photo       []byte
	Title       string
	Instruction string
	References  []string
}

// Attempt is one player's work on one puzzle, from entry until exit.
type Attempt struct {
	puzzle           fieldquest.Puzzle
	progress         fieldquest.PuzzleProgress
	alreadyCompleted bool

	quizError bool
	partError [2]bool
	feedback  string

	photoGen    uint64
	transformed []byte

	now func() time.Time
}

// Begin enters a puzzle, restoring prior progress. Already completed
// puzzles come back fully solved, and puzzles without a quiz are solved on
// entry.
func Begin(p fieldquest.Puzzle, prior *fieldquest.PuzzleProgress, alreadyCompleted bool, now func() time.Time) *Attempt {
	a := &Attempt{
		puzzle:           p,
		alreadyCompleted: alreadyCompleted,
		now:              now,
	}
	if prior != nil {
		a.progress = prior.Clone()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if alreadyCompleted {
		a.progress.QuizSolved = true
		a.progress.Part1Solved = true
		a.progress.Part2Solved = true
		a.progress.PhotoVerified = true
	}
	if p.Quiz == nil {
		a.progress.QuizSolved = true
	}
	return a
}

func (a *Attempt) Puzzle() fieldquest.Puzzle { return a.puzzle }

// Progress returns a copy of the current progress.
func (a *Attempt) Progress() fieldquest.PuzzleProgress { return a.progress.Clone() }

func (a *Attempt) QuizError() bool { return a.quizError }

func (a *Attempt) PartError(part int) bool {
	if part < 1 || part > 2 {
		return false
	}
	return a.partError[part-1]
}

func (a *Attempt) Feedback() string { return a.feedback }

func (a *Attempt) Transformed() []byte { return slices.Clone(a.transformed) }

func (a *Attempt) SideCount() int { return len(a.progress.SideEntries) }

// Ready reports whether the completion transition may run.
func (a *Attempt) Ready() bool {
	if a.alreadyCompleted {
		return true
	}
	if a.puzzle.Kind == fieldquest.KindSide {
		return a.SideCount() >= SideCap
	}
	if !a.progress.QuizSolved {
		return false
	}
	return !a.puzzle.UploadOnly || a.progress.PhotoVerified
}

func (a *Attempt) State() State {
	switch {
	case a.alreadyCompleted:
		return Completed
	case a.puzzle.Kind == fieldquest.KindSide && a.Ready():
		return Completed
	case a.Ready():
		return Solved
	}
	return InProgress
}

// UpdateDraft copies free-form inputs from d. Inputs of solved parts are
// locked, and solved flags and photos in d are ignored.
func (a *Attempt) UpdateDraft(d fieldquest.PuzzleProgress) {
	if !a.progress.Part1Solved && d.Measurements != nil {
		a.progress.Measurements = mergeMeasurements(a.progress.Measurements, d.Measurements)
	}
	if !a.progress.Part2Solved && d.Reasoning != "" {
		a.progress.Reasoning = d.Reasoning
	}
	if !a.progress.QuizSolved {
		if d.QuizInput != "" {
			a.progress.QuizInput = d.QuizInput
		}
		if d.QuizSelect1 != "" {
			a.progress.QuizSelect1 = d.QuizSelect1
		}
		if d.QuizSelect2 != "" {
			a.progress.QuizSelect2 = d.QuizSelect2
		}
	}
	if d.Note != "" {
		a.progress.Note = d.Note
	}
}

// SubmitAnswer verifies a single-answer quiz. A wrong answer raises the
// error flag until the next submission and costs nothing.
func (a *Attempt) SubmitAnswer(ans Answer) (Outcome, error) {
	q := a.puzzle.Quiz
	if q == nil {
		return Outcome{}, ErrNoQuiz
	}
	if q.Shape == fieldquest.ShapeCompound {
		return Outcome{}, ErrWrongShape
	}
	if a.progress.QuizSolved {
		return a.outcome(true), nil
	}
	a.quizError = false

	var (
		correct bool
		err     error
	)
	switch q.Shape {
	case fieldquest.ShapePair:
		a.progress.QuizSelect1, a.progress.QuizSelect2 = ans.Select1, ans.Select2
		correct = CheckPair(q, ans.Select1, ans.Select2)
	default:
		a.progress.QuizInput = ans.Text
		correct, err = CheckText(q, ans.Text)
	}

	if !correct {
		a.quizError = true
		out := a.outcome(false)
		out.Cue = CueError
		return out, err
	}

	a.progress.QuizSolved = true
	out := a.outcome(true)
	out.FieldSolved = true
	out.Cue = CueSuccess
	return out, nil
}

// SubmitPart verifies one part of a compound quiz. A solved part is locked:
// resubmitting it is a no-op. The quiz is solved once both parts are,
// whichever order they were solved in.
func (a *Attempt) SubmitPart(part int, ans PartAnswer) (Outcome, error) {
	q := a.puzzle.Quiz
	if q == nil {
		return Outcome{}, ErrNoQuiz
	}
	if q.Shape != fieldquest.ShapeCompound {
		return Outcome{}, ErrWrongShape
	}

	var solved *bool
	var correct bool
	switch part {
	case 1:
		solved = &a.progress.Part1Solved
		if *solved {
			return a.outcome(true), nil
		}
		a.progress.Measurements = mergeMeasurements(a.progress.Measurements, ans.Measurements)
		correct = CheckMeasurements(q, a.progress.Measurements)
	case 2:
		solved = &a.progress.Part2Solved
		if *solved {
			return a.outcome(true), nil
		}
		a.progress.Reasoning = ans.Reasoning
		correct = CheckConcepts(q, ans.Reasoning)
	default:
		return Outcome{}, ErrInvalidPart
	}

	if !correct {
		a.partError[part-1] = true
		out := a.outcome(false)
		out.Cue = CueError
		return out, nil
	}

	*solved = true
	a.partError[part-1] = false
	if a.progress.Part1Solved && a.progress.Part2Solved {
		a.progress.QuizSolved = true
	}
	out := a.outcome(true)
	out.FieldSolved = true
	out.Cue = CueSuccess
	return out, nil
}

// CapturePhoto puts a new photo in the active slot and supersedes any
// in-flight validation of the previous one.
func (a *Attempt) CapturePhoto(photo []byte) uint64 {
	a.photoGen++
	a.progress.Photo = slices.Clone(photo)
	a.transformed = nil
	a.feedback = ""
	return a.photoGen
}

// PhotoRequest prepares a validation request for the active photo.
func (a *Attempt) PhotoRequest() (PhotoRequest, error) {
	if a.puzzle.Kind == fieldquest.KindSide && a.SideCount() >= SideCap {
		return PhotoRequest{}, ErrSideCapReached
	}
	if len(a.progress.Photo) == 0 {
		return PhotoRequest{}, ErrNoPhoto
	}
	if a.puzzle.Kind == fieldquest.KindMain && a.puzzle.UploadOnly && !a.progress.QuizSolved {
		return PhotoRequest{}, ErrQuizPending
	}
	return PhotoRequest{
		Generation:  a.photoGen,
		Photo:       slices.Clone(a.progress.Photo),
		Title:       a.puzzle.Title,
		Instruction: a.puzzle.Instruction(),
		References:  slices.Clone(a.puzzle.ReferenceCheckImages),
	}, nil
}

// ResolveValidation applies a verdict for photo generation gen. Verdicts
// for superseded photos are rejected with ErrStale. Each generation is
// resolved at most once: any later verdict for it is stale.
func (a *Attempt) ResolveValidation(gen uint64, v Verdict) (Outcome, error) {
	if gen != a.photoGen {
		return Outcome{}, ErrStale
	}
	if a.puzzle.Kind == fieldquest.KindSide && a.SideCount() >= SideCap {
		return Outcome{}, ErrSideCapReached
	}
	a.photoGen++
	a.feedback = v.Feedback

	if !v.IsValid {
		a.progress.Photo = nil
		out := a.outcome(false)
		out.Cue = CueError
		out.Feedback = v.Feedback
		return out, nil
	}

	if a.puzzle.Kind == fieldquest.KindSide {
		return a.acceptSide(v), nil
	}

	out := a.outcome(true)
	if !a.progress.PhotoVerified {
		a.progress.PhotoVerified = true
		out.FieldSolved = a.puzzle.UploadOnly && !a.alreadyCompleted
	}
	out.Ready = a.Ready()
	out.Cue = CueSuccess
	out.Feedback = v.Feedback
	return out, nil
}

func (a *Attempt) acceptSide(v Verdict) Outcome {
	a.progress.SideEntries = append(a.progress.SideEntries, fieldquest.SideMissionEntry{
		ID:        uuid.NewString(),
		Photo:     slices.Clone(a.progress.Photo),
		Note:      a.progress.Note,
		Timestamp: a.now().UTC(),
	})
	if a.SideCount() < SideCap {
		// Clear the slot for the next capture; the note is kept.
		a.progress.Photo = nil
	}

	out := a.outcome(true)
	out.Cue = CueSuccess
	out.Feedback = v.Feedback
	out.SideAccepted = true
	out.SideCount = a.SideCount()
	return out
}

// SetTransformed stores the transform collaborator's result for photo
// generation gen.
func (a *Attempt) SetTransformed(gen uint64, photo []byte) error {
	if gen != a.photoGen {
		return ErrStale
	}
	a.transformed = slices.Clone(photo)
	return nil
}

// PhotoGeneration identifies the photo currently in the slot.
func (a *Attempt) PhotoGeneration() uint64 { return a.photoGen }

func (a *Attempt) outcome(correct bool) Outcome {
	return Outcome{
		Correct:    correct,
		QuizSolved: a.progress.QuizSolved,
		Ready:      a.Ready(),
		SideCount:  a.SideCount(),
	}
}

func mergeMeasurements(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// StatusOf reports the lifecycle state of a puzzle that may not have an
// active attempt.
func StatusOf(p fieldquest.Puzzle, progress *fieldquest.PuzzleProgress, completed bool) State {
	if completed {
		return Completed
	}
	if progress == nil {
		return NotStarted
	}
	return Begin(p, progress, false, nil).State()
}
