// Package session orchestrates one device's mission: starting and resuming
// games, routing puzzle events to the active attempt, granting rewards,
// ending the mission when every fragment is collected and persisting the
// snapshot after each mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/fieldquest/internal/clock"
	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/progression"
	"github.com/playperu/fieldquest/internal/puzzle"
	"github.com/playperu/fieldquest/internal/savecodec"
)

var (
	ErrNoGame              = errors.New("no mission in progress")
	ErrNoActivePuzzle      = errors.New("no puzzle selected")
	ErrUnknownPuzzle       = errors.New("unknown puzzle")
	ErrNotReady            = errors.New("puzzle is not ready to complete")
	ErrUnknownPanel        = errors.New("unknown panel")
	ErrUnavailable         = errors.New("collaborator unavailable")
	ErrTransformNotAllowed = errors.New("transform is not offered for upload-only puzzles")
	ErrPhotoUnverified     = errors.New("photo has not been validated")
)

// Persister stores the snapshot and tutorial flag of one device.
type Persister interface {
	Save(ctx context.Context, snap fieldquest.Snapshot) savecodec.Outcome
	Load(ctx context.Context) (fieldquest.Snapshot, bool)
	TutorialSeen(ctx context.Context) bool
	MarkTutorialSeen(ctx context.Context)
	ClearSave(ctx context.Context)
	Reset(ctx context.Context)
}

// Validator checks a photo against a puzzle's instruction.
type Validator interface {
	Validate(ctx context.Context, req puzzle.PhotoRequest) (puzzle.Verdict, error)
}

// Transformer renders a stylised version of a photo.
type Transformer interface {
	Transform(ctx context.Context, photo []byte, prompt string) ([]byte, error)
}

// CaptureChecker is the best-effort capture capability check run on puzzle
// selection.
type CaptureChecker interface {
	Ping(ctx context.Context) error
}

// Notifier receives session events for fan-out to front-ends.
type Notifier interface {
	Publish(device string, ev Event)
}

type Screen string

const (
	ScreenIntro  Screen = "intro"
	ScreenHome   Screen = "home"
	ScreenPuzzle Screen = "puzzle"
)

// Options configures a Controller. Codec and Catalog are required.
type Options struct {
	Device      string
	Catalog     *fieldquest.Catalog
	Codec       Persister
	Validator   Validator
	Transformer Transformer
	Capture     CaptureChecker
	Notifier    Notifier
	Logger      *slog.Logger
	Now         func() time.Time
}

// Controller is the sole mutator of a device's snapshot. All methods are
// safe for concurrent use; collaborator calls run without holding the lock.
type Controller struct {
	mu sync.Mutex

	device      string
	catalog     *fieldquest.Catalog
	codec       Persister
	validator   Validator
	transformer Transformer
	capture     CaptureChecker
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time

	snap       fieldquest.Snapshot
	screen     Screen
	active     *puzzle.Attempt
	latch      clock.Latch
	freshStart bool
}

// New restores the device's saved game, if any, and returns a controller
// on the intro screen.
func New(ctx context.Context, opts Options) *Controller {
	c := &Controller{
		device:      opts.Device,
		catalog:     opts.Catalog,
		codec:       opts.Codec,
		validator:   opts.Validator,
		transformer: opts.Transformer,
		capture:     opts.Capture,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
		screen:      ScreenIntro,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("device", opts.Device)
	if c.now == nil {
		c.now = time.Now
	}

	if snap, ok := c.codec.Load(ctx); ok {
		c.snap = snap
		c.logger.Info("restored saved mission", "team", snap.TeamName, "xp", snap.Stats.CurrentXP)
	} else {
		c.snap = c.emptySnapshot()
	}
	return c
}

func (c *Controller) emptySnapshot() fieldquest.Snapshot {
	return fieldquest.Snapshot{
		MissionID:    c.catalog.ID,
		Stats:        progression.InitialStats(),
		Fragments:    []int{},
		CompletedIDs: []string{},
		Progress:     make(map[string]fieldquest.PuzzleProgress),
		SoundEnabled: true,
		FogEnabled:   true,
	}
}

// HasGame reports whether a mission has been started.
func (c *Controller) HasGame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.StartTime != nil
}

// Snapshot returns a copy of the current snapshot.
func (c *Controller) Snapshot() fieldquest.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Clone()
}

// StartNewGame discards any saved mission and starts a fresh one for team.
func (c *Controller) StartNewGame(ctx context.Context, team string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.codec.ClearSave(ctx)
	now := c.now().UTC().Truncate(time.Millisecond)
	c.snap = c.emptySnapshot()
	c.snap.TeamName = team
	c.snap.StartTime = &now
	c.active = nil
	c.latch.Reset()
	c.freshStart = true
	c.screen = ScreenHome

	c.logger.Info("mission started", "team", team)
	c.persist(ctx)
}

// ResumeGame moves to the home screen with the restored snapshot as is.
func (c *Controller) ResumeGame() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.StartTime == nil {
		return ErrNoGame
	}
	c.screen = ScreenHome
	c.observeClock(c.now())
	return nil
}

// SelectPuzzle makes id the active puzzle, restoring its saved progress.
// Selecting while another puzzle is active exits that puzzle first.
func (c *Controller) SelectPuzzle(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.StartTime == nil {
		return ErrNoGame
	}
	p, ok := c.catalog.Puzzle(id)
	if !ok {
		return ErrUnknownPuzzle
	}
	if c.active != nil {
		c.syncProgress()
	}

	var prior *fieldquest.PuzzleProgress
	if pp, ok := c.snap.Progress[id]; ok {
		prior = &pp
	}
	completed := p.Kind == fieldquest.KindMain && c.snap.HasCompleted(id)
	c.active = puzzle.Begin(p, prior, completed, c.now)
	c.screen = ScreenPuzzle

	c.checkCapture()
	return nil
}

func (c *Controller) checkCapture() {
	if c.capture == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := c.capture.Ping(ctx)
		if err != nil {
			c.logger.Warn("capture check failed", "error", err)
		}
		c.publish(Event{Type: EventCapability, Data: map[string]bool{"available": err == nil}})
	}()
}

// ExitPuzzle returns home, keeping the attempt's progress for the next
// visit. draft, when given, is merged into the attempt first. No reward is
// granted.
func (c *Controller) ExitPuzzle(ctx context.Context, draft *fieldquest.PuzzleProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ErrNoActivePuzzle
	}
	if draft != nil {
		c.active.UpdateDraft(*draft)
	}
	c.syncProgress()
	c.active = nil
	c.screen = ScreenHome
	c.persist(ctx)
	return nil
}

// UpdateDraft records free-form inputs on the active puzzle.
func (c *Controller) UpdateDraft(ctx context.Context, draft fieldquest.PuzzleProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ErrNoActivePuzzle
	}
	c.active.UpdateDraft(draft)
	c.syncProgress()
	c.persist(ctx)
	return nil
}

// SubmitAnswer verifies a single-answer quiz on the active puzzle.
func (c *Controller) SubmitAnswer(ctx context.Context, ans puzzle.Answer) (puzzle.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return puzzle.Outcome{}, ErrNoActivePuzzle
	}
	out, err := c.active.SubmitAnswer(ans)
	if errors.Is(err, puzzle.ErrScript) {
		c.logger.Error("answer script failed", "puzzle", c.active.Puzzle().ID, "error", err)
	} else if err != nil {
		return puzzle.Outcome{}, err
	}
	c.applyOutcome(ctx, out)
	return out, nil
}

// SubmitPart verifies one part of a compound quiz on the active puzzle.
func (c *Controller) SubmitPart(ctx context.Context, part int, ans puzzle.PartAnswer) (puzzle.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return puzzle.Outcome{}, ErrNoActivePuzzle
	}
	out, err := c.active.SubmitPart(part, ans)
	if err != nil {
		return puzzle.Outcome{}, err
	}
	c.applyOutcome(ctx, out)
	return out, nil
}

// CapturePhoto stores a new photo in the active slot and returns its
// generation.
func (c *Controller) CapturePhoto(ctx context.Context, photo []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return 0, ErrNoActivePuzzle
	}
	gen := c.active.CapturePhoto(photo)
	c.syncProgress()
	c.persist(ctx)
	return gen, nil
}

// ValidatePhoto sends the active photo to the validator. The verdict is
// applied only if the same puzzle and photo are still active when it
// arrives; otherwise puzzle.ErrStale is returned and nothing changes.
func (c *Controller) ValidatePhoto(ctx context.Context) (puzzle.Outcome, error) {
	c.mu.Lock()
	a := c.active
	if a == nil {
		c.mu.Unlock()
		return puzzle.Outcome{}, ErrNoActivePuzzle
	}
	req, err := a.PhotoRequest()
	c.mu.Unlock()
	if err != nil {
		return puzzle.Outcome{}, err
	}
	if c.validator == nil {
		return puzzle.Outcome{}, ErrUnavailable
	}

	verdict, err := c.validator.Validate(ctx, req)
	if err != nil {
		c.logger.Warn("photo validation failed", "puzzle", a.Puzzle().ID, "error", err)
		return puzzle.Outcome{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != a {
		return puzzle.Outcome{}, puzzle.ErrStale
	}
	out, err := a.ResolveValidation(req.Generation, verdict)
	if err != nil {
		return puzzle.Outcome{}, err
	}
	if out.SideAccepted {
		p := a.Puzzle()
		c.reward(p.XPReward, 0)
		c.publish(Event{Type: EventSideSubmission, Data: map[string]any{"puzzleId": p.ID, "count": out.SideCount}})
	}
	c.applyOutcome(ctx, out)
	return out, nil
}

// TransformPhoto runs the transform collaborator on the validated photo of
// a puzzle that is not upload-only.
func (c *Controller) TransformPhoto(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	a := c.active
	if a == nil {
		c.mu.Unlock()
		return nil, ErrNoActivePuzzle
	}
	p := a.Puzzle()
	progress := a.Progress()
	gen := a.PhotoGeneration()
	c.mu.Unlock()

	switch {
	case p.UploadOnly:
		return nil, ErrTransformNotAllowed
	case len(progress.Photo) == 0:
		return nil, puzzle.ErrNoPhoto
	case !progress.PhotoVerified:
		return nil, ErrPhotoUnverified
	case c.transformer == nil:
		return nil, ErrUnavailable
	}

	prompt := p.PromptHint
	if prompt == "" {
		prompt = p.Instruction()
	}
	out, err := c.transformer.Transform(ctx, progress.Photo, prompt)
	if err != nil {
		c.logger.Warn("photo transform failed", "puzzle", p.ID, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != a {
		return nil, puzzle.ErrStale
	}
	if err := a.SetTransformed(gen, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompletePuzzle runs the completion transition for the active puzzle and
// returns home. For main puzzles the reward, mana cost and fragment apply
// once per puzzle id; the mission ends the first time every fragment is
// held. Side puzzles drop their progress.
func (c *Controller) CompletePuzzle(ctx context.Context, final *fieldquest.PuzzleProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.active
	if a == nil {
		return ErrNoActivePuzzle
	}
	if final != nil {
		a.UpdateDraft(*final)
	}
	if !a.Ready() {
		return ErrNotReady
	}

	p := a.Puzzle()
	switch p.Kind {
	case fieldquest.KindSide:
		delete(c.snap.Progress, p.ID)
	default:
		c.syncProgress()
		if !c.snap.HasCompleted(p.ID) {
			c.snap.CompletedIDs = append(c.snap.CompletedIDs, p.ID)
			c.reward(p.XPReward, -progression.CompletionManaCost)
			c.collectFragment(p)
		}
	}

	c.publish(Event{Type: EventPuzzleCompleted, Data: map[string]string{"puzzleId": p.ID}})
	c.active = nil
	c.screen = ScreenHome
	c.persist(ctx)
	return nil
}

func (c *Controller) collectFragment(p fieldquest.Puzzle) {
	if !p.HasFragment() || c.snap.HasFragment(p.FragmentID) {
		return
	}
	c.snap.Fragments = append(c.snap.Fragments, p.FragmentID)
	total := c.catalog.FragmentTotal()
	c.publish(Event{Type: EventFragmentCollected, Data: map[string]int{"fragment": p.FragmentID, "collected": len(c.snap.Fragments), "total": total}})

	if len(c.snap.Fragments) >= total && c.snap.EndTime == nil {
		end := c.now().UTC().Truncate(time.Millisecond)
		c.snap.EndTime = &end
		c.logger.Info("mission complete", "team", c.snap.TeamName, "duration", clock.Duration(clock.Elapsed(*c.snap.StartTime, &end, end)))
		c.publish(Event{Type: EventMissionComplete, Data: map[string]string{"endTime": end.Format(savecodec.TimeFormat)}})
	}
}

// applyOutcome grants the field-solved bonus, plays the cue and persists.
// A rejected answer or photo stays in the attempt and is not saved.
// Callers hold the lock.
func (c *Controller) applyOutcome(ctx context.Context, out puzzle.Outcome) {
	if out.FieldSolved {
		c.recordFieldSolved(c.active.Puzzle())
	}
	if out.Cue != puzzle.CueNone {
		c.cue(out.Cue)
	}
	if !out.Correct && !out.FieldSolved {
		return
	}
	c.syncProgress()
	c.persist(ctx)
}

// recordFieldSolved grants the sub-part bonus. Side puzzles and main
// puzzles already completed get nothing.
func (c *Controller) recordFieldSolved(p fieldquest.Puzzle) {
	if p.Kind != fieldquest.KindMain || c.snap.HasCompleted(p.ID) {
		return
	}
	c.reward(progression.FieldSolvedXP, 0)
}

func (c *Controller) reward(xp, mana int) {
	before := c.snap.Stats.Level
	c.snap.Stats = progression.ApplyReward(c.snap.Stats, xp, mana)
	if c.snap.Stats.Level > before {
		c.publish(Event{Type: EventLevelUp, Data: map[string]any{"level": c.snap.Stats.Level, "rank": c.snap.Stats.Rank}})
	}
}

// syncProgress copies the active attempt's progress into the snapshot.
func (c *Controller) syncProgress() {
	if c.active == nil {
		return
	}
	p := c.active.Puzzle()
	if c.snap.Progress == nil {
		c.snap.Progress = make(map[string]fieldquest.PuzzleProgress)
	}
	c.snap.Progress[p.ID] = c.active.Progress()
}

func (c *Controller) persist(ctx context.Context) {
	if c.snap.StartTime == nil {
		return
	}
	if out := c.codec.Save(ctx, c.snap.Clone()); out != savecodec.Full {
		c.logger.Warn("mission saved without full payload", "outcome", out.String())
	}
}

// SetSoundEnabled toggles sound cues.
func (c *Controller) SetSoundEnabled(ctx context.Context, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.SoundEnabled = on
	c.persist(ctx)
}

// SetFogEnabled toggles the fog overlay. The fog latch is unaffected.
func (c *Controller) SetFogEnabled(ctx context.Context, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.FogEnabled = on
	c.persist(ctx)
}

// SetPanel records whether a UI panel is open.
func (c *Controller) SetPanel(ctx context.Context, name string, open bool) error {
	return c.SetPanels(ctx, map[string]bool{name: open})
}

// SetPanels applies every change or, when a name is unknown, none.
func (c *Controller) SetPanels(ctx context.Context, changes map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.Panels
	for name, open := range changes {
		field := panelField(&next, name)
		if field == nil {
			return fmt.Errorf("%w: %q", ErrUnknownPanel, name)
		}
		*field = open
	}
	c.snap.Panels = next
	c.persist(ctx)
	return nil
}

func panelField(p *fieldquest.Panels, name string) *bool {
	switch name {
	case "manual":
		return &p.Manual
	case "settings":
		return &p.Settings
	case "treasureMap":
		return &p.TreasureMap
	case "sideMissions":
		return &p.SideMissions
	case "encyclopedia":
		return &p.Encyclopedia
	case "profile":
		return &p.Profile
	}
	return nil
}

// TutorialPending reports whether the tutorial should be shown: only right
// after a new game on a device that has never seen it.
func (c *Controller) TutorialPending(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tutorialPending(ctx)
}

func (c *Controller) tutorialPending(ctx context.Context) bool {
	return c.freshStart && !c.codec.TutorialSeen(ctx)
}

func (c *Controller) MarkTutorialSeen(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codec.MarkTutorialSeen(ctx)
	c.freshStart = false
}

// Reset wipes the saved mission and tutorial flag and returns to intro.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.codec.Reset(ctx)
	c.snap = c.emptySnapshot()
	c.active = nil
	c.latch.Reset()
	c.freshStart = false
	c.screen = ScreenIntro
	c.logger.Info("mission reset")
}

// Clock derives the mission clock at now and folds it into the fog latch,
// publishing fog_active the first time fog turns on.
func (c *Controller) Clock(now time.Time) (clock.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observeClock(now)
}

func (c *Controller) observeClock(now time.Time) (clock.State, bool) {
	if c.snap.StartTime == nil {
		return clock.State{Duration: clock.Duration(0)}, false
	}
	st, flipped := c.latch.Observe(clock.Derive(*c.snap.StartTime, c.snap.EndTime, now))
	if flipped {
		c.publish(Event{Type: EventFogActive, Data: map[string]float64{"opacity": st.FogOpacity}})
	}
	return st, true
}

func (c *Controller) cue(cue puzzle.Cue) {
	if !c.snap.SoundEnabled {
		return
	}
	c.publish(Event{Type: EventCue, Data: map[string]string{"cue": string(cue)}})
}

func (c *Controller) publish(ev Event) {
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(c.device, ev)
}
