// Package savecodec persists one device's mission snapshot and tutorial
// flag to a slot store. Saved data is wrapped in a versioned envelope and
// validated field by field on load; anything that does not check out is
// treated as "no saved game".
package savecodec

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/playperu/fieldquest/internal/fieldquest"
	"github.com/playperu/fieldquest/internal/progression"
	"github.com/playperu/fieldquest/internal/puzzle"
	"github.com/playperu/fieldquest/internal/slot"
)

// Version is the envelope format written by Save.
const Version = 1

// TimeFormat is the fixed layout of persisted mission timestamps.
const TimeFormat = "2006-01-02T15:04:05.000Z"

var (
	errVersion = errors.New("unknown save version")
	errDigest  = errors.New("save digest mismatch")
	errStart   = errors.New("missing or malformed start time")
)

// Outcome reports how far a Save got.
type Outcome int

const (
	Full Outcome = iota
	Degraded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Full:
		return "full"
	case Degraded:
		return "degraded"
	default:
		return "failed"
	}
}

type envelope struct {
	Version int             `json:"version"`
	Digest  string          `json:"digest"`
	Payload json.RawMessage `json:"payload"`
}

// snapshotDoc is the persisted shape. Every field is optional on read.
type snapshotDoc struct {
	MissionID    string                               `json:"missionId,omitempty"`
	Stats        *fieldquest.PlayerStats              `json:"playerStats"`
	TeamName     string                               `json:"teamName"`
	Fragments    []int                                `json:"collectedFragments"`
	CompletedIDs []string                             `json:"completedPuzzleIds"`
	StartTime    *string                              `json:"startTime"`
	EndTime      *string                              `json:"endTime"`
	Progress     map[string]fieldquest.PuzzleProgress `json:"puzzleProgress"`
	SoundEnabled *bool                                `json:"isSoundEnabled"`
	FogEnabled   *bool                                `json:"isFogEnabled"`
	Panels       *fieldquest.Panels                   `json:"panels"`
}

// Codec reads and writes the save slot of a single device.
type Codec struct {
	store       slot.Store
	logger      *slog.Logger
	saveKey     string
	tutorialKey string
	catalog     *fieldquest.Catalog
}

// New returns the codec of one device. Loaded snapshots are checked
// against catalog.
func New(store slot.Store, device string, catalog *fieldquest.Catalog, logger *slog.Logger) *Codec {
	return &Codec{
		store:       store,
		logger:      logger.With("device", device),
		saveKey:     device + "/save",
		tutorialKey: device + "/tutorial",
		catalog:     catalog,
	}
}

// Save writes snap in full. If that fails it retries without photo payloads;
// if the reduced write fails too the error is logged and dropped.
func (c *Codec) Save(ctx context.Context, snap fieldquest.Snapshot) Outcome {
	err := c.write(ctx, snap)
	if err == nil {
		return Full
	}
	c.logger.Warn("full save failed, retrying without photos", "error", err)

	reduced := snap
	reduced.Progress = make(map[string]fieldquest.PuzzleProgress, len(snap.Progress))
	for id, p := range snap.Progress {
		reduced.Progress[id] = p.WithoutPhotos()
	}
	if err := c.write(ctx, reduced); err != nil {
		c.logger.Error("degraded save failed", "error", err)
		return Failed
	}
	return Degraded
}

func (c *Codec) write(ctx context.Context, snap fieldquest.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, c.saveKey, data)
}

// Load returns the saved snapshot, or false when there is none or it cannot
// be trusted.
func (c *Codec) Load(ctx context.Context) (fieldquest.Snapshot, bool) {
	data, err := c.store.Get(ctx, c.saveKey)
	if err != nil {
		if !errors.Is(err, slot.ErrNotFound) {
			c.logger.Error("reading save slot", "error", err)
		}
		return fieldquest.Snapshot{}, false
	}
	snap, err := Decode(data, c.catalog)
	if err != nil {
		c.logger.Warn("discarding saved game", "error", err)
		return fieldquest.Snapshot{}, false
	}
	return snap, true
}

// TutorialSeen reports whether the tutorial flag is set. Read errors count
// as not seen.
func (c *Codec) TutorialSeen(ctx context.Context) bool {
	data, err := c.store.Get(ctx, c.tutorialKey)
	if err != nil {
		if !errors.Is(err, slot.ErrNotFound) {
			c.logger.Error("reading tutorial flag", "error", err)
		}
		return false
	}
	return string(data) == "true"
}

func (c *Codec) MarkTutorialSeen(ctx context.Context) {
	if err := c.store.Put(ctx, c.tutorialKey, []byte("true")); err != nil {
		c.logger.Error("writing tutorial flag", "error", err)
	}
}

// ClearSave removes the snapshot but keeps the tutorial flag.
func (c *Codec) ClearSave(ctx context.Context) {
	if err := c.store.Delete(ctx, c.saveKey); err != nil {
		c.logger.Error("clearing save slot", "error", err)
	}
}

// Reset removes both the snapshot and the tutorial flag.
func (c *Codec) Reset(ctx context.Context) {
	c.ClearSave(ctx)
	if err := c.store.Delete(ctx, c.tutorialKey); err != nil {
		c.logger.Error("clearing tutorial flag", "error", err)
	}
}

// Encode serializes snap into a versioned envelope.
func Encode(snap fieldquest.Snapshot) ([]byte, error) {
	stats := snap.Stats
	doc := snapshotDoc{
		MissionID:    snap.MissionID,
		Stats:        &stats,
		TeamName:     snap.TeamName,
		Fragments:    snap.Fragments,
		CompletedIDs: snap.CompletedIDs,
		StartTime:    formatTime(snap.StartTime),
		EndTime:      formatTime(snap.EndTime),
		Progress:     snap.Progress,
		SoundEnabled: &snap.SoundEnabled,
		FogEnabled:   &snap.FogEnabled,
		Panels:       &snap.Panels,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return json.Marshal(envelope{
		Version: Version,
		Digest:  digest(payload),
		Payload: payload,
	})
}

// Decode parses an envelope written by Encode and applies the defaulting
// rules for absent or out-of-range fields. References to puzzles and
// fragments that cat does not know are dropped.
func Decode(data []byte, cat *fieldquest.Catalog) (fieldquest.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fieldquest.Snapshot{}, fmt.Errorf("parsing envelope: %w", err)
	}
	if env.Version != Version {
		return fieldquest.Snapshot{}, fmt.Errorf("%w: %d", errVersion, env.Version)
	}
	if env.Digest != digest(env.Payload) {
		return fieldquest.Snapshot{}, errDigest
	}

	var doc snapshotDoc
	if err := json.Unmarshal(env.Payload, &doc); err != nil {
		return fieldquest.Snapshot{}, fmt.Errorf("parsing payload: %w", err)
	}

	start, ok := parseTime(doc.StartTime)
	if !ok {
		return fieldquest.Snapshot{}, errStart
	}
	total := cat.FragmentTotal()
	snap := fieldquest.Snapshot{
		MissionID:    doc.MissionID,
		TeamName:     doc.TeamName,
		StartTime:    start,
		Fragments:    validFragments(doc.Fragments, total),
		CompletedIDs: completedMain(doc.CompletedIDs, cat),
		Progress:     validProgress(doc.Progress, cat),
		SoundEnabled: true,
		FogEnabled:   true,
	}
	// The mission only ends once every fragment is held.
	if end, ok := parseTime(doc.EndTime); ok && len(snap.Fragments) == total {
		snap.EndTime = end
	}
	if doc.Stats != nil {
		snap.Stats = progression.Normalize(*doc.Stats)
	} else {
		snap.Stats = progression.InitialStats()
	}
	if doc.SoundEnabled != nil {
		snap.SoundEnabled = *doc.SoundEnabled
	}
	if doc.FogEnabled != nil {
		snap.FogEnabled = *doc.FogEnabled
	}
	if doc.Panels != nil {
		snap.Panels = *doc.Panels
	}
	return snap, nil
}

func digest(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(TimeFormat)
	return &s
}

func parseTime(s *string) (*time.Time, bool) {
	if s == nil {
		return nil, false
	}
	t, err := time.Parse(TimeFormat, *s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func validFragments(in []int, total int) []int {
	out := make([]int, 0, len(in))
	for _, f := range in {
		if f < 0 || f >= total || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func completedMain(in []string, cat *fieldquest.Catalog) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		p, ok := cat.Puzzle(id)
		if !ok || p.Kind != fieldquest.KindMain || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// validProgress keeps entries of known puzzles only. Side histories are
// cut at the cap and a compound quiz counts as solved only with both
// parts.
func validProgress(in map[string]fieldquest.PuzzleProgress, cat *fieldquest.Catalog) map[string]fieldquest.PuzzleProgress {
	out := make(map[string]fieldquest.PuzzleProgress, len(in))
	for id, p := range in {
		pz, ok := cat.Puzzle(id)
		if !ok {
			continue
		}
		if len(p.SideEntries) > puzzle.SideCap {
			p.SideEntries = p.SideEntries[:puzzle.SideCap]
		}
		if pz.Quiz != nil && pz.Quiz.Shape == fieldquest.ShapeCompound {
			p.QuizSolved = p.Part1Solved && p.Part2Solved
		}
		out[id] = p
	}
	return out
}
