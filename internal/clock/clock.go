// Package clock derives mission-time effects (duration string, fog) from
// the mission's start and end timestamps. Everything is a function of
// elapsed seconds, never of how often it is evaluated.
package clock

import (
	"fmt"
	"time"
)

const (
	// FogDelaySeconds is when fog starts to roll in.
	FogDelaySeconds = 60
	// FogRampSeconds is how long fog takes to reach FogMaxOpacity.
	FogRampSeconds = 20
	FogMaxOpacity  = 0.9
)

// State is the derived clock view at one instant.
type State struct {
	ElapsedSeconds int64   `json:"elapsedSeconds"`
	Duration       string  `json:"duration"`
	FogOpacity     float64 `json:"fogOpacity"`
	FogActive      bool    `json:"fogActive"`
	Ended          bool    `json:"ended"`
}

// Elapsed returns whole seconds from start to the reference instant: end
// when set, now otherwise. Negative spans floor toward minus infinity.
func Elapsed(start time.Time, end *time.Time, now time.Time) int64 {
	ref := now
	if end != nil {
		ref = *end
	}
	ms := ref.Sub(start).Milliseconds()
	sec := ms / 1000
	if ms < 0 && ms%1000 != 0 {
		sec--
	}
	return sec
}

// Duration formats seconds as HH:MM:SS, clamping negative values to zero.
func Duration(seconds int64) string {
	if seconds < 0 {
		return "00:00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FogOpacity ramps linearly from 0 at FogDelaySeconds to FogMaxOpacity
// FogRampSeconds later.
func FogOpacity(seconds int64) float64 {
	if seconds < FogDelaySeconds {
		return 0
	}
	progress := float64(seconds-FogDelaySeconds) / FogRampSeconds
	return min(max(progress, 0), 1) * FogMaxOpacity
}

func FogActive(seconds int64) bool { return seconds >= FogDelaySeconds }

// Derive computes the clock state. FogActive here is the raw threshold test;
// use a Latch to make it one-way across a session.
func Derive(start time.Time, end *time.Time, now time.Time) State {
	sec := Elapsed(start, end, now)
	return State{
		ElapsedSeconds: sec,
		Duration:       Duration(sec),
		FogOpacity:     FogOpacity(sec),
		FogActive:      FogActive(sec),
		Ended:          end != nil,
	}
}

// Latch remembers that fog became active. Once set it stays set until
// Reset, even if later observations report a smaller elapsed value.
type Latch struct {
	active bool
}

// Observe folds a clock state into the latch and reports whether this
// call flipped it on.
func (l *Latch) Observe(s State) (State, bool) {
	flipped := false
	if s.FogActive && !l.active {
		l.active = true
		flipped = true
	}
	s.FogActive = l.active
	return s, flipped
}

func (l *Latch) Active() bool { return l.active }

func (l *Latch) Reset() { l.active = false }
