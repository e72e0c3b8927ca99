// Package progression computes levels and ranks from experience and applies
// reward deltas to player stats. All functions are pure.
package progression

import "github.com/playperu/fieldquest/internal/fieldquest"

const (
	// LevelThreshold is the XP span of one level.
	LevelThreshold = 500

	// FieldSolvedXP is granted when a sub-part or single-answer quiz of a
	// main puzzle is verified.
	FieldSolvedXP = 100

	// CompletionManaCost is deducted once per completed main puzzle.
	CompletionManaCost = 15

	InitialMana = 75
	MaxMana     = 100
	InitialSOS  = 1
)

var rankTitles = [...]string{
	"Junior Geologist",
	"Terrain Clue Investigator",
	"Geological Phenomena Surveyor",
	"Guardian of Yongchun",
}

// RankForLevel maps a level onto the fixed rank table. Levels at or below 1
// get the first title; 4 and above get the capstone.
func RankForLevel(level int) string {
	switch {
	case level <= 1:
		return rankTitles[0]
	case level == 2:
		return rankTitles[1]
	case level == 3:
		return rankTitles[2]
	default:
		return rankTitles[3]
	}
}

// LevelForXP is floor(xp / LevelThreshold) + 1.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/LevelThreshold + 1
}

// InitialStats are the stats of a freshly started mission.
func InitialStats() fieldquest.PlayerStats {
	return derive(fieldquest.PlayerStats{
		CurrentXP: 0,
		Mana:      InitialMana,
		MaxMana:   MaxMana,
		SOSCount:  InitialSOS,
	})
}

// ApplyReward adds xpDelta to the stats, recomputes level and rank, and
// moves mana by manaDelta clamped to [0, MaxMana]. Callers own the
// at-most-once guarantee per qualifying event.
func ApplyReward(s fieldquest.PlayerStats, xpDelta, manaDelta int) fieldquest.PlayerStats {
	s.CurrentXP += xpDelta
	if s.CurrentXP < 0 {
		s.CurrentXP = 0
	}
	s.Mana = clamp(s.Mana+manaDelta, 0, maxMana(s))
	return derive(s)
}

// Normalize repairs derived fields and bounds on stats read from an
// untrusted source.
func Normalize(s fieldquest.PlayerStats) fieldquest.PlayerStats {
	if s.CurrentXP < 0 {
		s.CurrentXP = 0
	}
	if s.MaxMana <= 0 {
		s.MaxMana = MaxMana
	}
	s.Mana = clamp(s.Mana, 0, s.MaxMana)
	if s.SOSCount < 0 {
		s.SOSCount = 0
	}
	return derive(s)
}

// BarPercent is the progress through the current level, in [0, 100).
func BarPercent(s fieldquest.PlayerStats) float64 {
	return float64(s.CurrentXP%LevelThreshold) / LevelThreshold * 100
}

func derive(s fieldquest.PlayerStats) fieldquest.PlayerStats {
	s.Level = LevelForXP(s.CurrentXP)
	s.NextLevelXP = s.Level * LevelThreshold
	s.Rank = RankForLevel(s.Level)
	return s
}

func maxMana(s fieldquest.PlayerStats) int {
	if s.MaxMana <= 0 {
		return MaxMana
	}
	return s.MaxMana
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
