package domain

import "fmt"

// SupportLevel is a tier in the escalation ladder.
type SupportLevel string

const (
	LevelL0 SupportLevel = "L0"
	LevelL1 SupportLevel = "L1"
	LevelL2 SupportLevel = "L2"
	LevelL3 SupportLevel = "L3"
	LevelL4 SupportLevel = "L4"
	LevelL5 SupportLevel = "L5"
)

var levelOrder = []SupportLevel{LevelL0, LevelL1, LevelL2, LevelL3, LevelL4, LevelL5}

// SupportLevels returns the ladder from lowest to highest tier.
func SupportLevels() []SupportLevel {
	out := make([]SupportLevel, len(levelOrder))
	copy(out, levelOrder)
	return out
}

// Rank returns the position of the level in the ladder, or -1 when unknown.
func (l SupportLevel) Rank() int {
	for i, candidate := range levelOrder {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Valid reports whether the level is part of the ladder.
func (l SupportLevel) Valid() bool {
	return l.Rank() >= 0
}

// Next returns the immediate successor tier; ok is false at the top of the ladder.
func (l SupportLevel) Next() (SupportLevel, bool) {
	rank := l.Rank()
	if rank < 0 || rank == len(levelOrder)-1 {
		return "", false
	}
	return levelOrder[rank+1], true
}

// ParseSupportLevel validates a level string.
func ParseSupportLevel(raw string) (SupportLevel, error) {
	level := SupportLevel(raw)
	if !level.Valid() {
		return "", fmt.Errorf("unknown support level %q", raw)
	}
	return level, nil
}
