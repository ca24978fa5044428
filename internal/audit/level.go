// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

// Level indicates how much attention an audit event deserves.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var levelRank = map[Level]int{
	LevelLow:      0,
	LevelMedium:   1,
	LevelHigh:     2,
	LevelCritical: 3,
}

// Rank returns the ordinal of the level, or -1 when the level is unknown.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// AtLeast reports whether l is as severe as min.
func (l Level) AtLeast(min Level) bool {
	return l.Rank() >= min.Rank()
}

// Levels returns every level ordered from least to most severe.
func Levels() []Level {
	return []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}
}

var (
	criticalOnFailure = map[Action]bool{
		ActionLogin:            true,
		ActionLoginFailed:      true,
		ActionPermissionDenied: true,
		ActionAccessDenied:     true,
	}
	highActions = map[Action]bool{
		ActionDelete:            true,
		ActionAccountLocked:     true,
		ActionPasswordChange:    true,
		ActionPermissionGranted: true,
	}
	mediumActions = map[Action]bool{
		ActionCreate:       true,
		ActionUpdate:       true,
		ActionConfigChange: true,
		ActionSystemStart:  true,
		ActionSystemStop:   true,
	}
)

// ResolveLevel derives a level for an event that has none. Rules are
// evaluated in order and the first match wins.
func ResolveLevel(action Action, success bool) Level {
	switch {
	case !success && criticalOnFailure[action]:
		return LevelCritical
	case highActions[action]:
		return LevelHigh
	case mediumActions[action]:
		return LevelMedium
	default:
		return LevelLow
	}
}
