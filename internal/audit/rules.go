// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

// matcher is a FilterRule compiled into set lookups.
type matcher struct {
	actions   map[string]struct{}
	resources map[string]struct{}
	actors    map[string]struct{}
}

func compileRule(r FilterRule) *matcher {
	if r.IsEmpty() {
		return nil
	}
	return &matcher{
		actions:   toSet(r.Actions),
		resources: toSet(r.Resources),
		actors:    toSet(r.Actors),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (m *matcher) matches(e *Event) bool {
	if _, ok := m.actions[string(e.Action)]; ok {
		return true
	}
	if _, ok := m.resources[e.Resource]; ok {
		return true
	}
	if e.ActorID != "" {
		if _, ok := m.actors[e.ActorID]; ok {
			return true
		}
	}
	return false
}

// admission decides whether a validated, level-resolved event is kept.
type admission struct {
	minLevel Level
	include  *matcher
	exclude  *matcher
}

func newAdmission(cfg Config) admission {
	minLevel := cfg.Level
	if minLevel == "" {
		minLevel = LevelLow
	}
	return admission{
		minLevel: minLevel,
		include:  compileRule(cfg.Filters.Include),
		exclude:  compileRule(cfg.Filters.Exclude),
	}
}

// shouldLog admits an event when its level reaches the minimum, no exclude
// rule matches, and, if include rules exist, at least one of them matches.
func (a admission) shouldLog(e *Event) bool {
	if !e.Level.AtLeast(a.minLevel) {
		return false
	}
	if a.exclude != nil && a.exclude.matches(e) {
		return false
	}
	if a.include != nil && !a.include.matches(e) {
		return false
	}
	return true
}
