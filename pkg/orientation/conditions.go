package orientation

import (
	"golang.org/x/text/cases"
)

// HP is a current/maximum health pair.
type HP struct {
	Value float64 `json:"value"`
	Max   float64 `json:"max"`
}

// Percent returns value/max*100. It reports false when max is not positive,
// since no meaningful ratio exists.
func (h HP) Percent() (float64, bool) {
	if h.Max <= 0 {
		return 0, false
	}
	return h.Value / h.Max * 100, true
}

// Snapshot is the entity state rules are evaluated against.
type Snapshot struct {
	MovementAction string   `json:"movement_action"`
	StatusTags     []string `json:"status_tags,omitempty"`
	HP             *HP      `json:"hp,omitempty"` // nil when the actor has no health data
	InCombat       bool     `json:"in_combat"`
}

// SameTag reports whether two status tags are equal under Unicode case
// folding, so "Straße" and "STRASSE" name the same tag.
func SameTag(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// HasStatus reports whether tag is among the snapshot's status tags,
// ignoring case.
func (s Snapshot) HasStatus(tag string) bool {
	fold := cases.Fold()
	want := fold.String(tag)
	for _, t := range s.StatusTags {
		if fold.String(t) == want {
			return true
		}
	}
	return false
}

// Matches reports whether every specified condition holds for s.
//
// An hp_below_percent condition cannot be falsified without health data, so
// it passes when the snapshot has no usable HP.
func Matches(c Conditions, s Snapshot) bool {
	if c.MovementAction != nil && *c.MovementAction != s.MovementAction {
		return false
	}

	if c.StatusTag != nil && !s.HasStatus(*c.StatusTag) {
		return false
	}

	if c.HPBelowPercent != nil && s.HP != nil {
		if pct, ok := s.HP.Percent(); ok && !(pct < *c.HPBelowPercent) {
			return false
		}
	}

	if c.InCombat != nil && *c.InCombat != s.InCombat {
		return false
	}

	return true
}
