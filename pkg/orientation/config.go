package orientation

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

// DefaultRuleName is the name given to a config's fallback rule.
const DefaultRuleName = "default"

// KnownMovementActions are the movement modes the editor offers.
// Other values are accepted; they simply never match unless a token uses them.
var KnownMovementActions = []string{"walk", "fly", "climb", "swim", "burrow"}

// ImageRef is an opaque image reference (URL or asset path).
// The empty string means "unset".
type ImageRef string

// IsSet reports whether the reference points at an image.
func (r ImageRef) IsSet() bool {
	return r != ""
}

// Conditions restrict when a rule applies. A nil field is always satisfied.
type Conditions struct {
	MovementAction *string  `json:"movement_action,omitempty" yaml:"movement_action,omitempty"`   // Exact match against the token's movement mode
	StatusTag      *string  `json:"status_tag,omitempty" yaml:"status_tag,omitempty"`             // Case-insensitive membership in active status tags
	HPBelowPercent *float64 `json:"hp_below_percent,omitempty" yaml:"hp_below_percent,omitempty"` // Current/max HP * 100 strictly below this value
	InCombat       *bool    `json:"in_combat,omitempty" yaml:"in_combat,omitempty"`               // Exact match against encounter membership
}

// IsEmpty reports whether no condition is specified.
func (c Conditions) IsEmpty() bool {
	return c.MovementAction == nil && c.StatusTag == nil && c.HPBelowPercent == nil && c.InCombat == nil
}

// Rule is a named, conditionally applicable image mapping.
type Rule struct {
	Name       string                 `json:"name" yaml:"name"`
	Conditions Conditions             `json:"conditions" yaml:"conditions"`
	Layout     Layout                 `json:"direction_layout" yaml:"direction_layout"`
	Images     map[LayoutKey]ImageRef `json:"images,omitempty" yaml:"images,omitempty"`
}

// Image returns the rule's image for direction d under its own layout.
func (r Rule) Image(d Direction) ImageRef {
	key, ok := r.Layout.Key(d)
	if !ok {
		return ""
	}
	return r.Images[key]
}

func (r Rule) normalize() Rule {
	out := Rule{
		Name:       r.Name,
		Conditions: r.Conditions.normalize(),
		Layout:     r.Layout,
		Images:     make(map[LayoutKey]ImageRef, len(r.Images)),
	}
	if _, ok := layoutKeys[out.Layout]; !ok {
		out.Layout = Single
	}
	for key, img := range r.Images {
		if img.IsSet() && out.Layout.Allows(key) {
			out.Images[key] = img
		}
	}
	return out
}

func (c Conditions) normalize() Conditions {
	out := c
	if out.MovementAction != nil && *out.MovementAction == "" {
		out.MovementAction = nil
	}
	if out.StatusTag != nil && *out.StatusTag == "" {
		out.StatusTag = nil
	}
	return out
}

// Config is an actor's orientation configuration: an ordered rule list plus
// a fallback rule that is conceptually evaluated last and cannot be removed.
type Config struct {
	Rules    []Rule `json:"rules" yaml:"rules"`
	Defaults Rule   `json:"defaults" yaml:"defaults"`
}

// NewConfig returns the configuration used for actors that never saved one.
func NewConfig() Config {
	return Config{
		Rules:    []Rule{},
		Defaults: Rule{Name: DefaultRuleName, Layout: Single, Images: map[LayoutKey]ImageRef{}},
	}
}

// Normalize returns a copy that satisfies the config invariants: Rules is
// non-nil, every rule only carries image keys its layout allows, empty
// condition strings are treated as absent and the defaults rule has no
// conditions. The receiver is not modified.
func (c Config) Normalize() Config {
	out := Config{
		Rules:    make([]Rule, 0, len(c.Rules)),
		Defaults: c.Defaults.normalize(),
	}
	out.Defaults.Conditions = Conditions{}
	if out.Defaults.Name == "" {
		out.Defaults.Name = DefaultRuleName
	}
	for i, r := range c.Rules {
		n := r.normalize()
		if n.Name == "" {
			n.Name = fmt.Sprintf("rule %d", i+1)
		}
		out.Rules = append(out.Rules, n)
	}
	return out
}

// Validate reports every structural problem in the config as a joined error.
// Configs that fail validation still resolve after Normalize; Validate is for
// the editor boundary, where bad input should be rejected instead of coerced.
func (c Config) Validate() error {
	var errs []error
	for i, r := range c.Rules {
		errs = append(errs, r.validate(fmt.Sprintf("rules[%d]", i))...)
	}
	errs = append(errs, c.Defaults.validate("defaults")...)
	if !c.Defaults.Conditions.IsEmpty() {
		errs = append(errs, errors.New("defaults: conditions are not allowed on the default rule"))
	}
	return errors.Join(errs...)
}

func (r Rule) validate(path string) []error {
	var errs []error
	if _, ok := layoutKeys[r.Layout]; !ok {
		errs = append(errs, fmt.Errorf("%s: %w: %d", path, ErrUnknownLayout, int(r.Layout)))
		return errs
	}

	keys := slices.Sorted(maps.Keys(r.Images))
	for _, key := range keys {
		if !r.Layout.Allows(key) {
			errs = append(errs, fmt.Errorf("%s: image key %q is not valid for layout %s (valid: %v)",
				path, key, r.Layout, r.Layout.Keys()))
		}
	}

	if p := r.Conditions.HPBelowPercent; p != nil {
		if math.IsNaN(*p) || *p < 0 || *p > 100 {
			errs = append(errs, fmt.Errorf("%s: hp_below_percent must be between 0 and 100, got %v", path, *p))
		}
	}
	return errs
}

// UnknownMovementActions returns the movement actions referenced by rules
// that are not in KnownMovementActions. These are warnings, not errors.
func (c Config) UnknownMovementActions() []string {
	var unknown []string
	for _, r := range c.Rules {
		a := r.Conditions.MovementAction
		if a == nil || *a == "" || *a == WorldDefaultAction {
			continue
		}
		if !slices.Contains(KnownMovementActions, *a) && !slices.Contains(unknown, *a) {
			unknown = append(unknown, *a)
		}
	}
	return unknown
}

// AddRule returns a copy of the config with r appended to the rule list.
func (c Config) AddRule(r Rule) Config {
	out := c.clone()
	out.Rules = append(out.Rules, r)
	return out
}

// RemoveRule returns a copy of the config without the rule at index i.
// The defaults rule is not part of the list and can never be removed.
func (c Config) RemoveRule(i int) (Config, error) {
	if i < 0 || i >= len(c.Rules) {
		return c, fmt.Errorf("rule index %d out of range [0,%d)", i, len(c.Rules))
	}
	out := c.clone()
	out.Rules = slices.Delete(out.Rules, i, i+1)
	return out, nil
}

func (c Config) clone() Config {
	out := Config{Defaults: c.Defaults, Rules: slices.Clone(c.Rules)}
	if out.Rules == nil {
		out.Rules = []Rule{}
	}
	return out
}
