package orientation

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// WorldDefaultAction is the movement action whose world images apply when a
// token's own action has no entry.
const WorldDefaultAction = "default"

// WorldDefaults are world-level images keyed by movement action, then by
// direction. They are the coarsest fallback tier and are consulted only after
// an actor's own rules and defaults yield no image. Lookups use the same keys
// as a Quad-layout rule.
type WorldDefaults map[string]map[Direction]ImageRef

// Lookup returns the image for action and direction, falling back to the
// "default" action. It returns "" when neither is set.
func (w WorldDefaults) Lookup(action string, d Direction) ImageRef {
	if !d.Valid() {
		return ""
	}
	if img := w[action][d]; img.IsSet() {
		return img
	}
	return w[WorldDefaultAction][d]
}

// Normalize returns a copy without empty images or non-cardinal keys.
func (w WorldDefaults) Normalize() WorldDefaults {
	out := make(WorldDefaults, len(w))
	for action, images := range w {
		if action == "" {
			continue
		}
		clean := make(map[Direction]ImageRef, len(images))
		for d, img := range images {
			if d.Valid() && img.IsSet() {
				clean[d] = img
			}
		}
		if len(clean) > 0 {
			out[action] = clean
		}
	}
	return out
}

// Validate rejects empty action names and direction keys other than N, E, S
// and W.
func (w WorldDefaults) Validate() error {
	var errs []error
	for _, action := range slices.Sorted(maps.Keys(w)) {
		if action == "" {
			errs = append(errs, errors.New("movement action must not be empty"))
		}
		for _, d := range slices.Sorted(maps.Keys(w[action])) {
			if !d.Valid() {
				errs = append(errs, fmt.Errorf("%s: unknown direction %q", action, string(d)))
			}
		}
	}
	return errors.Join(errs...)
}
