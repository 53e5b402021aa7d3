package orientation

// Source identifies which tier supplied a resolved image.
type Source string

const (
	SourceNone     Source = "none"
	SourceRule     Source = "rule"
	SourceDefaults Source = "defaults"
	SourceWorld    Source = "world"
)

// DefaultsIndex is the index SelectRule reports when no listed rule matched.
const DefaultsIndex = -1

// SelectRule scans the rule list in order and returns the first rule whose
// conditions match, with its index. If none match it returns cfg.Defaults and
// DefaultsIndex. Rules are never reordered or scored.
func SelectRule(cfg Config, s Snapshot) (Rule, int) {
	for i, r := range cfg.Rules {
		if Matches(r.Conditions, s) {
			return r, i
		}
	}
	return cfg.Defaults, DefaultsIndex
}

// SelectImage resolves the image for direction d. The selected rule is
// consulted under its own layout first; if that slot is empty the defaults
// rule is consulted for the same direction under the defaults' layout.
func SelectImage(selected, defaults Rule, d Direction) (ImageRef, Source) {
	if !d.Valid() {
		return "", SourceNone
	}
	if img := selected.Image(d); img.IsSet() {
		return img, SourceRule
	}
	if img := defaults.Image(d); img.IsSet() {
		return img, SourceDefaults
	}
	return "", SourceNone
}
