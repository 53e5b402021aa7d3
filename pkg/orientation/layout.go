package orientation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLayout is returned when a direction layout name cannot be parsed.
var ErrUnknownLayout = errors.New("unknown direction layout")

// Layout is the shape of a rule's direction -> image mapping.
type Layout int

const (
	// Single uses one image for every direction (key "All").
	Single Layout = iota
	// Dual uses "X" for east/west and "Y" for north/south.
	Dual
	// Quad uses one image per cardinal direction.
	Quad
)

// LayoutKey names a slot in a rule's image map.
type LayoutKey string

const (
	KeyAll LayoutKey = "All"
	KeyX   LayoutKey = "X"
	KeyY   LayoutKey = "Y"
	KeyN   LayoutKey = "N"
	KeyE   LayoutKey = "E"
	KeyS   LayoutKey = "S"
	KeyW   LayoutKey = "W"
)

var layoutKeys = map[Layout][]LayoutKey{
	Single: {KeyAll},
	Dual:   {KeyX, KeyY},
	Quad:   {KeyN, KeyE, KeyS, KeyW},
}

// Keys returns the image keys a rule with this layout may define.
func (l Layout) Keys() []LayoutKey {
	return append([]LayoutKey(nil), layoutKeys[l]...)
}

// Allows reports whether k is a valid image key for the layout.
func (l Layout) Allows(k LayoutKey) bool {
	for _, key := range layoutKeys[l] {
		if key == k {
			return true
		}
	}
	return false
}

// Key returns the image key that serves direction d under this layout.
// It returns false for None or an unknown layout.
func (l Layout) Key(d Direction) (LayoutKey, bool) {
	if !d.Valid() {
		return "", false
	}
	switch l {
	case Single:
		return KeyAll, true
	case Dual:
		if d.IsHorizontal() {
			return KeyX, true
		}
		return KeyY, true
	case Quad:
		return LayoutKey(d), true
	}
	return "", false
}

func (l Layout) String() string {
	switch l {
	case Single:
		return "single"
	case Dual:
		return "dual"
	case Quad:
		return "quad"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

// ParseLayout accepts the canonical names plus the spellings older editor
// versions wrote ("x-y", "XY", "nesw", "NESW"). An empty name is Single.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single", "all":
		return Single, nil
	case "dual", "xy", "x-y", "x/y":
		return Dual, nil
	case "quad", "nesw", "n/e/s/w":
		return Quad, nil
	}
	return Single, fmt.Errorf("%w: %q", ErrUnknownLayout, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Layout) MarshalText() ([]byte, error) {
	if _, ok := layoutKeys[l]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLayout, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Layout) UnmarshalText(text []byte) error {
	parsed, err := ParseLayout(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
