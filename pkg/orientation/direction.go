package orientation

import "math"

// Direction is the cardinal direction a token is travelling in.
// The zero value (None) means the move carries no orientation change.
type Direction string

const (
	None  Direction = ""
	North Direction = "N"
	East  Direction = "E"
	South Direction = "S"
	West  Direction = "W"
)

// Directions lists the four cardinal directions in display order.
var Directions = []Direction{North, East, South, West}

// IsHorizontal reports whether d lies on the east/west axis.
func (d Direction) IsHorizontal() bool {
	return d == East || d == West
}

// IsVertical reports whether d lies on the north/south axis.
func (d Direction) IsVertical() bool {
	return d == North || d == South
}

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	return d.IsHorizontal() || d.IsVertical()
}

func (d Direction) String() string {
	if d == None {
		return "none"
	}
	return string(d)
}

// ResolveDirection maps a movement delta to a cardinal direction.
// Screen coordinates are assumed: positive dy points south.
//
// The dominant axis wins. When both magnitudes are equal the vertical axis
// wins, so a perfect diagonal step always yields N or S.
func ResolveDirection(dx, dy float64) Direction {
	if dx == 0 && dy == 0 {
		return None
	}

	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return East
		}
		return West
	}

	switch {
	case dy > 0:
		return South
	case dy < 0:
		return North
	}
	return None
}

// Delta is the proposed positional change of a single movement step.
// A nil axis means the update did not carry that coordinate at all.
type Delta struct {
	DX *float64 `json:"dx,omitempty"`
	DY *float64 `json:"dy,omitempty"`
}

// DeltaBetween builds the delta for an update that moves a token currently at
// (x, y) to the optional target coordinates. Missing targets stay missing.
func DeltaBetween(x, y float64, toX, toY *float64) Delta {
	var d Delta
	if toX != nil {
		dx := *toX - x
		d.DX = &dx
	}
	if toY != nil {
		dy := *toY - y
		d.DY = &dy
	}
	return d
}

// Empty reports whether the delta carries neither coordinate.
func (d Delta) Empty() bool {
	return d.DX == nil && d.DY == nil
}

// Direction resolves the delta, treating a missing axis as no movement on it.
func (d Delta) Direction() Direction {
	var dx, dy float64
	if d.DX != nil {
		dx = *d.DX
	}
	if d.DY != nil {
		dy = *d.DY
	}
	return ResolveDirection(dx, dy)
}
