package actor

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

// Token is a placed representation of an actor on the grid.
// X and Y are in grid units; TextureSrc is the image the token shows.
type Token struct {
	ID             uuid.UUID            `json:"id"`
	ActorID        uuid.UUID            `json:"actor_id,omitempty"` // Zero when the token has no actor
	Name           string               `json:"name,omitempty"`
	X              float64              `json:"x"`
	Y              float64              `json:"y"`
	TextureSrc     orientation.ImageRef `json:"texture_src,omitempty"`
	MovementAction string               `json:"movement_action,omitempty"` // Empty means the configured default
	InCombat       bool                 `json:"in_combat"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// HasActor reports whether the token is linked to an actor.
func (t *Token) HasActor() bool {
	return t.ActorID != uuid.Nil
}

// TokenPatch is a partial token update. Nil fields are left unchanged.
type TokenPatch struct {
	X              *float64              `json:"x,omitempty"`
	Y              *float64              `json:"y,omitempty"`
	TextureSrc     *orientation.ImageRef `json:"texture_src,omitempty"`
	MovementAction *string               `json:"movement_action,omitempty"`
	InCombat       *bool                 `json:"in_combat,omitempty"`
}

// Moves reports whether the patch carries a coordinate.
func (p TokenPatch) Moves() bool {
	return p.X != nil || p.Y != nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TokenPatch) IsEmpty() bool {
	return !p.Moves() && p.TextureSrc == nil && p.MovementAction == nil && p.InCombat == nil
}

// Delta returns the movement the patch would apply to t.
func (p TokenPatch) Delta(t *Token) orientation.Delta {
	return orientation.DeltaBetween(t.X, t.Y, p.X, p.Y)
}

// Apply returns a copy of t with every non-nil patch field applied.
func (p TokenPatch) Apply(t Token) Token {
	if p.X != nil {
		t.X = *p.X
	}
	if p.Y != nil {
		t.Y = *p.Y
	}
	if p.TextureSrc != nil {
		t.TextureSrc = *p.TextureSrc
	}
	if p.MovementAction != nil {
		t.MovementAction = *p.MovementAction
	}
	if p.InCombat != nil {
		t.InCombat = *p.InCombat
	}
	return t
}

// Snapshot captures the state orientation conditions read for a token.
// a may be nil for tokens without an actor. defaultAction is used when the
// token has no movement action of its own.
func Snapshot(t *Token, a *Actor, defaultAction string) orientation.Snapshot {
	action := t.MovementAction
	if action == "" {
		action = defaultAction
	}
	return orientation.Snapshot{
		MovementAction: action,
		StatusTags:     a.StatusTags(),
		HP:             a.Health(),
		InCombat:       t.InCombat,
	}
}
