package actor

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/d20"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

// ActorSpec is the serializable form of an actor that tokens
// represent. It holds the state orientation rules can condition on.
type ActorSpec struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name,omitempty"`
	HP            *int      `json:"hp,omitempty"`             // Current HP; nil means full health
	MaxHP         int       `json:"max_hp,omitempty"`         // Maximum HP; zero means the actor does not track health
	AC            int       `json:"ac,omitempty"`             // Armor class
	StatusEffects []string  `json:"status_effects,omitempty"` // Active status tags, e.g. "prone", "invisible"
}

// Actor is the runtime representation of an actor.
type Actor struct {
	Spec  *ActorSpec
	Actor *d20.Actor // Built at runtime from ActorSpec; nil when MaxHP is zero
}

// NewActorFromSpec creates an Actor from an ActorSpec and builds its
// d20.Actor when the ActorSpec tracks health.
func NewActorFromSpec(spec *ActorSpec) (*Actor, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}

	a := &Actor{Spec: spec}
	if spec.MaxHP <= 0 {
		return a, nil
	}

	actor, err := d20.NewActor(spec.ID.String()).
		WithHP(spec.MaxHP).
		WithAC(spec.AC).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	if spec.HP != nil {
		if err := actor.SetHP(*spec.HP); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}

	a.Actor = actor
	return a, nil
}

// Health returns the actor's current and maximum HP, or nil when the actor
// does not track health.
func (a *Actor) Health() *orientation.HP {
	if a == nil || a.Actor == nil {
		return nil
	}
	return &orientation.HP{
		Value: float64(a.Actor.HP()),
		Max:   float64(a.Actor.MaxHP()),
	}
}

// StatusTags returns a copy of the actor's active status tags.
func (a *Actor) StatusTags() []string {
	if a == nil || a.Spec == nil {
		return nil
	}
	return slices.Clone(a.Spec.StatusEffects)
}

// SetHP updates current HP on both the runtime actor and its ActorSpec.
func (a *Actor) SetHP(hp int) error {
	if a.Actor == nil {
		return fmt.Errorf("actor %s does not track HP", a.Spec.ID)
	}
	if err := a.Actor.SetHP(hp); err != nil {
		return fmt.Errorf("failed to set HP: %w", err)
	}
	current := a.Actor.HP()
	a.Spec.HP = &current
	return nil
}

// AddStatus adds a status tag unless an equal tag (ignoring case) is active.
func (a *Actor) AddStatus(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	for _, s := range a.Spec.StatusEffects {
		if orientation.SameTag(s, tag) {
			return
		}
	}
	a.Spec.StatusEffects = append(a.Spec.StatusEffects, tag)
}

// RemoveStatus removes every status tag equal to tag, ignoring case.
func (a *Actor) RemoveStatus(tag string) {
	a.Spec.StatusEffects = slices.DeleteFunc(a.Spec.StatusEffects, func(s string) bool {
		return orientation.SameTag(s, tag)
	})
}

// MarshalJSON converts the Actor back to ActorSpec format for API responses,
// reading current HP from the runtime actor.
func (a *Actor) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	spec := *a.Spec
	if a.Actor != nil {
		current := a.Actor.HP()
		spec.HP = &current
		spec.MaxHP = a.Actor.MaxHP()
		spec.AC = a.Actor.AC()
	}
	return json.Marshal(spec)
}

// UnmarshalJSON reconstructs an Actor from JSON and rebuilds its d20.Actor.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var spec ActorSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("failed to unmarshal actor spec: %w", err)
	}
	built, err := NewActorFromSpec(&spec)
	if err != nil {
		return fmt.Errorf("failed to rebuild actor: %w", err)
	}
	*a = *built
	return nil
}
