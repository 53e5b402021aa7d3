package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

// ErrNotFound is returned when an actor or token does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines a unified interface for all storage operations.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Actor operations. LoadActor returns the ActorSpec only; use
	// actor.NewActorFromSpec to build the runtime actor.
	SaveActor(ctx context.Context, spec *actor.ActorSpec) error
	LoadActor(ctx context.Context, id uuid.UUID) (*actor.ActorSpec, error)
	DeleteActor(ctx context.Context, id uuid.UUID) error

	// Token operations
	SaveToken(ctx context.Context, tok *actor.Token) error
	LoadToken(ctx context.Context, id uuid.UUID) (*actor.Token, error)
	DeleteToken(ctx context.Context, id uuid.UUID) error
	ListTokens(ctx context.Context) ([]uuid.UUID, error)

	// Orientation config per actor. Loading an actor that never saved one
	// returns orientation.NewConfig(). Saving replaces the whole value.
	LoadOrientationConfig(ctx context.Context, actorID uuid.UUID) (orientation.Config, error)
	SaveOrientationConfig(ctx context.Context, actorID uuid.UUID, cfg orientation.Config) error

	// World default images. Loading returns an empty map when unset.
	LoadWorldDefaults(ctx context.Context) (orientation.WorldDefaults, error)
	SaveWorldDefaults(ctx context.Context, w orientation.WorldDefaults) error
}
