package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

// MockStorage is an in-memory implementation of Storage for testing.
// Values are copied on the way in and out so callers cannot mutate state.
type MockStorage struct {
	mu        sync.RWMutex
	actors    map[uuid.UUID]actor.ActorSpec
	tokens    map[uuid.UUID]actor.Token
	configs   map[uuid.UUID]orientation.Config
	world     orientation.WorldDefaults
	pingError error
	saveError error

	tokenSaves int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		actors:  make(map[uuid.UUID]actor.ActorSpec),
		tokens:  make(map[uuid.UUID]actor.Token),
		configs: make(map[uuid.UUID]orientation.Config),
		world:   orientation.WorldDefaults{},
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes every subsequent Save* call fail with err. Pass nil to reset.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// TokenSaves returns how many times SaveToken succeeded.
func (m *MockStorage) TokenSaves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokenSaves
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveActor(ctx context.Context, spec *actor.ActorSpec) error {
	if spec == nil {
		return errors.New("actor cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.actors[spec.ID] = cloneActor(*spec)
	return nil
}

func (m *MockStorage) LoadActor(ctx context.Context, id uuid.UUID) (*actor.ActorSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.actors[id]
	if !ok {
		return nil, ErrNotFound
	}
	spec = cloneActor(spec)
	return &spec, nil
}

func cloneActor(spec actor.ActorSpec) actor.ActorSpec {
	spec.StatusEffects = slices.Clone(spec.StatusEffects)
	if spec.HP != nil {
		hp := *spec.HP
		spec.HP = &hp
	}
	return spec
}

func (m *MockStorage) DeleteActor(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actors, id)
	delete(m.configs, id)
	return nil
}

func (m *MockStorage) SaveToken(ctx context.Context, tok *actor.Token) error {
	if tok == nil {
		return errors.New("token cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.tokens[tok.ID] = *tok
	m.tokenSaves++
	return nil
}

func (m *MockStorage) LoadToken(ctx context.Context, id uuid.UUID) (*actor.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tok, nil
}

func (m *MockStorage) DeleteToken(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MockStorage) ListTokens(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := slices.Collect(maps.Keys(m.tokens))
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids, nil
}

func (m *MockStorage) LoadOrientationConfig(ctx context.Context, actorID uuid.UUID) (orientation.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[actorID]
	if !ok {
		return orientation.NewConfig(), nil
	}
	return cfg.Normalize(), nil
}

func (m *MockStorage) SaveOrientationConfig(ctx context.Context, actorID uuid.UUID, cfg orientation.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.configs[actorID] = cfg.Normalize()
	return nil
}

func (m *MockStorage) LoadWorldDefaults(ctx context.Context) (orientation.WorldDefaults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world.Normalize(), nil
}

func (m *MockStorage) SaveWorldDefaults(ctx context.Context, w orientation.WorldDefaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.world = w.Normalize()
	return nil
}
