// Package tokens applies token updates and runs orientation as the update's
// pre-write hook.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/storage"
)

var (
	// ErrTokenNotFound is returned when the token does not exist.
	ErrTokenNotFound = errors.New("token not found")
	// ErrModuleDisabled is returned by operations that only make sense while
	// orientation is enabled.
	ErrModuleDisabled = errors.New("token orientation is disabled")
	// ErrTokenBusy is returned when another process holds the token.
	ErrTokenBusy = errors.New("token is busy")
)

// Publisher receives token events. events.Broadcaster implements it.
type Publisher interface {
	PublishTokenMoved(ctx context.Context, tokenID uuid.UUID, x, y float64, direction orientation.Direction) error
	PublishTextureUpdated(ctx context.Context, tokenID uuid.UUID, res orientation.Result) error
}

// Locker excludes other processes from a token while an update runs.
// queue.TokenLocks implements it.
type Locker interface {
	Lock(ctx context.Context, tokenID uuid.UUID) (release func() error, err error)
}

// Options configures a Service.
type Options struct {
	Enabled               bool
	DefaultMovementAction string
	// Locker is shared with the move workers. Without it updates are only
	// serialized within this process.
	Locker Locker
}

// UpdateOptions travel with a single update.
type UpdateOptions struct {
	// Suppress is set on updates issued by an orientation write.
	Suppress *orientation.WriteToken
}

// UpdateResult is the outcome of an update.
type UpdateResult struct {
	Token       *actor.Token        `json:"token"`
	Orientation *orientation.Result `json:"orientation,omitempty"`
	// OrientationError reports a failed image write. The move itself still applied.
	OrientationError string `json:"orientation_error,omitempty"`
}

// Service applies token updates. Updates to one token are serialized.
type Service struct {
	store     storage.Storage
	publisher Publisher
	engine    *orientation.Engine
	logger    *slog.Logger
	opts      Options

	mu    sync.Mutex
	locks map[uuid.UUID]*tokenMutex // Entries live while an update holds or waits on them
}

type tokenMutex struct {
	sync.Mutex
	refs int
}

// NewService creates a token service. publisher may be nil.
func NewService(store storage.Storage, publisher Publisher, logger *slog.Logger, opts Options, engineOpts ...orientation.Option) *Service {
	if opts.DefaultMovementAction == "" {
		opts.DefaultMovementAction = "walk"
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		locks:     make(map[uuid.UUID]*tokenMutex),
	}
	engineOpts = append([]orientation.Option{orientation.WithLogger(logger)}, engineOpts...)
	s.engine = orientation.NewEngine(s, engineOpts...)
	return s
}

// Enabled reports whether moves change token images.
func (s *Service) Enabled() bool {
	return s.opts.Enabled
}

// DefaultMovementAction is the action used for tokens without one.
func (s *Service) DefaultMovementAction() string {
	return s.opts.DefaultMovementAction
}

type heldLockKey struct{}

// WithHeldLock marks ctx as already holding the token's lock. Workers that
// took the token's Redis lock themselves pass it to Update.
func WithHeldLock(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, heldLockKey{}, id)
}

// lock takes the token's mutex and, when configured, its shared lock. It does
// nothing when ctx already holds them, which is the case for the nested
// update issued by an orientation write.
func (s *Service) lock(ctx context.Context, id uuid.UUID) (context.Context, func(), error) {
	if held, ok := ctx.Value(heldLockKey{}).(uuid.UUID); ok && held == id {
		return ctx, func() {}, nil
	}

	unlockLocal := s.lockLocal(id)
	if s.opts.Locker == nil {
		return WithHeldLock(ctx, id), unlockLocal, nil
	}

	release, err := s.opts.Locker.Lock(ctx, id)
	if err != nil {
		unlockLocal()
		return ctx, nil, fmt.Errorf("%w: %w", ErrTokenBusy, err)
	}
	return WithHeldLock(ctx, id), func() {
		if err := release(); err != nil {
			s.logger.Error("Failed to release token lock", "error", err, "token_id", id)
		}
		unlockLocal()
	}, nil
}

func (s *Service) lockLocal(id uuid.UUID) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &tokenMutex{}
		s.locks[id] = m
	}
	m.refs++
	s.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		s.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// Create stores a new token. A zero ID is replaced with a fresh one.
func (s *Service) Create(ctx context.Context, tok *actor.Token) (*actor.Token, error) {
	if tok.ID == uuid.Nil {
		tok.ID = uuid.New()
	}
	if tok.HasActor() {
		if _, err := s.store.LoadActor(ctx, tok.ActorID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("actor %s: %w", tok.ActorID, storage.ErrNotFound)
			}
			return nil, fmt.Errorf("failed to load actor: %w", err)
		}
	}
	tok.UpdatedAt = time.Now()
	if err := s.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	s.logger.Info("Token created", "token_id", tok.ID, "actor_id", tok.ActorID)
	return tok, nil
}

// Get loads a token.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*actor.Token, error) {
	tok, err := s.store.LoadToken(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", id, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return tok, nil
}

// SetMovementAction sets the token's movement action. An empty action
// resets it to the default.
func (s *Service) SetMovementAction(ctx context.Context, id uuid.UUID, action string) (*UpdateResult, error) {
	action = strings.TrimSpace(action)
	return s.Update(ctx, id, actor.TokenPatch{MovementAction: &action}, UpdateOptions{})
}

// Update applies patch to the token. When orientation is enabled and the
// patch moves the token, the orientation engine runs first and may write a
// new image through WriteImage before the move is saved.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch actor.TokenPatch, opts UpdateOptions) (*UpdateResult, error) {
	ctx, unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{}
	if s.opts.Enabled && (patch.Moves() || opts.Suppress != nil) {
		res, err := s.orient(ctx, tok, patch, opts)
		if res != nil {
			result.Orientation = res
		}
		if err != nil {
			s.logger.Warn("Orientation write failed, applying move anyway", "token_id", id, "error", err)
			result.OrientationError = err.Error()
		}
		if res != nil && res.Written {
			// The write went through a nested update; pick up its result.
			if tok, err = s.Get(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	updated := patch.Apply(*tok)
	updated.UpdatedAt = time.Now()
	if err := s.store.SaveToken(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	result.Token = &updated

	s.publish(ctx, tok, &updated, patch, result.Orientation)
	return result, nil
}

// orient runs the engine for one update. It returns nil when the token has
// nothing to evaluate.
func (s *Service) orient(ctx context.Context, tok *actor.Token, patch actor.TokenPatch, opts UpdateOptions) (*orientation.Result, error) {
	if opts.Suppress != nil {
		res, err := s.engine.ResolveAndApply(ctx, orientation.Request{
			EntityID: tok.ID.String(),
			Suppress: opts.Suppress,
		})
		return &res, err
	}

	req, ok, err := s.buildRequest(ctx, tok, patch)
	if err != nil || !ok {
		return nil, err
	}
	res, err := s.engine.ResolveAndApply(ctx, req)
	return &res, err
}

// buildRequest gathers what the engine needs for a move of tok. It reports
// false when the token has no actor to read rules from.
func (s *Service) buildRequest(ctx context.Context, tok *actor.Token, patch actor.TokenPatch) (orientation.Request, bool, error) {
	if !tok.HasActor() {
		s.logger.Debug("Token has no actor, skipping orientation", "token_id", tok.ID)
		return orientation.Request{}, false, nil
	}

	spec, err := s.store.LoadActor(ctx, tok.ActorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Token actor missing, skipping orientation", "token_id", tok.ID, "actor_id", tok.ActorID)
			return orientation.Request{}, false, nil
		}
		return orientation.Request{}, false, fmt.Errorf("failed to load actor: %w", err)
	}
	a, err := actor.NewActorFromSpec(spec)
	if err != nil {
		return orientation.Request{}, false, fmt.Errorf("failed to build actor: %w", err)
	}

	cfg, err := s.store.LoadOrientationConfig(ctx, tok.ActorID)
	if err != nil {
		return orientation.Request{}, false, fmt.Errorf("failed to load orientation config: %w", err)
	}
	world, err := s.store.LoadWorldDefaults(ctx)
	if err != nil {
		return orientation.Request{}, false, fmt.Errorf("failed to load world default images: %w", err)
	}

	return orientation.Request{
		EntityID: tok.ID.String(),
		Delta:    patch.Delta(tok),
		Snapshot: actor.Snapshot(tok, a, s.opts.DefaultMovementAction),
		Config:   cfg,
		Current:  tok.TextureSrc,
		World:    world,
	}, true, nil
}

// Preview resolves the image a move would select without writing anything.
func (s *Service) Preview(ctx context.Context, id uuid.UUID, patch actor.TokenPatch) (orientation.Result, error) {
	if !s.opts.Enabled {
		return orientation.Result{}, ErrModuleDisabled
	}
	tok, err := s.Get(ctx, id)
	if err != nil {
		return orientation.Result{}, err
	}
	req, ok, err := s.buildRequest(ctx, tok, patch)
	if err != nil {
		return orientation.Result{}, err
	}
	if !ok {
		return orientation.Result{EntityID: tok.ID.String(), RuleIndex: orientation.DefaultsIndex, Source: orientation.SourceNone}, nil
	}
	return s.engine.Resolve(req), nil
}

// WriteImage implements orientation.Writer by issuing a texture-only update
// that carries the write token.
func (s *Service) WriteImage(ctx context.Context, entityID string, image orientation.ImageRef, token *orientation.WriteToken) error {
	id, err := uuid.Parse(entityID)
	if err != nil {
		return fmt.Errorf("invalid token id %q: %w", entityID, err)
	}
	_, err = s.Update(ctx, id, actor.TokenPatch{TextureSrc: &image}, UpdateOptions{Suppress: token})
	return err
}

func (s *Service) publish(ctx context.Context, before, after *actor.Token, patch actor.TokenPatch, res *orientation.Result) {
	if s.publisher == nil {
		return
	}
	if res != nil && res.Written {
		if err := s.publisher.PublishTextureUpdated(ctx, after.ID, *res); err != nil {
			s.logger.Error("Failed to publish texture update", "token_id", after.ID, "error", err)
		}
	}
	if patch.Moves() {
		direction := patch.Delta(before).Direction()
		if err := s.publisher.PublishTokenMoved(ctx, after.ID, after.X, after.Y, direction); err != nil {
			s.logger.Error("Failed to publish move", "token_id", after.ID, "error", err)
		}
	}
}
