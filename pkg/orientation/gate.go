package orientation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// WriteToken marks one image write issued by a Gate. The host threads it
// through the update that the write produces; the first evaluation that sees
// it consumes it and skips orientation for that update.
type WriteToken struct {
	ID       string
	EntityID string
	Image    ImageRef

	consumed atomic.Bool
}

func newWriteToken(entityID string, image ImageRef) *WriteToken {
	return &WriteToken{
		ID:       uuid.NewString(),
		EntityID: entityID,
		Image:    image,
	}
}

// Consume claims the token. Only the first call on a non-nil token returns true.
func (t *WriteToken) Consume() bool {
	if t == nil {
		return false
	}
	return t.consumed.CompareAndSwap(false, true)
}

// Consumed reports whether the token has already been claimed.
func (t *WriteToken) Consumed() bool {
	return t != nil && t.consumed.Load()
}

// Writer persists a new image for an entity. Implementations must pass token
// along with the update they issue so the resulting update event is not
// evaluated again.
type Writer interface {
	WriteImage(ctx context.Context, entityID string, image ImageRef, token *WriteToken) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ctx context.Context, entityID string, image ImageRef, token *WriteToken) error

// WriteImage calls f.
func (f WriterFunc) WriteImage(ctx context.Context, entityID string, image ImageRef, token *WriteToken) error {
	return f(ctx, entityID, image, token)
}

// Gate issues image writes only when they change something.
type Gate struct {
	writer Writer
	logger *slog.Logger
}

// NewGate creates a gate that writes through w.
func NewGate(w Writer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{writer: w, logger: logger}
}

// Apply writes candidate for entityID when it is set and differs from
// current. It reports whether a write was issued. Write failures are wrapped
// and returned; they are not retried.
func (g *Gate) Apply(ctx context.Context, entityID string, current, candidate ImageRef) (bool, error) {
	if !candidate.IsSet() {
		g.logger.Debug("No image resolved, skipping write", "entity_id", entityID)
		return false, nil
	}
	if candidate == current {
		g.logger.Debug("Image unchanged, skipping write", "entity_id", entityID, "image", candidate)
		return false, nil
	}

	token := newWriteToken(entityID, candidate)
	if err := g.writer.WriteImage(ctx, entityID, candidate, token); err != nil {
		g.logger.Error("Failed to write image", "entity_id", entityID, "image", candidate, "error", err)
		return false, fmt.Errorf("failed to write image for %s: %w", entityID, err)
	}

	g.logger.Debug("Image written", "entity_id", entityID, "image", candidate, "write_token", token.ID)
	return true, nil
}
