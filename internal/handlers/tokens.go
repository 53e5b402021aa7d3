package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/middleware"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/queue"
	"github.com/jwebster45206/token-orientation/pkg/storage"
)

// MoveEnqueuer queues moves for the worker.
type MoveEnqueuer interface {
	Enqueue(ctx context.Context, req *queue.MoveRequest) error
}

// QueuedPublisher announces queued moves to event listeners.
type QueuedPublisher interface {
	PublishMoveQueued(ctx context.Context, tokenID uuid.UUID, requestID string) error
}

type TokensHandler struct {
	tokens    *tokens.Service
	moves     MoveEnqueuer
	publisher QueuedPublisher
	logger    *slog.Logger
}

// NewTokensHandler creates the token handler. moves and publisher may be
// nil, in which case POST /v1/tokens/{id}/moves is unavailable.
func NewTokensHandler(svc *tokens.Service, moves MoveEnqueuer, publisher QueuedPublisher, logger *slog.Logger) *TokensHandler {
	return &TokensHandler{
		tokens:    svc,
		moves:     moves,
		publisher: publisher,
		logger:    logger,
	}
}

type CreateTokenRequest struct {
	ActorID        uuid.UUID            `json:"actor_id,omitempty"`
	Name           string               `json:"name,omitempty"`
	X              float64              `json:"x"`
	Y              float64              `json:"y"`
	TextureSrc     orientation.ImageRef `json:"texture_src,omitempty"`
	MovementAction string               `json:"movement_action,omitempty"`
	InCombat       bool                 `json:"in_combat,omitempty"`
}

type MovementActionRequest struct {
	MovementAction string `json:"movement_action"`
}

type MoveQueuedResponse struct {
	RequestID string    `json:"request_id"`
	TokenID   uuid.UUID `json:"token_id"`
}

// ServeHTTP handles HTTP requests for tokens
// Routes:
// POST  /v1/tokens                         - Create a token
// GET   /v1/tokens/{id}                    - Read a token
// PATCH /v1/tokens/{id}                    - Move or update a token
// PUT   /v1/tokens/{id}/movement-action    - Set the movement action
// POST  /v1/tokens/{id}/moves              - Queue a move for the worker
// POST  /v1/tokens/{id}/preview            - Resolve a move without applying it
func (h *TokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/tokens")

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, h.logger, r, http.MethodPost)
			return
		}
		h.handleCreate(w, r)
		return
	}

	id, ok := parseID(w, h.logger, parts[0], "token")
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPatch:
			h.handlePatch(w, r, id)
		default:
			methodNotAllowed(w, h.logger, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2 && parts[1] == "movement-action":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, h.logger, r, http.MethodPut)
			return
		}
		h.handleMovementAction(w, r, id)
	case len(parts) == 2 && parts[1] == "moves":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, h.logger, r, http.MethodPost)
			return
		}
		h.handleEnqueueMove(w, r, id)
	case len(parts) == 2 && parts[1] == "preview":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, h.logger, r, http.MethodPost)
			return
		}
		h.handlePreview(w, r, id)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *TokensHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tok, err := h.tokens.Create(r.Context(), &actor.Token{
		ActorID:        req.ActorID,
		Name:           req.Name,
		X:              req.X,
		Y:              req.Y,
		TextureSrc:     req.TextureSrc,
		MovementAction: req.MovementAction,
		InCombat:       req.InCombat,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusBadRequest, "Actor not found")
			return
		}
		h.logger.Error("Failed to create token", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create token")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, tok)
}

func (h *TokensHandler) handleGet(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	tok, err := h.tokens.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, tok)
}

// handlePatch is the movement update. Orientation runs before the move is
// saved and its outcome is returned alongside the token.
func (h *TokensHandler) handlePatch(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var patch actor.TokenPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if patch.IsEmpty() {
		writeError(w, h.logger, http.StatusBadRequest, "Patch changes nothing")
		return
	}

	res, err := h.tokens.Update(r.Context(), id, patch, tokens.UpdateOptions{})
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *TokensHandler) handleMovementAction(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req MovementActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.tokens.SetMovementAction(r.Context(), id, req.MovementAction)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res.Token)
}

func (h *TokensHandler) handleEnqueueMove(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if h.moves == nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "Move queue is not configured")
		return
	}

	var patch actor.TokenPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !patch.Moves() {
		writeError(w, h.logger, http.StatusBadRequest, "A queued move needs x or y")
		return
	}

	if _, err := h.tokens.Get(r.Context(), id); err != nil {
		h.writeServiceError(w, err, id)
		return
	}

	req := queue.NewMoveRequest(id, patch)
	if rid := middleware.RequestID(r.Context()); rid != "" {
		req.RequestID = rid
	}
	if err := h.moves.Enqueue(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue move", "error", err, "token_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue move")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishMoveQueued(r.Context(), id, req.RequestID); err != nil {
			h.logger.Error("Failed to publish queued event", "error", err, "token_id", id)
		}
	}

	h.logger.Info("Move queued", "token_id", id, "request_id", req.RequestID)
	writeJSON(w, h.logger, http.StatusAccepted, MoveQueuedResponse{RequestID: req.RequestID, TokenID: id})
}

func (h *TokensHandler) handlePreview(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var patch actor.TokenPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.tokens.Preview(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *TokensHandler) writeServiceError(w http.ResponseWriter, err error, id uuid.UUID) {
	switch {
	case errors.Is(err, tokens.ErrTokenNotFound):
		writeError(w, h.logger, http.StatusNotFound, "Token not found")
	case errors.Is(err, tokens.ErrModuleDisabled):
		writeError(w, h.logger, http.StatusConflict, "Token orientation is disabled")
	case errors.Is(err, tokens.ErrTokenBusy):
		h.logger.Warn("Token busy", "error", err, "token_id", id)
		writeError(w, h.logger, http.StatusConflict, "Token is being updated elsewhere, retry")
	default:
		h.logger.Error("Token operation failed", "error", err, "token_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Token operation failed")
	}
}
