package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/storage"
)

// ActorsHandler serves actors and their orientation configs. Config writes
// replace the whole stored value; the last writer wins.
type ActorsHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewActorsHandler(storage storage.Storage, logger *slog.Logger) *ActorsHandler {
	return &ActorsHandler{
		storage: storage,
		logger:  logger,
	}
}

// UpdateActorRequest changes an actor's health and status tags.
type UpdateActorRequest struct {
	HP           *int     `json:"hp,omitempty"`
	AddStatus    []string `json:"add_status,omitempty"`
	RemoveStatus []string `json:"remove_status,omitempty"`
}

// ConfigResponse returns a stored config with non-fatal warnings.
type ConfigResponse struct {
	Config   orientation.Config `json:"config"`
	Warnings []string           `json:"warnings,omitempty"`
}

// ServeHTTP handles HTTP requests for actors
// Routes:
// POST   /v1/actors                                   - Create an actor
// GET    /v1/actors/{id}                              - Read an actor
// PATCH  /v1/actors/{id}                              - Update HP or status tags
// GET    /v1/actors/{id}/orientation                  - Read the orientation config
// PUT    /v1/actors/{id}/orientation                  - Replace the orientation config
// POST   /v1/actors/{id}/orientation/rules            - Append a rule
// DELETE /v1/actors/{id}/orientation/rules/{index}    - Remove a rule
func (h *ActorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/actors")

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, h.logger, r, http.MethodPost)
			return
		}
		h.handleCreate(w, r)
		return
	}

	id, ok := parseID(w, h.logger, parts[0], "actor")
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
	case len(parts) == 2 && parts[1] == "orientation":
		switch r.Method {
		case http.MethodGet:
			h.handleGetConfig(w, r, id)
		case http.MethodPut:
			h.handlePutConfig(w, r, id)
		default:
			methodNotAllowed(w, h.logger, r, http.MethodGet, http.MethodPut)
		}
	case len(parts) == 3 && parts[1] == "orientation" && parts[2] == "rules":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, h.logger, r, http.MethodPost)
			return
		}
		h.handleAddRule(w, r, id)
	case len(parts) == 4 && parts[1] == "orientation" && parts[2] == "rules":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, h.logger, r, http.MethodDelete)
			return
		}
		index, err := strconv.Atoi(parts[3])
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Rule index must be an integer")
			return
		}
		h.handleRemoveRule(w, r, id, index)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *ActorsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var spec actor.ActorSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if spec.ID == uuid.Nil {
		spec.ID = uuid.New()
	}

	// Building the runtime actor validates HP against MaxHP.
	a, err := actor.NewActorFromSpec(&spec)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.SaveActor(r.Context(), &spec); err != nil {
		h.logger.Error("Failed to save actor", "error", err, "actor_id", spec.ID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save actor")
		return
	}

	h.logger.Info("Actor created", "actor_id", spec.ID, "name", spec.Name)
	writeJSON(w, h.logger, http.StatusCreated, a)
}

// loadActor writes the error response itself and reports false on failure.
func (h *ActorsHandler) loadActor(w http.ResponseWriter, r *http.Request, id uuid.UUID) (*actor.Actor, bool) {
	spec, err := h.storage.LoadActor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Actor not found")
			return nil, false
		}
		h.logger.Error("Failed to load actor", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load actor")
		return nil, false
	}

	a, err := actor.NewActorFromSpec(spec)
	if err != nil {
		h.logger.Error("Failed to build actor from spec", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to build actor")
		return nil, false
	}
	return a, true
}

func (h *ActorsHandler) handleGet(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	a, ok := h.loadActor(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, a)
}

func (h *ActorsHandler) handlePatch(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req UpdateActorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	a, ok := h.loadActor(w, r, id)
	if !ok {
		return
	}

	if req.HP != nil {
		if err := a.SetHP(*req.HP); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, tag := range req.AddStatus {
		a.AddStatus(tag)
	}
	for _, tag := range req.RemoveStatus {
		a.RemoveStatus(tag)
	}

	if err := h.storage.SaveActor(r.Context(), a.Spec); err != nil {
		h.logger.Error("Failed to save actor", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save actor")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, a)
}

func (h *ActorsHandler) handleGetConfig(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if _, ok := h.loadActor(w, r, id); !ok {
		return
	}
	cfg, err := h.storage.LoadOrientationConfig(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load orientation config", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load orientation config")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ConfigResponse{Config: cfg, Warnings: warnings(cfg)})
}

func (h *ActorsHandler) handlePutConfig(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var cfg orientation.Config
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid orientation config: "+err.Error())
		return
	}
	if _, ok := h.loadActor(w, r, id); !ok {
		return
	}
	h.saveConfig(w, r, id, cfg, http.StatusOK)
}

func (h *ActorsHandler) handleAddRule(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var rule orientation.Rule
	if err := decodeBody(r, &rule); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid rule: "+err.Error())
		return
	}
	if _, ok := h.loadActor(w, r, id); !ok {
		return
	}

	cfg, err := h.storage.LoadOrientationConfig(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load orientation config", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load orientation config")
		return
	}
	h.saveConfig(w, r, id, cfg.AddRule(rule), http.StatusCreated)
}

func (h *ActorsHandler) handleRemoveRule(w http.ResponseWriter, r *http.Request, id uuid.UUID, index int) {
	if _, ok := h.loadActor(w, r, id); !ok {
		return
	}

	cfg, err := h.storage.LoadOrientationConfig(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load orientation config", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load orientation config")
		return
	}
	cfg, err = cfg.RemoveRule(index)
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, err.Error())
		return
	}
	h.saveConfig(w, r, id, cfg, http.StatusOK)
}

// saveConfig validates and stores cfg, replacing the previous value.
func (h *ActorsHandler) saveConfig(w http.ResponseWriter, r *http.Request, id uuid.UUID, cfg orientation.Config, status int) {
	if err := cfg.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid orientation config: "+strings.ReplaceAll(err.Error(), "\n", "; "))
		return
	}
	cfg = cfg.Normalize()
	if err := h.storage.SaveOrientationConfig(r.Context(), id, cfg); err != nil {
		h.logger.Error("Failed to save orientation config", "error", err, "actor_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save orientation config")
		return
	}

	h.logger.Info("Orientation config saved", "actor_id", id, "rules", len(cfg.Rules))
	writeJSON(w, h.logger, status, ConfigResponse{Config: cfg, Warnings: warnings(cfg)})
}

func warnings(cfg orientation.Config) []string {
	var out []string
	for _, a := range cfg.UnknownMovementActions() {
		out = append(out, "unknown movement action "+strconv.Quote(a))
	}
	return out
}
