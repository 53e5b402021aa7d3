package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/storage"
)

type SettingsResponse struct {
	Enabled               bool     `json:"enabled"`
	DefaultMovementAction string   `json:"default_movement_action"`
	MovementActions       []string `json:"movement_actions"`
}

// SettingsHandler serves module-wide settings.
type SettingsHandler struct {
	storage storage.Storage
	tokens  *tokens.Service
	logger  *slog.Logger
}

func NewSettingsHandler(storage storage.Storage, svc *tokens.Service, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		storage: storage,
		tokens:  svc,
		logger:  logger,
	}
}

// ServeHTTP handles HTTP requests for settings
// Routes:
// GET /v1/settings                  - Module switches
// GET /v1/settings/default-images   - World default images
// PUT /v1/settings/default-images   - Replace world default images
// GET /v1/movement-actions          - Known movement actions
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch path {
	case "/v1/settings":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, h.logger, r, http.MethodGet)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, SettingsResponse{
			Enabled:               h.tokens.Enabled(),
			DefaultMovementAction: h.tokens.DefaultMovementAction(),
			MovementActions:       orientation.KnownMovementActions,
		})
	case "/v1/movement-actions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, h.logger, r, http.MethodGet)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, orientation.KnownMovementActions)
	case "/v1/settings/default-images":
		switch r.Method {
		case http.MethodGet:
			h.handleGetDefaultImages(w, r)
		case http.MethodPut:
			h.handlePutDefaultImages(w, r)
		default:
			methodNotAllowed(w, h.logger, r, http.MethodGet, http.MethodPut)
		}
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SettingsHandler) handleGetDefaultImages(w http.ResponseWriter, r *http.Request) {
	world, err := h.storage.LoadWorldDefaults(r.Context())
	if err != nil {
		h.logger.Error("Failed to load world default images", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load default images")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, world)
}

func (h *SettingsHandler) handlePutDefaultImages(w http.ResponseWriter, r *http.Request) {
	var world orientation.WorldDefaults
	if err := decodeBody(r, &world); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := world.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, strings.ReplaceAll(err.Error(), "\n", "; "))
		return
	}

	world = world.Normalize()
	if err := h.storage.SaveWorldDefaults(r.Context(), world); err != nil {
		h.logger.Error("Failed to save world default images", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save default images")
		return
	}

	h.logger.Info("World default images updated", "actions", len(world))
	writeJSON(w, h.logger, http.StatusOK, world)
}
