package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

const (
	// PollInterval is how often to check a token for updates
	PollInterval = 250 * time.Millisecond
	// MoveTimeout is max time to wait for the worker to apply a queued move
	MoveTimeout = 30 * time.Second
)

// AsyncMoveResponse is the response from the move queue endpoint
type AsyncMoveResponse struct {
	RequestID string    `json:"request_id"`
	TokenID   uuid.UUID `json:"token_id"`
}

// doJSON sends body as JSON and decodes the response into out when the
// status matches want.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s returned %d (expected %d): %s", method, url, resp.StatusCode, want, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateActor stores spec and, when cfg is not nil, its orientation config.
func CreateActor(ctx context.Context, client *http.Client, baseURL string, spec actor.ActorSpec, cfg *orientation.Config) (uuid.UUID, error) {
	var created actor.ActorSpec
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/actors", spec, http.StatusCreated, &created); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create actor: %w", err)
	}
	if cfg == nil {
		return created.ID, nil
	}

	url := fmt.Sprintf("%s/v1/actors/%s/orientation", baseURL, created.ID)
	if err := doJSON(ctx, client, http.MethodPut, url, cfg, http.StatusOK, nil); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save orientation config: %w", err)
	}
	return created.ID, nil
}

// CreateToken places a token from seed, linked to actorID when it is set.
func CreateToken(ctx context.Context, client *http.Client, baseURL string, actorID uuid.UUID, seed TokenSeed) (*actor.Token, error) {
	body := map[string]any{
		"x":               seed.X,
		"y":               seed.Y,
		"texture_src":     seed.TextureSrc,
		"movement_action": seed.MovementAction,
		"in_combat":       seed.InCombat,
	}
	if actorID != uuid.Nil {
		body["actor_id"] = actorID
	}

	var tok actor.Token
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/tokens", body, http.StatusCreated, &tok); err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return &tok, nil
}

// GetToken retrieves the current token
func GetToken(ctx context.Context, client *http.Client, baseURL string, tokenID uuid.UUID) (*actor.Token, error) {
	var tok actor.Token
	if err := doJSON(ctx, client, http.MethodGet, fmt.Sprintf("%s/v1/tokens/%s", baseURL, tokenID), nil, http.StatusOK, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// PatchToken applies patch synchronously and returns the orientation outcome.
func PatchToken(ctx context.Context, client *http.Client, baseURL string, tokenID uuid.UUID, patch actor.TokenPatch) (*tokens.UpdateResult, error) {
	var res tokens.UpdateResult
	if err := doJSON(ctx, client, http.MethodPatch, fmt.Sprintf("%s/v1/tokens/%s", baseURL, tokenID), patch, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PostMoveAsync queues patch for the worker and returns the request_id
func PostMoveAsync(ctx context.Context, client *http.Client, baseURL string, tokenID uuid.UUID, patch actor.TokenPatch) (string, error) {
	var resp AsyncMoveResponse
	if err := doJSON(ctx, client, http.MethodPost, fmt.Sprintf("%s/v1/tokens/%s/moves", baseURL, tokenID), patch, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

// PollForMoveApplied polls the token until it stands where patch puts it.
func PollForMoveApplied(ctx context.Context, client *http.Client, baseURL string, tokenID uuid.UUID, patch actor.TokenPatch, timeout time.Duration) (*actor.Token, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for queued move (waited %v)", timeout)
		case <-ticker.C:
			tok, err := GetToken(ctx, client, baseURL, tokenID)
			if err != nil {
				// Keep polling; the worker may be mid-write
				continue
			}
			if (patch.X == nil || tok.X == *patch.X) && (patch.Y == nil || tok.Y == *patch.Y) {
				return tok, nil
			}
		}
	}
}
