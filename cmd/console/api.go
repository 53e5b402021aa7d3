package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/services/events"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// apiClient talks to the token orientation API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) testConnection() bool {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends body as JSON and decodes the response into out when the status
// matches want.
func (c *apiClient) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("%s %s: %s", method, path, errorResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) getToken(ctx context.Context, id uuid.UUID) (*actor.Token, error) {
	var tok actor.Token
	if err := c.do(ctx, http.MethodGet, "/v1/tokens/"+id.String(), nil, http.StatusOK, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *apiClient) getActor(ctx context.Context, id uuid.UUID) (*actor.Actor, error) {
	var a actor.Actor
	if err := c.do(ctx, http.MethodGet, "/v1/actors/"+id.String(), nil, http.StatusOK, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// createDemoToken sets up an actor with a small rule list and places a
// token for it at the origin.
func (c *apiClient) createDemoToken(ctx context.Context) (*actor.Token, error) {
	var a actor.Actor
	spec := actor.ActorSpec{Name: "Console Hero", MaxHP: 20, AC: 14}
	if err := c.do(ctx, http.MethodPost, "/v1/actors", spec, http.StatusCreated, &a); err != nil {
		return nil, fmt.Errorf("failed to create actor: %w", err)
	}

	if err := c.do(ctx, http.MethodPut, "/v1/actors/"+a.Spec.ID.String()+"/orientation", demoConfig(), http.StatusOK, nil); err != nil {
		return nil, fmt.Errorf("failed to save orientation config: %w", err)
	}

	var tok actor.Token
	req := map[string]any{
		"actor_id":    a.Spec.ID,
		"name":        "hero",
		"texture_src": "hero_s.png",
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tokens", req, http.StatusCreated, &tok); err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return &tok, nil
}

func demoConfig() orientation.Config {
	fly := "fly"
	prone := "prone"
	wounded := 25.0
	quad := func(prefix string) map[orientation.LayoutKey]orientation.ImageRef {
		return map[orientation.LayoutKey]orientation.ImageRef{
			orientation.KeyN: orientation.ImageRef(prefix + "_n.png"),
			orientation.KeyE: orientation.ImageRef(prefix + "_e.png"),
			orientation.KeyS: orientation.ImageRef(prefix + "_s.png"),
			orientation.KeyW: orientation.ImageRef(prefix + "_w.png"),
		}
	}
	return orientation.Config{
		Rules: []orientation.Rule{
			{
				Name:       "prone",
				Conditions: orientation.Conditions{StatusTag: &prone},
				Layout:     orientation.Single,
				Images:     map[orientation.LayoutKey]orientation.ImageRef{orientation.KeyAll: "hero_prone.png"},
			},
			{
				Name:       "wounded",
				Conditions: orientation.Conditions{HPBelowPercent: &wounded},
				Layout:     orientation.Dual,
				Images: map[orientation.LayoutKey]orientation.ImageRef{
					orientation.KeyX: "hero_limp_side.png",
					orientation.KeyY: "hero_limp_front.png",
				},
			},
			{
				Name:       "flying",
				Conditions: orientation.Conditions{MovementAction: &fly},
				Layout:     orientation.Quad,
				Images:     quad("hero_fly"),
			},
		},
		Defaults: orientation.Rule{
			Name:   orientation.DefaultRuleName,
			Layout: orientation.Quad,
			Images: quad("hero"),
		},
	}
}

func (c *apiClient) moveToken(ctx context.Context, id uuid.UUID, x, y float64) (*tokens.UpdateResult, error) {
	var res tokens.UpdateResult
	patch := actor.TokenPatch{X: &x, Y: &y}
	if err := c.do(ctx, http.MethodPatch, "/v1/tokens/"+id.String(), patch, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) patchToken(ctx context.Context, id uuid.UUID, patch actor.TokenPatch) (*tokens.UpdateResult, error) {
	var res tokens.UpdateResult
	if err := c.do(ctx, http.MethodPatch, "/v1/tokens/"+id.String(), patch, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) queueMove(ctx context.Context, id uuid.UUID, x, y float64) (string, error) {
	var resp struct {
		RequestID string `json:"request_id"`
	}
	patch := actor.TokenPatch{X: &x, Y: &y}
	if err := c.do(ctx, http.MethodPost, "/v1/tokens/"+id.String()+"/moves", patch, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

func (c *apiClient) preview(ctx context.Context, id uuid.UUID, x, y float64) (*orientation.Result, error) {
	var res orientation.Result
	patch := actor.TokenPatch{X: &x, Y: &y}
	if err := c.do(ctx, http.MethodPost, "/v1/tokens/"+id.String()+"/preview", patch, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) setMovementAction(ctx context.Context, id uuid.UUID, action string) (*actor.Token, error) {
	var tok actor.Token
	body := map[string]string{"movement_action": action}
	if err := c.do(ctx, http.MethodPut, "/v1/tokens/"+id.String()+"/movement-action", body, http.StatusOK, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// updateActor sends a PATCH /v1/actors/{id} body such as {"hp": 3} or
// {"add_status": ["prone"]}.
func (c *apiClient) updateActor(ctx context.Context, id uuid.UUID, body map[string]any) (*actor.Actor, error) {
	var a actor.Actor
	if err := c.do(ctx, http.MethodPatch, "/v1/actors/"+id.String(), body, http.StatusOK, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// listenToSSE streams a token's events to eventChan until ctx is done or
// the stream ends.
func (c *apiClient) listenToSSE(ctx context.Context, tokenID uuid.UUID, eventChan chan<- events.Event) error {
	url := fmt.Sprintf("%s/v1/events/tokens/%s", c.baseURL, tokenID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The shared client has a request timeout; the stream must outlive it.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev events.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil || ev.Type == "" {
			continue
		}
		select {
		case eventChan <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
