package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/queue"
	"github.com/jwebster45206/token-orientation/pkg/storage"
)

type fakeQueue struct {
	mu     sync.Mutex
	queued []*queue.MoveRequest
	err    error
}

func (q *fakeQueue) Enqueue(ctx context.Context, req *queue.MoveRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, req)
	return nil
}

type tokenFixture struct {
	handler *TokensHandler
	store   *storage.MockStorage
	queue   *fakeQueue
	actorID uuid.UUID
}

func newTokenFixture(t *testing.T, enabled bool) tokenFixture {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	store := storage.NewMockStorage()

	actorID := uuid.New()
	if err := store.SaveActor(ctx, &actor.ActorSpec{ID: actorID, Name: "Aria"}); err != nil {
		t.Fatalf("SaveActor() error = %v", err)
	}
	cfg := orientation.Config{
		Defaults: orientation.Rule{
			Layout: orientation.Dual,
			Images: map[orientation.LayoutKey]orientation.ImageRef{
				orientation.KeyX: "side.png",
				orientation.KeyY: "front.png",
			},
		},
	}
	if err := store.SaveOrientationConfig(ctx, actorID, cfg); err != nil {
		t.Fatalf("SaveOrientationConfig() error = %v", err)
	}

	svc := tokens.NewService(store, nil, logger, tokens.Options{Enabled: enabled})
	q := &fakeQueue{}
	return tokenFixture{
		handler: NewTokensHandler(svc, q, nil, logger),
		store:   store,
		queue:   q,
		actorID: actorID,
	}
}

func (f tokenFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f tokenFixture) createToken(t *testing.T) actor.Token {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/tokens", `{"actor_id":"`+f.actorID.String()+`","texture_src":"front.png"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var tok actor.Token
	if err := json.NewDecoder(rr.Body).Decode(&tok); err != nil {
		t.Fatalf("Failed to decode token: %v", err)
	}
	return tok
}

func TestTokensHandler_Create(t *testing.T) {
	f := newTokenFixture(t, true)
	tok := f.createToken(t)

	if tok.ID == uuid.Nil {
		t.Error("Expected non-nil token ID")
	}
	if tok.ActorID != f.actorID {
		t.Errorf("ActorID = %v, want %v", tok.ActorID, f.actorID)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown actor", `{"actor_id":"` + uuid.NewString() + `"}`, http.StatusBadRequest},
		{"unknown field", `{"colour":"red"}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/v1/tokens", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d, body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestTokensHandler_Get(t *testing.T) {
	f := newTokenFixture(t, true)
	tok := f.createToken(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/v1/tokens/" + tok.ID.String(), http.StatusOK},
		{"missing", "/v1/tokens/" + uuid.NewString(), http.StatusNotFound},
		{"bad id", "/v1/tokens/not-a-uuid", http.StatusBadRequest},
		{"unknown sub-resource", "/v1/tokens/" + tok.ID.String() + "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodGet, tt.path, "")
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestTokensHandler_PatchMovesAndOrients(t *testing.T) {
	f := newTokenFixture(t, true)
	tok := f.createToken(t)
	path := "/v1/tokens/" + tok.ID.String()

	rr := f.do(t, http.MethodPatch, path, `{"x":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var res tokens.UpdateResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if res.Token.TextureSrc != "side.png" {
		t.Errorf("TextureSrc = %q, want side.png", res.Token.TextureSrc)
	}
	if res.Orientation == nil || !res.Orientation.Written {
		t.Errorf("Orientation = %+v, want written", res.Orientation)
	}

	// Moving the same way again resolves the same image and writes nothing.
	saves := f.store.TokenSaves()
	rr = f.do(t, http.MethodPatch, path, `{"x":-2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	res = tokens.UpdateResult{}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if res.Orientation.Written {
		t.Error("second horizontal move should not rewrite the image")
	}
	if got := f.store.TokenSaves() - saves; got != 1 {
		t.Errorf("token saves = %d, want 1", got)
	}
}

func TestTokensHandler_PatchErrors(t *testing.T) {
	f := newTokenFixture(t, true)
	tok := f.createToken(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty patch", http.MethodPatch, "/v1/tokens/" + tok.ID.String(), `{}`, http.StatusBadRequest},
		{"bad json", http.MethodPatch, "/v1/tokens/" + tok.ID.String(), `{"x":`, http.StatusBadRequest},
		{"missing token", http.MethodPatch, "/v1/tokens/" + uuid.NewString(), `{"x":1}`, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/v1/tokens/" + tok.ID.String(), ``, http.StatusMethodNotAllowed},
		{"list not supported", http.MethodGet, "/v1/tokens", ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d, body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestTokensHandler_MovementAction(t *testing.T) {
	f := newTokenFixture(t, true)
	tok := f.createToken(t)

	rr := f.do(t, http.MethodPut, "/v1/tokens/"+tok.ID.String()+"/movement-action", `{"movement_action":" fly "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var got actor.Token
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode token: %v", err)
	}
	if got.MovementAction != "fly" {
		t.Errorf("MovementAction = %q, want fly", got.MovementAction)
	}

	rr = f.do(t, http.MethodGet, "/v1/tokens/"+tok.ID.String()+"/movement-action", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestTokensHandler_EnqueueMove(t *testing.T) {
	f := newTokenFixture(t, true)
	tok := f.createToken(t)
	path := "/v1/tokens/" + tok.ID.String() + "/moves"

	rr := f.do(t, http.MethodPost, path, `{"x":3,"y":1}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var resp MoveQueuedResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(f.queue.queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(f.queue.queued))
	}
	if f.queue.queued[0].RequestID != resp.RequestID || f.queue.queued[0].TokenID != tok.ID {
		t.Errorf("queued = %+v, response = %+v", f.queue.queued[0], resp)
	}

	t.Run("needs coordinates", func(t *testing.T) {
		rr := f.do(t, http.MethodPost, path, `{"in_combat":true}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})

	t.Run("queue failure", func(t *testing.T) {
		f.queue.err = errors.New("redis down")
		defer func() { f.queue.err = nil }()
		rr := f.do(t, http.MethodPost, path, `{"x":1}`)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
		}
	})

	t.Run("no queue configured", func(t *testing.T) {
		h := NewTokensHandler(f.handler.tokens, nil, nil, testLogger())
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"x":1}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestTokensHandler_Preview(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		f := newTokenFixture(t, true)
		tok := f.createToken(t)
		saves := f.store.TokenSaves()

		rr := f.do(t, http.MethodPost, "/v1/tokens/"+tok.ID.String()+"/preview", `{"x":4}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
		}
		var res orientation.Result
		if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
			t.Fatalf("Failed to decode result: %v", err)
		}
		if res.Image != "side.png" || res.Written {
			t.Errorf("Preview = %+v, want side.png unwritten", res)
		}
		if f.store.TokenSaves() != saves {
			t.Error("preview must not save the token")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		f := newTokenFixture(t, false)
		tok := f.createToken(t)
		rr := f.do(t, http.MethodPost, "/v1/tokens/"+tok.ID.String()+"/preview", `{"x":4}`)
		if rr.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusConflict)
		}
	})
}
