package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/storage"
)

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func newActorsFixture(t *testing.T) (*ActorsHandler, *storage.MockStorage, uuid.UUID) {
	t.Helper()
	store := storage.NewMockStorage()
	id := uuid.New()
	spec := &actor.ActorSpec{ID: id, Name: "Aria", MaxHP: 20, AC: 12}
	if err := store.SaveActor(context.Background(), spec); err != nil {
		t.Fatalf("SaveActor() error = %v", err)
	}
	return NewActorsHandler(store, testLogger()), store, id
}

func decodeConfigResponse(t *testing.T, rr *httptest.ResponseRecorder) ConfigResponse {
	t.Helper()
	var resp ConfigResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode config response: %v", err)
	}
	return resp
}

func TestActorsHandler_CreateAndGet(t *testing.T) {
	h, _, _ := newActorsFixture(t)

	rr := serve(h, http.MethodPost, "/v1/actors", `{"name":"Bram","hp":4,"max_hp":10,"status_effects":["prone"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var created actor.ActorSpec
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode actor: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("Expected non-nil actor ID")
	}
	if created.HP == nil || *created.HP != 4 || created.MaxHP != 10 {
		t.Errorf("HP = %v/%d, want 4/10", created.HP, created.MaxHP)
	}

	rr = serve(h, http.MethodGet, "/v1/actors/"+created.ID.String(), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got actor.ActorSpec
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode actor: %v", err)
	}
	if got.Name != "Bram" || len(got.StatusEffects) != 1 {
		t.Errorf("GET = %+v", got)
	}

	rr = serve(h, http.MethodGet, "/v1/actors/"+uuid.NewString(), "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing actor status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestActorsHandler_CreateHealth(t *testing.T) {
	h, store, _ := newActorsFixture(t)

	t.Run("missing hp is full health", func(t *testing.T) {
		rr := serve(h, http.MethodPost, "/v1/actors", `{"name":"knight","max_hp":100}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
		}
		var created actor.ActorSpec
		if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
			t.Fatalf("Failed to decode actor: %v", err)
		}
		if created.HP == nil || *created.HP != 100 {
			t.Errorf("HP = %v, want 100", created.HP)
		}

		spec, err := store.LoadActor(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("LoadActor() error = %v", err)
		}
		a, err := actor.NewActorFromSpec(spec)
		if err != nil {
			t.Fatalf("NewActorFromSpec() error = %v", err)
		}
		if pct, ok := a.Health().Percent(); !ok || pct != 100 {
			t.Errorf("stored health = %v%%, want 100%%", pct)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"negative hp", `{"name":"knight","hp":-5,"max_hp":100}`},
		{"hp above max", `{"name":"knight","hp":150,"max_hp":100}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, http.MethodPost, "/v1/actors", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d, body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestActorsHandler_Patch(t *testing.T) {
	h, store, id := newActorsFixture(t)
	path := "/v1/actors/" + id.String()

	rr := serve(h, http.MethodPatch, path, `{"hp":5,"add_status":["Prone","prone","bloodied"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}

	spec, err := store.LoadActor(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadActor() error = %v", err)
	}
	if spec.HP == nil || *spec.HP != 5 {
		t.Errorf("HP = %v, want 5", spec.HP)
	}
	if len(spec.StatusEffects) != 2 {
		t.Errorf("StatusEffects = %v, want [Prone bloodied]", spec.StatusEffects)
	}

	rr = serve(h, http.MethodPatch, path, `{"remove_status":["PRONE"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	spec, _ = store.LoadActor(context.Background(), id)
	if len(spec.StatusEffects) != 1 || spec.StatusEffects[0] != "bloodied" {
		t.Errorf("StatusEffects = %v, want [bloodied]", spec.StatusEffects)
	}
}

func TestActorsHandler_PatchHPWithoutHealth(t *testing.T) {
	h, store, _ := newActorsFixture(t)
	id := uuid.New()
	if err := store.SaveActor(context.Background(), &actor.ActorSpec{ID: id, Name: "Crate"}); err != nil {
		t.Fatalf("SaveActor() error = %v", err)
	}

	rr := serve(h, http.MethodPatch, "/v1/actors/"+id.String(), `{"hp":3}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestActorsHandler_OrientationConfig(t *testing.T) {
	h, store, id := newActorsFixture(t)
	path := "/v1/actors/" + id.String() + "/orientation"

	t.Run("empty by default", func(t *testing.T) {
		rr := serve(h, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		resp := decodeConfigResponse(t, rr)
		if len(resp.Config.Rules) != 0 || resp.Config.Defaults.Name != orientation.DefaultRuleName {
			t.Errorf("Config = %+v, want empty", resp.Config)
		}
	})

	t.Run("put replaces and warns on unknown action", func(t *testing.T) {
		body := `{
			"rules": [
				{"name": "gliding", "conditions": {"movement_action": "glide"}, "direction_layout": "quad", "images": {"E": "glide_e.png"}}
			],
			"defaults": {"name": "default", "direction_layout": "dual", "images": {"X": "side.png"}}
		}`
		rr := serve(h, http.MethodPut, path, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
		}
		resp := decodeConfigResponse(t, rr)
		if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "glide") {
			t.Errorf("Warnings = %v, want one about glide", resp.Warnings)
		}

		stored, err := store.LoadOrientationConfig(context.Background(), id)
		if err != nil {
			t.Fatalf("LoadOrientationConfig() error = %v", err)
		}
		if len(stored.Rules) != 1 || stored.Rules[0].Images[orientation.KeyE] != "glide_e.png" {
			t.Errorf("stored = %+v", stored)
		}
	})

	t.Run("invalid configs are rejected", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want string
		}{
			{"unknown layout", `{"rules":[{"name":"a","direction_layout":"hex"}]}`, "unknown direction layout"},
			{"key not in layout", `{"rules":[{"name":"a","direction_layout":"single","images":{"N":"n.png"}}]}`, "image key"},
			{"threshold out of range", `{"rules":[{"name":"a","conditions":{"hp_below_percent":150},"direction_layout":"single"}]}`, "hp_below_percent"},
			{"unknown field", `{"rulez":[]}`, "unknown field"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := serve(h, http.MethodPut, path, tt.body)
				if rr.Code != http.StatusBadRequest {
					t.Fatalf("status = %d, want %d, body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
				}
				if !strings.Contains(rr.Body.String(), tt.want) {
					t.Errorf("body = %s, want it to mention %q", rr.Body.String(), tt.want)
				}
			})
		}
	})

	t.Run("missing actor", func(t *testing.T) {
		rr := serve(h, http.MethodGet, "/v1/actors/"+uuid.NewString()+"/orientation", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
		}
	})
}

func TestActorsHandler_Rules(t *testing.T) {
	h, store, id := newActorsFixture(t)
	rulesPath := "/v1/actors/" + id.String() + "/orientation/rules"

	for _, name := range []string{"flying", "prone"} {
		body := `{"name":"` + name + `","direction_layout":"single","images":{"All":"` + name + `.png"}}`
		rr := serve(h, http.MethodPost, rulesPath, body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("add %s status = %d, body: %s", name, rr.Code, rr.Body.String())
		}
	}

	cfg, _ := store.LoadOrientationConfig(context.Background(), id)
	if len(cfg.Rules) != 2 || cfg.Rules[0].Name != "flying" || cfg.Rules[1].Name != "prone" {
		t.Fatalf("Rules = %+v, want [flying prone]", cfg.Rules)
	}

	rr := serve(h, http.MethodDelete, rulesPath+"/0", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body: %s", rr.Code, rr.Body.String())
	}
	cfg, _ = store.LoadOrientationConfig(context.Background(), id)
	if len(cfg.Rules) != 1 || cfg.Rules[0].Name != "prone" {
		t.Errorf("Rules = %+v, want [prone]", cfg.Rules)
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"out of range", http.MethodDelete, rulesPath + "/5", http.StatusNotFound},
		{"not an index", http.MethodDelete, rulesPath + "/defaults", http.StatusBadRequest},
		{"wrong method", http.MethodGet, rulesPath + "/0", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, tt.method, tt.path, "")
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
