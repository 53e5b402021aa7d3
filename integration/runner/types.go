package runner

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name        string              `json:"name"`
	Actor       *actor.ActorSpec    `json:"actor,omitempty"`       // Used for regular tests; nil places a token without an actor
	Orientation *orientation.Config `json:"orientation,omitempty"` // Stored for the actor before the first step
	Token       TokenSeed           `json:"token"`                 // Used for regular tests
	Steps       []TestStep          `json:"steps,omitempty"`       // Used for regular tests
	Cases       []string            `json:"cases,omitempty"`       // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TokenSeed is the token every suite starts from, and what reset steps
// restore.
type TokenSeed struct {
	X              float64              `json:"x"`
	Y              float64              `json:"y"`
	TextureSrc     orientation.ImageRef `json:"texture_src,omitempty"`
	MovementAction string               `json:"movement_action,omitempty"`
	InCombat       bool                 `json:"in_combat,omitempty"`
}

// TestStep defines a single interaction and its expected outcomes.
// Exactly one of Move, Queue, Actor, MovementAction or Reset should be set.
type TestStep struct {
	Name           string            `json:"name,omitempty"`
	Move           *actor.TokenPatch `json:"move,omitempty"`            // PATCH /v1/tokens/{id}
	Queue          *actor.TokenPatch `json:"queue,omitempty"`           // POST /v1/tokens/{id}/moves, then wait for the worker
	Actor          *ActorUpdate      `json:"actor,omitempty"`           // PATCH /v1/actors/{id}
	MovementAction *string           `json:"movement_action,omitempty"` // PUT /v1/tokens/{id}/movement-action
	Reset          bool              `json:"reset,omitempty"`           // Restore the token seed
	Expectations   Expectations      `json:"expect"`
}

// ActorUpdate mirrors the actor PATCH body.
type ActorUpdate struct {
	HP           *int     `json:"hp,omitempty"`
	AddStatus    []string `json:"add_status,omitempty"`
	RemoveStatus []string `json:"remove_status,omitempty"`
}

// Expectations defines what to check after a test step executes.
// Orientation fields are only available for synchronous moves.
type Expectations struct {
	// Token properties - aligned with pkg/actor/token.go
	TextureSrc     *string  `json:"texture_src,omitempty"`
	X              *float64 `json:"x,omitempty"`
	Y              *float64 `json:"y,omitempty"`
	MovementAction *string  `json:"movement_action,omitempty"`

	// Orientation outcome - aligned with pkg/orientation/engine.go
	Direction          *string `json:"direction,omitempty"`
	Rule               *string `json:"rule,omitempty"`
	Source             *string `json:"source,omitempty"`
	Written            *bool   `json:"written,omitempty"`
	OrientationSkipped bool    `json:"orientation_skipped,omitempty"` // No orientation ran for the move
}

// needsResult reports whether the expectations read the orientation result.
func (e Expectations) needsResult() bool {
	return e.Direction != nil || e.Rule != nil || e.Source != nil || e.Written != nil || e.OrientationSkipped
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName  string
	StepName  string
	Success   bool
	Error     error
	Duration  time.Duration
	RequestID string
	IsReset   bool // True if this was a reset step (should not count toward pass/fail metrics)
	IsQueued  bool // True if the step went through the move queue
}

// TestJob represents a test suite to be executed by a worker
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	TokenID  uuid.UUID // ID of the token used for this test
}
