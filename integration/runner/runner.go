package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running token-orientation API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration // Max wait for a queued move
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           MoveTimeout,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file. Unknown fields are
// rejected so typos in expectations do not pass silently.
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite against a fresh actor and token
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	actorID := uuid.Nil
	if suite.Actor != nil {
		id, err := CreateActor(ctx, r.Client, r.BaseURL, *suite.Actor, suite.Orientation)
		if err != nil {
			result.Error = fmt.Errorf("failed to seed actor: %w", err)
			result.Duration = time.Since(start)
			return result, result.Error
		}
		actorID = id
	}

	tok, err := CreateToken(ctx, r.Client, r.BaseURL, actorID, suite.Token)
	if err != nil {
		result.Error = fmt.Errorf("failed to seed token: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.TokenID = tok.ID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, tok.ID, actorID, step, suite.Token)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// resetToken restores the token seed. The seed texture is part of the
// patch, so it wins over any image orientation writes for the move.
func (r *Runner) resetToken(ctx context.Context, tokenID uuid.UUID, seed TokenSeed) (*actor.Token, error) {
	x, y := seed.X, seed.Y
	texture := seed.TextureSrc
	action := seed.MovementAction
	inCombat := seed.InCombat

	res, err := PatchToken(ctx, r.Client, r.BaseURL, tokenID, actor.TokenPatch{
		X:              &x,
		Y:              &y,
		TextureSrc:     &texture,
		MovementAction: &action,
		InCombat:       &inCombat,
	})
	if err != nil {
		return nil, err
	}
	return res.Token, nil
}

// runStep executes a single test step and checks expectations
func (r *Runner) runStep(ctx context.Context, tokenID, actorID uuid.UUID, step TestStep, seed TokenSeed) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Name,
	}

	tok, res, err := r.executeStep(ctx, tokenID, actorID, step, seed, &result)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	if err := checkExpectations(step.Expectations, tok, res); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// executeStep performs the step's request and returns the token afterwards
// plus the orientation result when the step produced one.
func (r *Runner) executeStep(ctx context.Context, tokenID, actorID uuid.UUID, step TestStep, seed TokenSeed, result *TestResult) (*actor.Token, *orientation.Result, error) {
	switch {
	case step.Reset:
		result.IsReset = true
		tok, err := r.resetToken(ctx, tokenID, seed)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reset token: %w", err)
		}
		return tok, nil, nil

	case step.Move != nil:
		res, err := PatchToken(ctx, r.Client, r.BaseURL, tokenID, *step.Move)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to move token: %w", err)
		}
		if res.OrientationError != "" {
			return nil, nil, fmt.Errorf("orientation write failed: %s", res.OrientationError)
		}
		return res.Token, res.Orientation, nil

	case step.Queue != nil:
		result.IsQueued = true
		if step.Expectations.needsResult() {
			return nil, nil, fmt.Errorf("orientation expectations need a synchronous move step")
		}
		requestID, err := PostMoveAsync(ctx, r.Client, r.BaseURL, tokenID, *step.Queue)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to queue move: %w", err)
		}
		result.RequestID = requestID
		tok, err := PollForMoveApplied(ctx, r.Client, r.BaseURL, tokenID, *step.Queue, r.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to poll for queued move %s: %w", requestID, err)
		}
		return tok, nil, nil

	case step.Actor != nil:
		if actorID == uuid.Nil {
			return nil, nil, fmt.Errorf("actor step in a suite without an actor")
		}
		url := fmt.Sprintf("%s/v1/actors/%s", r.BaseURL, actorID)
		if err := doJSON(ctx, r.Client, http.MethodPatch, url, step.Actor, http.StatusOK, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to update actor: %w", err)
		}

	case step.MovementAction != nil:
		url := fmt.Sprintf("%s/v1/tokens/%s/movement-action", r.BaseURL, tokenID)
		body := map[string]string{"movement_action": *step.MovementAction}
		if err := doJSON(ctx, r.Client, http.MethodPut, url, body, http.StatusOK, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to set movement action: %w", err)
		}

	default:
		return nil, nil, fmt.Errorf("step has nothing to do")
	}

	tok, err := GetToken(ctx, r.Client, r.BaseURL, tokenID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get token: %w", err)
	}
	return tok, nil, nil
}

// checkExpectations validates the expectations against the token and the
// orientation result of the step. res is nil when no orientation ran.
func checkExpectations(exp Expectations, tok *actor.Token, res *orientation.Result) error {
	if exp.TextureSrc != nil && string(tok.TextureSrc) != *exp.TextureSrc {
		return fmt.Errorf("expected texture_src %q, got %q", *exp.TextureSrc, tok.TextureSrc)
	}
	if exp.X != nil && tok.X != *exp.X {
		return fmt.Errorf("expected x %v, got %v", *exp.X, tok.X)
	}
	if exp.Y != nil && tok.Y != *exp.Y {
		return fmt.Errorf("expected y %v, got %v", *exp.Y, tok.Y)
	}
	if exp.MovementAction != nil && tok.MovementAction != *exp.MovementAction {
		return fmt.Errorf("expected movement_action %q, got %q", *exp.MovementAction, tok.MovementAction)
	}

	if exp.OrientationSkipped {
		if res != nil {
			return fmt.Errorf("expected no orientation, got %s via %s", res.Image, res.Source)
		}
		return nil
	}
	if !exp.needsResult() {
		return nil
	}
	if res == nil {
		return fmt.Errorf("expected an orientation result, but none was returned")
	}

	if exp.Direction != nil && string(res.Direction) != *exp.Direction {
		return fmt.Errorf("expected direction %s, got %s", *exp.Direction, res.Direction)
	}
	if exp.Rule != nil && res.Rule != *exp.Rule {
		return fmt.Errorf("expected rule %q, got %q", *exp.Rule, res.Rule)
	}
	if exp.Source != nil && string(res.Source) != *exp.Source {
		return fmt.Errorf("expected source %s, got %s", *exp.Source, res.Source)
	}
	if exp.Written != nil && res.Written != *exp.Written {
		return fmt.Errorf("expected written %t, got %t", *exp.Written, res.Written)
	}

	return nil
}
