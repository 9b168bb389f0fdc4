package workflow

import (
	"fmt"
	"time"
)

// State is where the loop is. A run is in exactly one state at a time.
type State int

const (
	StateIterating State = iota
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIterating:
		return "iterating"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ExitReason says why a finished run stopped.
type ExitReason int

const (
	ExitReasonNone          ExitReason = iota
	ExitReasonTestsPassed              // evaluation succeeded
	ExitReasonMaxIterations            // hit limits.max_iterations
	ExitReasonNoProgress               // too many consecutive applies without edits
)

func (r ExitReason) String() string {
	switch r {
	case ExitReasonTestsPassed:
		return "tests passed"
	case ExitReasonMaxIterations:
		return "max iterations"
	case ExitReasonNoProgress:
		return "no progress"
	default:
		return "none"
	}
}

// Outcome is the result of Controller.Run.
type Outcome struct {
	RunID       string
	State       State
	Reason      ExitReason
	Iterations  int
	PatchNumber int
	Goal        string
	Task        string
}

// Step names one stage of an iteration.
type Step string

const (
	StepGoal      Step = "goal"
	StepDiagnose  Step = "diagnose"
	StepApply     Step = "apply"
	StepEvaluate  Step = "evaluate"
	StepInterpret Step = "interpret"
)

// StepTimeoutError reports a step that ran past its configured timeout.
type StepTimeoutError struct {
	Step    Step
	Timeout time.Duration
	Err     error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("%s step timed out after %s", e.Step, e.Timeout)
}

func (e *StepTimeoutError) Unwrap() error { return e.Err }
