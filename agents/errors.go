package agents

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when a role is invoked without the input
	// it needs. The workflow treats it as fatal.
	ErrMissingInput = errors.New("missing required input")

	// ErrEmptyGoal is returned when goal extraction yields no text. It is
	// not fatal; the caller decides how to proceed.
	ErrEmptyGoal = errors.New("goal extraction produced no text")
)

// FormatError reports a diagnosis that does not match the report shape.
type FormatError struct {
	Reason string
	Raw    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("diagnosis format error: %s", e.Reason)
}

// SchemaError reports structured output that stayed invalid after every
// allowed attempt.
type SchemaError struct {
	Role     string
	Raw      string
	Attempts int
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: no valid structured output after %d attempts: %v", e.Role, e.Attempts, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
