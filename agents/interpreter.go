package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/martinemde/patchloop/agentloop"
	"github.com/martinemde/patchloop/unifiedllm"
)

// DefaultFailureOutputLimit caps the test output sent to the interpreter.
const DefaultFailureOutputLimit = 20000

const interpreterInstructions = `You interpret failing test runs. Given the output of a test suite, describe the root cause of the failure clearly and concisely, then suggest how to fix it.`

// ErrorSummary is the interpreter's structured answer.
type ErrorSummary struct {
	RootCause    string `json:"errorRootCause" jsonschema:"description=The root cause of the test failure" validate:"notblank"`
	SuggestedFix string `json:"suggestedFix" jsonschema:"description=The suggested fix for the failure" validate:"notblank"`
}

// ErrorInterpreter turns failing test output into an ErrorSummary. It has
// no tools.
type ErrorInterpreter struct {
	rt Runtime
	// OutputLimit caps the characters of failure output sent, keeping the
	// head and tail.
	OutputLimit int
}

// NewErrorInterpreter creates an interpreter.
func NewErrorInterpreter(rt Runtime) *ErrorInterpreter {
	return &ErrorInterpreter{rt: rt, OutputLimit: DefaultFailureOutputLimit}
}

// Interpret summarises output. Answers that fail the schema are retried
// up to Runtime.SchemaRetries times; after that a *SchemaError is
// returned.
func (e *ErrorInterpreter) Interpret(ctx context.Context, output string) (*ErrorSummary, error) {
	if strings.TrimSpace(output) == "" {
		return nil, fmt.Errorf("%s: failure output: %w", RoleInterpreter, ErrMissingInput)
	}
	prompt := agentloop.TruncateOutput(output, e.OutputLimit, agentloop.TruncateHeadTail)

	opts := unifiedllm.GenerateOptions{
		Client:        e.rt.Client,
		Model:         e.rt.Model,
		Provider:      e.rt.Provider,
		System:        interpreterInstructions,
		Prompt:        prompt,
		SchemaRetries: e.rt.SchemaRetries,
		Metadata: map[string]string{
			unifiedllm.MetadataThreadID:   uuid.New().String(),
			unifiedllm.MetadataResourceID: e.rt.ResourceID,
		},
	}
	summary, _, err := unifiedllm.GenerateObject(ctx, opts, unifiedllm.SchemaFor(ErrorSummary{}), validateSummary)
	if err != nil {
		var noObject *unifiedllm.NoObjectGeneratedError
		if errors.As(err, &noObject) {
			return nil, &SchemaError{Role: RoleInterpreter, Raw: noObject.Raw, Attempts: noObject.Attempts, Err: noObject.Cause}
		}
		return nil, fmt.Errorf("%s: %w", RoleInterpreter, err)
	}
	return &summary, nil
}

func validateSummary(s ErrorSummary) error {
	if err := validate.Struct(s); err != nil {
		return errors.New(describeValidation(err))
	}
	return nil
}
