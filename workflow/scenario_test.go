package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/patchloop/agentloop"
	"github.com/martinemde/patchloop/agents"
	"github.com/martinemde/patchloop/evaluation"
	"github.com/martinemde/patchloop/unifiedllm"
)

// replayAdapter answers with a fixed script, one response per request.
type replayAdapter struct {
	mu        sync.Mutex
	responses []*unifiedllm.Response
}

func (a *replayAdapter) Name() string { return "openai" }

func (a *replayAdapter) Complete(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.responses) == 0 {
		return &unifiedllm.Response{Message: unifiedllm.AssistantMessage(""), FinishReason: unifiedllm.FinishReason{Reason: "stop"}}, nil
	}
	resp := a.responses[0]
	a.responses = a.responses[1:]
	return resp, nil
}

func say(text string) *unifiedllm.Response {
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage(text), FinishReason: unifiedllm.FinishReason{Reason: "stop"}}
}

func toolCall(name string, args map[string]string) *unifiedllm.Response {
	raw, _ := json.Marshal(args)
	return &unifiedllm.Response{
		Message: unifiedllm.Message{Role: unifiedllm.RoleAssistant, Content: []unifiedllm.ContentPart{
			unifiedllm.ToolCallPart("call-1", name, raw),
		}},
		FinishReason: unifiedllm.FinishReason{Reason: "tool_calls"},
	}
}

// runtime gives each role its own scripted model so concurrent steps do
// not compete for responses.
func runtime(responses ...*unifiedllm.Response) agents.Runtime {
	adapter := &replayAdapter{responses: responses}
	return agents.Runtime{
		Client:        unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter)),
		Model:         "gpt-4.1",
		SchemaRetries: 1,
	}
}

func TestRenameScenarioEndToEnd(t *testing.T) {
	root := t.TempDir()
	util := filepath.Join(root, "util.py")
	require.NoError(t, os.WriteFile(util, []byte("import os\n\n\n\n\n\n\n\n\ndef foo():\n    return 1\n"), 0o644))
	issue := filepath.Join(t.TempDir(), "issue.md")
	require.NoError(t, os.WriteFile(issue, []byte("rename function foo to bar in util.py\n"), 0o644))

	env := agentloop.NewLocalExecutionEnvironment(root)
	opts := Options{
		Goals: agents.NewGoalExtractor(runtime(say("Rename function foo to bar in util.py")), env),
		Diagnoser: agents.NewDiagnoser(runtime(say(
			`{"ParsedDiagnosis":{"file_groups":{"util.py":[{"lines":"10 to 10","issue":"foo must be renamed to bar"}]}}}`)), env),
		Applier: agents.NewEditApplier(runtime(
			toolCall(agentloop.ToolReplace, map[string]string{"file_path": "util.py", "old_str": "def foo(", "new_str": "def bar("}),
			say("Renamed foo to bar."),
		), env, true),
		Evaluator: evaluation.NewRunner(env, evaluation.Config{
			Dir:         root,
			TestCommand: `grep -q "def bar(" util.py`,
		}, nil),
		Interpreter: agents.NewErrorInterpreter(runtime()),
		Record:      NewIssueRecord(issue),
	}

	outcome, err := NewController(opts).Run(context.Background(), NewRunContext("rename function foo to bar in util.py", 1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, 1, outcome.PatchNumber)
	assert.Equal(t, "rename function foo to bar in util.py", outcome.Task)
	assert.Equal(t, "Rename function foo to bar in util.py", outcome.Goal)

	data, err := os.ReadFile(util)
	require.NoError(t, err)
	assert.Contains(t, string(data), "def bar():")

	record, err := opts.Record.Read()
	require.NoError(t, err)
	assert.Equal(t, "rename function foo to bar in util.py\n", record)
}

func TestFailingPatchScenarioEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "util.py"), []byte("def foo():\n    return 1\n"), 0o644))
	issue := filepath.Join(t.TempDir(), "issue.md")
	require.NoError(t, os.WriteFile(issue, []byte("make foo return 3\n"), 0o644))

	diagnosis := `{"file_groups":{"util.py":[{"lines":"2 to 2","issue":"foo returns the wrong value"}]}}`
	edit := func(from, to string) *unifiedllm.Response {
		return toolCall(agentloop.ToolReplace, map[string]string{"file_path": "util.py", "old_str": from, "new_str": to})
	}
	summary := `{"errorRootCause": "foo returns the wrong value", "suggestedFix": "return 3"}`

	env := agentloop.NewLocalExecutionEnvironment(root)
	opts := Options{
		Goals:     agents.NewGoalExtractor(runtime(say("Make foo return 3")), env),
		Diagnoser: agents.NewDiagnoser(runtime(say(diagnosis), say(diagnosis), say(diagnosis)), env),
		Applier: agents.NewEditApplier(runtime(
			edit("return 1", "return 2"), say("done"),
			edit("return 2", "return 4"), say("done"),
			edit("return 4", "return 3"), say("done"),
		), env, true),
		Evaluator: evaluation.NewRunner(env, evaluation.Config{
			Dir:         root,
			TestCommand: `grep -q "return 3" util.py || { echo "AssertionError: foo() != 3" >&2; exit 1; }`,
		}, nil),
		Interpreter: agents.NewErrorInterpreter(runtime(say(summary), say(summary))),
		Record:      NewIssueRecord(issue),
	}

	outcome, err := NewController(opts).Run(context.Background(), NewRunContext("make foo return 3", 1))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, 3, outcome.Iterations)
	assert.Equal(t, 3, outcome.PatchNumber)

	record, err := opts.Record.Read()
	require.NoError(t, err)
	assert.Contains(t, record, "ERROR ON PATH NUMBER 1 \n")
	assert.Contains(t, record, "ERROR ON PATH NUMBER 2 \n")
	assert.NotContains(t, record, "ERROR ON PATH NUMBER 3")
	assert.Contains(t, outcome.Task, "The patch number 2 failed, refer to "+issue)
}
