package agents

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/martinemde/patchloop/agentloop"
	"github.com/martinemde/patchloop/unifiedllm"
)

// scriptedAdapter replays responses in order and records every request.
type scriptedAdapter struct {
	mu        sync.Mutex
	responses []*unifiedllm.Response
	requests  []unifiedllm.Request
}

func (a *scriptedAdapter) Name() string { return "openai" }

func (a *scriptedAdapter) Complete(_ context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if len(a.responses) == 0 {
		return text(""), nil
	}
	resp := a.responses[0]
	a.responses = a.responses[1:]
	return resp, nil
}

func (a *scriptedAdapter) toolNames(i int) []string {
	var names []string
	for _, def := range a.requests[i].ToolDefs {
		names = append(names, def.Name)
	}
	return names
}

func text(s string) *unifiedllm.Response {
	return &unifiedllm.Response{
		Message:      unifiedllm.AssistantMessage(s),
		FinishReason: unifiedllm.FinishReason{Reason: "stop"},
	}
}

func call(name, args string) *unifiedllm.Response {
	return &unifiedllm.Response{
		Message: unifiedllm.Message{Role: unifiedllm.RoleAssistant, Content: []unifiedllm.ContentPart{
			unifiedllm.ToolCallPart("call-"+name, name, json.RawMessage(args)),
		}},
		FinishReason: unifiedllm.FinishReason{Reason: "tool_calls"},
	}
}

func newRuntime(responses ...*unifiedllm.Response) (Runtime, *scriptedAdapter) {
	adapter := &scriptedAdapter{responses: responses}
	return Runtime{
		Client:     unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter)),
		Model:      "gpt-4.1",
		ResourceID: "issue.md",
	}, adapter
}

// newProject lays out a small python project with a failing rename.
func newProject(t *testing.T) (*agentloop.LocalExecutionEnvironment, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "util.py"), []byte("def foo():\n    return 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "issue.md"), []byte("rename function foo to bar in util.py\n"), 0o644))
	return agentloop.NewLocalExecutionEnvironment(root), root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// lastUserText returns the text of the last user message of request i.
func lastUserText(a *scriptedAdapter, i int) string {
	msgs := a.requests[i].Messages
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role == unifiedllm.RoleUser {
			return msgs[j].TextContent()
		}
	}
	return ""
}
