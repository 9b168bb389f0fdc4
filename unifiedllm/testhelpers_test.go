package unifiedllm

import (
	"context"
	"sync"
)

// mockAdapter replays scripted responses and records every request.
type mockAdapter struct {
	name      string
	mu        sync.Mutex
	responses []*Response
	errs      []error
	requests  []Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return textResponse("done"), nil
}

func textResponse(text string) *Response {
	return &Response{
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop"},
		Usage:        Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2},
	}
}

func toolCallResponse(calls ...ToolCallData) *Response {
	msg := Message{Role: RoleAssistant}
	for _, c := range calls {
		msg.Content = append(msg.Content, ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return &Response{Message: msg, FinishReason: FinishReason{Reason: "tool_calls"}}
}
