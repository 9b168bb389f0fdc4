package unifiedllm

import (
	"errors"
	"fmt"
	"testing"
)

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		errMsg   string
		expected string
	}{
		{"401 Unauthorized", "*unifiedllm.AuthenticationError"},
		{"invalid api key", "*unifiedllm.AuthenticationError"},
		{"403 Forbidden", "*unifiedllm.AccessDeniedError"},
		{"404 not found", "*unifiedllm.NotFoundError"},
		{"429 rate limit exceeded", "*unifiedllm.RateLimitError"},
		{"context length exceeded", "*unifiedllm.ContextLengthError"},
		{"500 internal server error", "*unifiedllm.ServerError"},
		{"timeout waiting for response", "*unifiedllm.RequestTimeoutError"},
		{"content filter triggered", "*unifiedllm.ContentFilterError"},
		{"something unknown", "*unifiedllm.ProviderError"},
	}

	for _, tt := range tests {
		err := adapter.translateError(errors.New(tt.errMsg))
		if got := fmt.Sprintf("%T", err); got != tt.expected {
			t.Errorf("for %q: expected %s, got %s", tt.errMsg, tt.expected, got)
		}
	}
	if adapter.translateError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestGollmParseToolCalls(t *testing.T) {
	text := `I will list the directory.
[{"name": "ls", "arguments": {"path": "."}}, {"name": "pwd"}]`

	calls, rest := parseToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "ls" || string(calls[0].Arguments) != `{"path": "."}` {
		t.Errorf("unexpected first call %+v", calls[0])
	}
	if string(calls[1].Arguments) != "{}" {
		t.Errorf("expected empty arguments, got %s", calls[1].Arguments)
	}
	if rest != "I will list the directory." {
		t.Errorf("unexpected remainder %q", rest)
	}

	calls, rest = parseToolCalls("plain answer")
	if calls != nil || rest != "plain answer" {
		t.Errorf("expected no calls, got %+v %q", calls, rest)
	}
}

func TestGollmBuildResponse(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai", model: "gpt-4.1"}

	resp := adapter.buildResponse(Request{}, `[{"name": "pwd", "arguments": {}}]`)
	if resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected tool_calls, got %q", resp.FinishReason.Reason)
	}
	if resp.Model != "gpt-4.1" || resp.Provider != "openai" {
		t.Errorf("unexpected model/provider %q/%q", resp.Model, resp.Provider)
	}

	resp = adapter.buildResponse(Request{Model: "gpt-4o"}, "all good")
	if resp.Text() != "all good" || resp.FinishReason.Reason != "stop" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("request model should win, got %q", resp.Model)
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{UserMessage("Hello world, this is a test message.")}}
	if tokens := estimateTokens(req); tokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", tokens)
	}
	if tokens := estimateTokens(Request{}); tokens != 10 {
		t.Errorf("expected default token estimate of 10, got %d", tokens)
	}
}
