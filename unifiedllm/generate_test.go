package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestGenerateRequiresClient(t *testing.T) {
	_, err := Generate(context.Background(), GenerateOptions{Prompt: "hi"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestGeneratePromptAndMessagesExclusive(t *testing.T) {
	client := NewClient(WithProvider("openai", &mockAdapter{name: "openai"}))
	_, err := Generate(context.Background(), GenerateOptions{
		Client:   client,
		Prompt:   "hi",
		Messages: []Message{UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerateSystemPrompt(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{textResponse("ok")}}
	client := NewClient(WithProvider("openai", adapter))

	result, err := Generate(context.Background(), GenerateOptions{Client: client, System: "be brief", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ok" {
		t.Errorf("unexpected text %q", result.Text)
	}
	msgs := adapter.requests[0].Messages
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].TextContent() != "hi" {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestGenerateToolLoop(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{
		toolCallResponse(ToolCallData{ID: "c1", Name: "pwd", Arguments: json.RawMessage(`{}`)}),
		textResponse("you are in /repo"),
	}}
	client := NewClient(WithProvider("openai", adapter))

	calls := 0
	result, err := Generate(context.Background(), GenerateOptions{
		Client: client,
		Prompt: "where am I?",
		Tools: []Tool{{
			Name: "pwd",
			Execute: func(json.RawMessage) (interface{}, error) {
				calls++
				return "/repo", nil
			},
		}},
		MaxToolRounds: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one tool execution, got %d", calls)
	}
	if len(result.Steps) != 2 || result.Text != "you are in /repo" {
		t.Errorf("unexpected result %+v", result)
	}
	second := adapter.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != RoleTool || last.ToolCallID != "c1" {
		t.Errorf("expected tool result message, got %+v", last)
	}
}

func TestGenerateUnknownTool(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{
		toolCallResponse(ToolCallData{ID: "c1", Name: "rm", Arguments: json.RawMessage(`{}`)}),
		textResponse("sorry"),
	}}
	client := NewClient(WithProvider("openai", adapter))

	result, err := Generate(context.Background(), GenerateOptions{
		Client:        client,
		Prompt:        "go",
		Tools:         []Tool{{Name: "pwd", Execute: func(json.RawMessage) (interface{}, error) { return "", nil }}},
		MaxToolRounds: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := result.Steps[0].ToolResults
	if len(tr) != 1 || !tr[0].IsError {
		t.Errorf("expected an error result for the unknown tool, got %+v", tr)
	}
}

func TestGenerateRetriesTransportErrors(t *testing.T) {
	adapter := &mockAdapter{
		name:      "openai",
		errs:      []error{&ServerError{ProviderError: ProviderError{Retryable: true}}},
		responses: []*Response{nil, textResponse("recovered")},
	}
	client := NewClient(WithProvider("openai", adapter))
	policy := fastPolicy(2)

	result, err := Generate(context.Background(), GenerateOptions{Client: client, Prompt: "hi", RetryPolicy: &policy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("unexpected text %q", result.Text)
	}
}

type verdict struct {
	Cause string `json:"cause" jsonschema:"description=Root cause"`
	Fix   string `json:"fix"`
}

func TestGenerateObjectDecodesFencedJSON(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{
		textResponse("```json\n{\"cause\": \"nil map\", \"fix\": \"make it\"}\n```"),
	}}
	client := NewClient(WithProvider("openai", adapter))

	v, result, err := GenerateObject[verdict](context.Background(), GenerateOptions{Client: client, Prompt: "why"}, SchemaFor(verdict{}), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Cause != "nil map" || v.Fix != "make it" {
		t.Errorf("unexpected value %+v", v)
	}
	if result.Output == nil {
		t.Error("expected Output to be set")
	}
	req := adapter.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
		t.Errorf("expected json_schema response format, got %+v", req.ResponseFormat)
	}
	if !strings.Contains(req.Messages[0].TextContent(), "cause") {
		t.Error("expected the schema in the system prompt")
	}
}

func TestGenerateObjectRetriesInvalidOutput(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{
		textResponse("not json"),
		textResponse(`{"cause": "", "fix": "x"}`),
		textResponse(`{"cause": "typo", "fix": "rename"}`),
	}}
	client := NewClient(WithProvider("openai", adapter))
	validate := func(v verdict) error {
		if v.Cause == "" {
			return errors.New("cause is empty")
		}
		return nil
	}

	v, _, err := GenerateObject[verdict](context.Background(), GenerateOptions{Client: client, Prompt: "why", SchemaRetries: 2}, SchemaFor(verdict{}), validate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Cause != "typo" {
		t.Errorf("unexpected value %+v", v)
	}
	if len(adapter.requests) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(adapter.requests))
	}
	third := adapter.requests[2].Messages
	if !strings.Contains(third[len(third)-1].TextContent(), "cause is empty") {
		t.Errorf("expected corrective message, got %q", third[len(third)-1].TextContent())
	}
}

func TestGenerateObjectGivesUp(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{
		textResponse("nope"), textResponse("still nope"),
	}}
	client := NewClient(WithProvider("openai", adapter))

	_, _, err := GenerateObject[verdict](context.Background(), GenerateOptions{Client: client, Prompt: "why", SchemaRetries: 1}, SchemaFor(verdict{}), nil)
	var noObj *NoObjectGeneratedError
	if !errors.As(err, &noObj) {
		t.Fatalf("expected NoObjectGeneratedError, got %v", err)
	}
	if noObj.Attempts != 2 || noObj.Raw != "still nope" {
		t.Errorf("unexpected error detail %+v", noObj)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                    `{"a":1}`,
		"```json\n{\"a\":1}\n```":    `{"a":1}`,
		"Here you go: {\"a\":{}} ok": `{"a":{}}`,
		"no object":                  "",
		"} backwards {":              "",
	}
	for in, want := range cases {
		if got := ExtractJSON(in); got != want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor(verdict{})
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("expected $schema to be stripped")
	}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing properties: %v", schema)
	}
	cause, ok := props["cause"].(map[string]interface{})
	if !ok || cause["description"] != "Root cause" {
		t.Errorf("unexpected cause schema %v", props["cause"])
	}
	required, _ := schema["required"].([]interface{})
	if len(required) != 2 {
		t.Errorf("expected both fields required, got %v", required)
	}
}
