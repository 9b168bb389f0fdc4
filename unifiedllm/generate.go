package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// GenerateOptions configures a Generate or GenerateObject call.
type GenerateOptions struct {
	Client         *Client
	Model          string
	Provider       string
	Prompt         string    // mutually exclusive with Messages
	Messages       []Message // mutually exclusive with Prompt
	System         string
	Tools          []Tool
	ToolChoice     *ToolChoice
	MaxToolRounds  int // default 1 when tools are present
	StopWhen       StopCondition
	ResponseFormat *ResponseFormat
	Temperature    *float64
	MaxTokens      *int
	Metadata       map[string]string
	MaxRetries     int // transport retries, default 2
	RetryPolicy    *RetryPolicy // overrides MaxRetries when set
	SchemaRetries  int // GenerateObject only: extra attempts after invalid output
}

// Generate is the high-level blocking generation function. It wraps
// Client.Complete with a tool execution loop and transport retries.
func Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	if opts.Prompt != "" && len(opts.Messages) > 0 {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "cannot specify both prompt and messages",
		}}
	}
	if opts.Client == nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "no client configured"}}
	}

	if opts.MaxToolRounds == 0 && len(opts.Tools) > 0 {
		opts.MaxToolRounds = 1
	}

	retryPolicy := DefaultRetryPolicy()
	if opts.MaxRetries > 0 {
		retryPolicy.MaxRetries = opts.MaxRetries
	}
	if opts.RetryPolicy != nil {
		retryPolicy = *opts.RetryPolicy
	}

	messages := opts.Messages
	if opts.Prompt != "" {
		messages = []Message{UserMessage(opts.Prompt)}
	}
	if opts.System != "" {
		messages = append([]Message{SystemMessage(opts.System)}, messages...)
	}

	var toolDefs []ToolDefinition
	toolMap := make(map[string]Tool)
	hasActiveTools := false
	for _, t := range opts.Tools {
		toolDefs = append(toolDefs, t.Definition())
		toolMap[t.Name] = t
		if t.Execute != nil {
			hasActiveTools = true
		}
	}

	var steps []StepResult
	var totalUsage Usage
	conversation := make([]Message, len(messages))
	copy(conversation, messages)

	for round := 0; round <= opts.MaxToolRounds; round++ {
		req := Request{
			Model:          opts.Model,
			Messages:       conversation,
			Provider:       opts.Provider,
			ToolDefs:       toolDefs,
			ToolChoice:     opts.ToolChoice,
			ResponseFormat: opts.ResponseFormat,
			Temperature:    opts.Temperature,
			MaxTokens:      opts.MaxTokens,
			Metadata:       opts.Metadata,
		}

		resp, err := Retry(ctx, retryPolicy, func(ctx context.Context) (*Response, error) {
			return opts.Client.Complete(ctx, req)
		})
		if err != nil {
			return nil, err
		}

		toolCalls := resp.ToolCallsFromResponse()
		var toolResults []ToolResult
		if len(toolCalls) > 0 && resp.FinishReason.Reason == "tool_calls" && hasActiveTools {
			toolResults = executeToolsConcurrently(toolMap, toolCalls)
		}

		steps = append(steps, StepResult{
			Text:         resp.Text(),
			ToolCalls:    toolCalls,
			ToolResults:  toolResults,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
			Response:     *resp,
		})
		totalUsage = totalUsage.Add(resp.Usage)

		if len(toolCalls) == 0 || resp.FinishReason.Reason != "tool_calls" {
			break
		}
		if !hasActiveTools || round >= opts.MaxToolRounds {
			break
		}
		if opts.StopWhen != nil && opts.StopWhen(steps) {
			break
		}

		conversation = append(conversation, resp.Message)
		for _, result := range toolResults {
			contentBytes, _ := json.Marshal(result.Content)
			conversation = append(conversation, ToolResultMessage(result.ToolCallID, string(contentBytes), result.IsError))
		}
	}

	last := steps[len(steps)-1]
	return &GenerateResult{
		Text:         last.Text,
		ToolCalls:    last.ToolCalls,
		ToolResults:  last.ToolResults,
		FinishReason: last.FinishReason,
		Usage:        last.Usage,
		TotalUsage:   totalUsage,
		Steps:        steps,
		Response:     last.Response,
	}, nil
}

func executeToolsConcurrently(toolMap map[string]Tool, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc ToolCall) {
			defer wg.Done()

			tool, ok := toolMap[tc.Name]
			if !ok || tool.Execute == nil {
				results[idx] = ToolResult{ToolCallID: tc.ID, Content: fmt.Sprintf("Unknown tool: %s", tc.Name), IsError: true}
				return
			}
			output, err := tool.Execute(tc.Arguments)
			if err != nil {
				results[idx] = ToolResult{ToolCallID: tc.ID, Content: fmt.Sprintf("Tool execution error: %v", err), IsError: true}
				return
			}
			results[idx] = ToolResult{ToolCallID: tc.ID, Content: output}
		}(i, call)
	}

	wg.Wait()
	return results
}

// GenerateObject requests JSON output matching schema and decodes it into a
// value of type T. When validate is non-nil it runs on the decoded value.
// Output that fails to decode or validate is fed back to the model and
// retried up to opts.SchemaRetries times before a NoObjectGeneratedError is
// returned.
func GenerateObject[T any](ctx context.Context, opts GenerateOptions, schema map[string]interface{}, validate func(T) error) (T, *GenerateResult, error) {
	var zero T

	opts.ResponseFormat = &ResponseFormat{Type: "json_schema", Name: "output", JSONSchema: schema, Strict: true}
	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	instruction := fmt.Sprintf(
		"\nYou must respond with valid JSON matching this schema:\n```json\n%s\n```\nRespond ONLY with the JSON object, no other text.",
		string(schemaJSON),
	)
	if opts.System != "" {
		opts.System += instruction
	} else {
		opts.System = strings.TrimPrefix(instruction, "\n")
	}

	messages := opts.Messages
	if opts.Prompt != "" {
		messages = []Message{UserMessage(opts.Prompt)}
		opts.Prompt = ""
	}

	attempts := opts.SchemaRetries + 1
	var lastErr error
	var lastText string
	for attempt := 1; attempt <= attempts; attempt++ {
		opts.Messages = messages
		result, err := Generate(ctx, opts)
		if err != nil {
			return zero, nil, err
		}
		lastText = result.Text

		value, parseErr := decodeObject[T](result.Text)
		if parseErr == nil && validate != nil {
			parseErr = validate(value)
		}
		if parseErr == nil {
			result.Output = value
			return value, result, nil
		}

		lastErr = parseErr
		messages = append(append([]Message{}, messages...),
			AssistantMessage(result.Text),
			UserMessage(fmt.Sprintf("Your previous response was rejected: %v. Respond again with ONLY a JSON object matching the schema.", parseErr)),
		)
	}

	return zero, nil, &NoObjectGeneratedError{
		SDKError: SDKError{Message: "failed to generate a valid structured output", Cause: lastErr},
		Raw:      lastText,
		Attempts: attempts,
	}
}

func decodeObject[T any](text string) (T, error) {
	var value T
	raw := ExtractJSON(text)
	if raw == "" {
		return value, fmt.Errorf("no JSON object found in output")
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, fmt.Errorf("invalid JSON: %w", err)
	}
	return value, nil
}

// ExtractJSON returns the outermost JSON object in text, tolerating markdown
// code fences and surrounding prose. It returns "" when no object is present.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
