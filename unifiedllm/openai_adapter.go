package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to the Chat Completions API through go-openai and maps
// native tool calls onto the unified message model.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter creates an adapter for apiKey. A non-empty baseURL points
// the client at a compatible endpoint.
func NewOpenAIAdapter(apiKey, baseURL, model string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel("openai")
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends a single chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	creq, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			SDKError: SDKError{Message: "response contained no choices"},
			Provider: a.Name(),
		}
	}

	choice := resp.Choices[0]
	var parts []ContentPart
	if choice.Message.Content != "" {
		parts = append(parts, TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		parts = append(parts, ToolCallPart(tc.ID, tc.Function.Name, args))
	}

	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Provider:     a.Name(),
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) translateRequest(req Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	creq := openai.ChatCompletionRequest{Model: model}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleSystem, Content: msg.TextContent(),
			})
		case RoleUser:
			creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser, Content: msg.TextContent(),
			})
		case RoleAssistant:
			out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.TextContent()}
			for _, tc := range msg.ToolCalls() {
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			creq.Messages = append(creq.Messages, out)
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				var content string
				if err := json.Unmarshal(part.ToolResult.Content, &content); err != nil {
					content = string(part.ToolResult.Content)
				}
				creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: part.ToolResult.ToolCallID,
				})
			}
		default:
			return creq, &InvalidRequestError{ProviderError: ProviderError{
				SDKError: SDKError{Message: fmt.Sprintf("unsupported role %q", msg.Role)},
				Provider: a.Name(),
			}}
		}
	}

	for _, def := range req.ToolDefs {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	if req.ToolChoice != nil && len(creq.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case "named":
			creq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.ToolName},
			}
		default:
			creq.ToolChoice = req.ToolChoice.Mode
		}
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type != "" && req.ResponseFormat.Type != "text" {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		creq.MaxTokens = *req.MaxTokens
	}
	if thread := req.Metadata[MetadataThreadID]; thread != "" {
		creq.User = thread
	}
	return creq, nil
}

func mapFinishReason(fr openai.FinishReason) FinishReason {
	raw := string(fr)
	switch fr {
	case openai.FinishReasonStop:
		return FinishReason{Reason: "stop", Raw: raw}
	case openai.FinishReasonLength:
		return FinishReason{Reason: "length", Raw: raw}
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return FinishReason{Reason: "tool_calls", Raw: raw}
	case openai.FinishReasonContentFilter:
		return FinishReason{Reason: "content_filter", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

func (a *OpenAIAdapter) translateError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &RequestTimeoutError{SDKError: SDKError{Message: err.Error(), Cause: err}}
		}
		return &AbortError{SDKError: SDKError{Message: err.Error(), Cause: err}}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, a.Name(), code, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), a.Name(), "", nil)
	}
	return &NetworkError{SDKError: SDKError{Message: err.Error(), Cause: err}}
}
