package agentloop

import (
	"time"

	"github.com/martinemde/patchloop/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSteering    TurnKind = "steering"
)

// Turn is a single entry in the conversation history. Exactly one of the
// payload fields matches Kind.
type Turn struct {
	Kind        TurnKind         `json:"kind"`
	Timestamp   time.Time        `json:"timestamp"`
	Text        string           `json:"text,omitempty"`
	Assistant   *AssistantTurn   `json:"assistant,omitempty"`
	ToolResults []ToolResultText `json:"tool_results,omitempty"`
}

// AssistantTurn holds the model's response.
type AssistantTurn struct {
	Content    string                `json:"content"`
	ToolCalls  []unifiedllm.ToolCall `json:"tool_calls,omitempty"`
	Usage      unifiedllm.Usage      `json:"usage"`
	ResponseID string                `json:"response_id,omitempty"`
}

// ToolResultText is a tool result already rendered for the model.
type ToolResultText struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(content string) Turn {
	return Turn{Kind: TurnUser, Timestamp: time.Now(), Text: content}
}

// NewAssistantTurn creates a Turn from a model response.
func NewAssistantTurn(resp *unifiedllm.Response) Turn {
	return Turn{
		Kind:      TurnAssistant,
		Timestamp: time.Now(),
		Text:      resp.Text(),
		Assistant: &AssistantTurn{
			Content:    resp.Text(),
			ToolCalls:  resp.ToolCallsFromResponse(),
			Usage:      resp.Usage,
			ResponseID: resp.ID,
		},
	}
}

// NewToolResultsTurn creates a Turn wrapping tool results.
func NewToolResultsTurn(results []ToolResultText) Turn {
	return Turn{Kind: TurnToolResults, Timestamp: time.Now(), ToolResults: results}
}

// NewSteeringTurn creates a Turn wrapping a steering message.
func NewSteeringTurn(content string) Turn {
	return Turn{Kind: TurnSteering, Timestamp: time.Now(), Text: content}
}

// ConvertHistoryToMessages converts the turn-based history into LLM messages.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	var messages []unifiedllm.Message
	for _, turn := range history {
		switch turn.Kind {
		case TurnUser:
			messages = append(messages, unifiedllm.UserMessage(turn.Text))
		case TurnAssistant:
			if turn.Assistant == nil {
				continue
			}
			msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
			if turn.Assistant.Content != "" {
				msg.Content = append(msg.Content, unifiedllm.TextPart(turn.Assistant.Content))
			}
			for _, tc := range turn.Assistant.ToolCalls {
				msg.Content = append(msg.Content, unifiedllm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
			}
			messages = append(messages, msg)
		case TurnToolResults:
			for _, result := range turn.ToolResults {
				messages = append(messages, unifiedllm.ToolResultMessage(result.ToolCallID, result.Content, result.IsError))
			}
		case TurnSteering:
			// Sent as user messages so the model treats them as instructions.
			messages = append(messages, unifiedllm.UserMessage(turn.Text))
		}
	}
	return messages
}
