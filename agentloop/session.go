package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/patchloop/unifiedllm"
)

// ErrSessionClosed is returned by Submit after Close.
var ErrSessionClosed = errors.New("session is closed")

// SessionConfig holds per-session limits.
type SessionConfig struct {
	// ResourceID names the resource the conversation is about (the issue
	// or project). It is sent with every request next to the thread id.
	ResourceID          string
	ToolOutputLimits    map[string]int
	ToolLineLimits      map[string]int
	EnableLoopDetection bool
	LoopDetectionWindow int
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		EnableLoopDetection: true,
		LoopDetectionWindow: 6,
	}
}

// ToolInvocation records one tool call made while handling an input.
type ToolInvocation struct {
	Name     string `json:"name"`
	Mutating bool   `json:"mutating"`
	Success  bool   `json:"success"`
}

// Reply is the outcome of one Submit.
type Reply struct {
	Text            string           `json:"text"`
	Rounds          int              `json:"rounds"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	Usage           unifiedllm.Usage `json:"usage"`
	// HitStepLimit is set when the session stopped at Profile.MaxSteps
	// rather than at a final answer.
	HitStepLimit bool `json:"hit_step_limit,omitempty"`
}

// Edits counts successful calls to mutating tools.
func (r *Reply) Edits() int {
	n := 0
	for _, inv := range r.ToolInvocations {
		if inv.Mutating && inv.Success {
			n++
		}
	}
	return n
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionConfig replaces the default configuration.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) { s.config = cfg }
}

// WithObserver delivers session events to fn.
func WithObserver(fn Observer) SessionOption {
	return func(s *Session) { s.observer = fn }
}

// Session is one conversation between a role and the model. The tool loop
// in Submit interleaves model calls with tool execution until the model
// answers without tool calls or the step limit is reached.
type Session struct {
	id       string
	profile  Profile
	env      ReadOnlyEnvironment
	client   *unifiedllm.Client
	config   SessionConfig
	observer Observer
	emitter  *EventEmitter
	loops    loopDetector
	history  []Turn
	closed   bool
	mu       sync.Mutex
}

// NewSession creates a session. env provides the environment block of the
// system prompt; the tools themselves are bound through profile.Tools.
func NewSession(client *unifiedllm.Client, profile Profile, env ReadOnlyEnvironment, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.New().String(),
		profile: profile,
		env:     env,
		client:  client,
		config:  DefaultSessionConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = NewEventEmitter(s.id, profile.Role, s.observer)
	s.loops = loopDetector{window: s.config.LoopDetectionWindow}
	return s
}

// ID returns the session identifier, used as the thread id.
func (s *Session) ID() string { return s.id }

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Close marks the session closed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) appendTurn(t Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

// Submit sends input to the model and runs the tool loop. Model errors are
// returned as is; tool failures are fed back to the model as results.
func (s *Session) Submit(ctx context.Context, input string) (*Reply, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	s.appendTurn(NewUserTurn(input))
	s.emitter.Emit(EventUserInput, map[string]interface{}{"content": input})

	reply := &Reply{}
	systemPrompt := BuildSystemPrompt(s.profile, s.env)
	toolDefs := s.profile.registry().Definitions()
	maxSteps := s.profile.maxSteps()

	for {
		if reply.Rounds >= maxSteps {
			reply.HitStepLimit = true
			s.emitter.Emit(EventTurnLimit, map[string]interface{}{"rounds": reply.Rounds})
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := unifiedllm.Request{
			Model:       s.profile.Model,
			Provider:    s.profile.Provider,
			Messages:    append([]unifiedllm.Message{unifiedllm.SystemMessage(systemPrompt)}, ConvertHistoryToMessages(s.History())...),
			ToolDefs:    toolDefs,
			Temperature: s.profile.Temperature,
			Metadata: map[string]string{
				unifiedllm.MetadataThreadID:   s.id,
				unifiedllm.MetadataResourceID: s.config.ResourceID,
			},
		}
		if len(toolDefs) > 0 {
			req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
		}

		resp, err := s.client.Complete(ctx, req)
		if err != nil {
			s.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
			return nil, fmt.Errorf("%s: model call failed: %w", s.profile.Role, err)
		}

		turn := NewAssistantTurn(resp)
		s.appendTurn(turn)
		reply.Text = resp.Text()
		reply.Usage = reply.Usage.Add(resp.Usage)
		s.emitter.Emit(EventAssistantTextEnd, map[string]interface{}{"text": reply.Text})
		s.checkContextUsage(resp.Usage)

		calls := turn.Assistant.ToolCalls
		if len(calls) == 0 {
			break
		}

		reply.Rounds++
		results, invocations := s.executeToolCalls(ctx, calls)
		reply.ToolInvocations = append(reply.ToolInvocations, invocations...)
		s.appendTurn(NewToolResultsTurn(results))

		if s.config.EnableLoopDetection {
			for _, tc := range calls {
				s.loops.record(tc.Name, tc.Arguments)
			}
			if s.loops.looping() {
				warning := fmt.Sprintf("Loop detected: the last %d tool calls repeat the same pattern. Try a different approach.", s.loops.window)
				s.loops.sigs = nil
				s.appendTurn(NewSteeringTurn(warning))
				s.emitter.Emit(EventLoopDetection, map[string]interface{}{"message": warning})
			}
		}
	}

	return reply, nil
}

func (s *Session) executeToolCalls(ctx context.Context, calls []unifiedllm.ToolCall) ([]ToolResultText, []ToolInvocation) {
	results := make([]ToolResultText, len(calls))
	invocations := make([]ToolInvocation, len(calls))

	if !s.profile.ParallelTools || len(calls) == 1 {
		for i, tc := range calls {
			results[i], invocations[i] = s.executeSingleTool(ctx, tc)
		}
		return results, invocations
	}

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, call unifiedllm.ToolCall) {
			defer wg.Done()
			results[idx], invocations[idx] = s.executeSingleTool(ctx, call)
		}(i, tc)
	}
	wg.Wait()
	return results, invocations
}

// executeSingleTool runs lookup, execute, truncate and emit for one call.
func (s *Session) executeSingleTool(ctx context.Context, tc unifiedllm.ToolCall) (ToolResultText, ToolInvocation) {
	s.emitter.Emit(EventToolCallStart, map[string]interface{}{
		"tool_name": tc.Name,
		"call_id":   tc.ID,
		"arguments": string(tc.Arguments),
	})

	inv := ToolInvocation{Name: tc.Name}
	fail := func(msg string) (ToolResultText, ToolInvocation) {
		s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
			"tool_name": tc.Name,
			"call_id":   tc.ID,
			"error":     msg,
		})
		return ToolResultText{ToolCallID: tc.ID, Content: msg, IsError: true}, inv
	}

	registered := s.profile.registry().Get(tc.Name)
	if registered == nil {
		return fail(fmt.Sprintf("Unknown tool: %s", tc.Name))
	}
	inv.Mutating = registered.Mutating

	out, err := registered.Executor(ctx, tc.Arguments)
	if err != nil {
		return fail(fmt.Sprintf("Tool error (%s): %v", tc.Name, err))
	}
	raw, err := json.Marshal(out.Value)
	if err != nil {
		return fail(fmt.Sprintf("Tool error (%s): encode result: %v", tc.Name, err))
	}
	inv.Success = out.OK

	full := string(raw)
	s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
		"tool_name": tc.Name,
		"call_id":   tc.ID,
		"success":   out.OK,
		"output":    full,
	})
	return ToolResultText{
		ToolCallID: tc.ID,
		Content:    TruncateToolOutput(full, tc.Name, s.config.ToolOutputLimits, s.config.ToolLineLimits),
	}, inv
}

// checkContextUsage warns when a request used over 80% of the window.
func (s *Session) checkContextUsage(usage unifiedllm.Usage) {
	window := s.profile.ContextWindow()
	if window <= 0 || usage.InputTokens <= window*8/10 {
		return
	}
	s.emitter.Emit(EventWarning, map[string]interface{}{
		"message": fmt.Sprintf("context usage at ~%d%% of the window", usage.InputTokens*100/window),
	})
}
