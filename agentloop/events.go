package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventUserInput        EventKind = "user_input"
	EventAssistantTextEnd EventKind = "assistant_text_end"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallEnd      EventKind = "tool_call_end"
	EventTurnLimit        EventKind = "turn_limit"
	EventLoopDetection    EventKind = "loop_detection"
	EventWarning          EventKind = "warning"
	EventError            EventKind = "error"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Role      string                 `json:"role"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Observer receives session events. It is called synchronously, one event at
// a time, and must not block for long.
type Observer func(SessionEvent)

// EventEmitter stamps events and hands them to an observer. A nil observer
// drops everything.
type EventEmitter struct {
	sessionID string
	role      string
	observer  Observer
	mu        sync.Mutex
}

// NewEventEmitter creates an emitter for one session.
func NewEventEmitter(sessionID, role string, observer Observer) *EventEmitter {
	return &EventEmitter{sessionID: sessionID, role: role, observer: observer}
}

// Emit delivers an event to the observer.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	if e == nil || e.observer == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer(SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Role:      e.role,
		Data:      data,
	})
}
