package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/martinemde/patchloop/unifiedllm"
)

// ToolOutput is what a tool hands back to the session. Value is marshalled
// to JSON for the model. OK is false for soft failures and, on mutating
// tools, for calls that left the codebase unchanged.
type ToolOutput struct {
	Value interface{}
	OK    bool
}

// ToolExecutor runs a tool against the capability it was bound to at
// registration. A returned error is a hard failure (bad arguments, cancelled
// context) and is reported to the model as an error result.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (ToolOutput, error)

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition unifiedllm.ToolDefinition
	Executor   ToolExecutor
	// Mutating marks tools that can change the codebase.
	Mutating bool
}

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []unifiedllm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]unifiedllm.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Subset returns a registry holding only the named tools. Unknown names are
// ignored.
func (r *ToolRegistry) Subset(names ...string) *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewToolRegistry()
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			cloned := *tool
			out.tools[name] = &cloned
		}
	}
	return out
}

// MergeFrom copies all tools from other into this registry.
// Existing tools with the same name are overwritten.
func (r *ToolRegistry) MergeFrom(other *ToolRegistry) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, tool := range other.tools {
		cloned := *tool
		r.tools[name] = &cloned
	}
}

// ParseToolArguments unmarshals tool call arguments into a map.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// requireString returns args[key] or an error naming the missing argument.
func requireString(args map[string]interface{}, key string) (string, error) {
	s, ok := GetStringArg(args, key)
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}
