package agentloop

import "github.com/martinemde/patchloop/unifiedllm"

// Profile configures one agent role: which model it talks to, what it is
// told, and which tools it may call.
type Profile struct {
	Role         string
	Model        string
	Provider     string
	Instructions string
	Tools        *ToolRegistry
	// MaxSteps bounds the tool rounds of a single Submit.
	MaxSteps int
	// ParallelTools runs the tool calls of one round concurrently. Only
	// safe for read-only tool sets.
	ParallelTools bool
	Temperature   *float64
}

// DefaultMaxSteps is used when a profile leaves MaxSteps unset.
const DefaultMaxSteps = 25

func (p Profile) maxSteps() int {
	if p.MaxSteps > 0 {
		return p.MaxSteps
	}
	return DefaultMaxSteps
}

func (p Profile) registry() *ToolRegistry {
	if p.Tools == nil {
		return NewToolRegistry()
	}
	return p.Tools
}

// ContextWindow returns the context window of the profile's model.
func (p Profile) ContextWindow() int {
	return unifiedllm.ContextWindow(p.Model)
}
