package unifiedllm

// ModelInfo describes a known model.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	ContextWindow int      `json:"context_window"`
	SupportsTools bool     `json:"supports_tools"`
	Aliases       []string `json:"aliases,omitempty"`
}

// DefaultContextWindow is assumed for models missing from the catalog.
const DefaultContextWindow = 128000

// Models is the built-in model catalog. The first entry per provider is its
// default model.
var Models = []ModelInfo{
	{ID: "gpt-4.1", Provider: "openai", ContextWindow: 1047576, SupportsTools: true, Aliases: []string{"gpt4.1"}},
	{ID: "gpt-4.1-mini", Provider: "openai", ContextWindow: 1047576, SupportsTools: true},
	{ID: "gpt-4o", Provider: "openai", ContextWindow: 128000, SupportsTools: true},
	{ID: "gpt-4o-mini", Provider: "openai", ContextWindow: 128000, SupportsTools: true},
	{ID: "o4-mini", Provider: "openai", ContextWindow: 200000, SupportsTools: true},

	{ID: "claude-sonnet-4-5", Provider: "anthropic", ContextWindow: 200000, SupportsTools: true, Aliases: []string{"sonnet"}},
	{ID: "claude-opus-4-1", Provider: "anthropic", ContextWindow: 200000, SupportsTools: true, Aliases: []string{"opus"}},
	{ID: "claude-3-5-haiku-latest", Provider: "anthropic", ContextWindow: 200000, SupportsTools: true, Aliases: []string{"haiku"}},
}

// GetModelInfo returns the catalog entry for a model id or alias, or nil.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// DefaultModel returns the default model id for a provider, or "" if the
// provider is unknown.
func DefaultModel(provider string) string {
	for _, m := range Models {
		if m.Provider == provider {
			return m.ID
		}
	}
	return ""
}

// ContextWindow returns the context window for a model, falling back to
// DefaultContextWindow.
func ContextWindow(modelID string) int {
	if info := GetModelInfo(modelID); info != nil {
		return info.ContextWindow
	}
	return DefaultContextWindow
}
