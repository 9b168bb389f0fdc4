// Package agentloop runs a single agent role against a codebase.
//
// Capabilities are split by interface. ReadOnlyEnvironment covers
// inspection (ls, cat, search); WriteEnvironment adds exec, append,
// create, replace and diff. Tools are bound to a capability when they are
// registered, so a registry built from a ReadOnlyEnvironment cannot mutate
// anything:
//
//	env := agentloop.NewLocalExecutionEnvironment("/path/to/project")
//	reg := agentloop.NewToolRegistry()
//	agentloop.RegisterReadOnlyTools(reg, env)
//
// Replace is the single-span text replacement primitive behind the
// replace-text tool. SingleLineEditor wraps a WriteEnvironment and rejects
// replacements that touch more than one line.
//
// A Session holds one conversation for a Profile. Submit runs the tool loop
// on top of unifiedllm.Client.Complete and returns a Reply listing the tool
// calls it made, which callers use to tell whether anything was edited.
package agentloop
