// Package agents implements the roles of the patch loop: goal extraction,
// diagnosis, edit application, error interpretation and a general chat
// agent. Each role is an agentloop session bound to the tools its
// capability allows.
package agents

import (
	"log/slog"

	"github.com/martinemde/patchloop/agentloop"
	"github.com/martinemde/patchloop/unifiedllm"
)

// Role names, used in logs, events and errors.
const (
	RoleGoal        = "goal-extractor"
	RoleDiagnoser   = "diagnoser"
	RoleApplier     = "edit-applier"
	RoleInterpreter = "error-interpreter"
	RoleChat        = "chat"
)

// Runtime holds what every role needs to reach the model.
type Runtime struct {
	Client   *unifiedllm.Client
	Model    string
	Provider string
	// ResourceID is sent with every request; usually the issue file.
	ResourceID string
	// MaxSteps bounds tool rounds per role invocation. Zero uses the
	// agentloop default.
	MaxSteps int
	// SchemaRetries is the number of corrective retries for structured
	// output.
	SchemaRetries int
	Observer      agentloop.Observer
	Logger        *slog.Logger
}

func (rt Runtime) logger() *slog.Logger {
	if rt.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return rt.Logger
}

func (rt Runtime) profile(role, instructions string, tools *agentloop.ToolRegistry) agentloop.Profile {
	return agentloop.Profile{
		Role:         role,
		Model:        rt.Model,
		Provider:     rt.Provider,
		Instructions: instructions,
		Tools:        tools,
		MaxSteps:     rt.MaxSteps,
	}
}

// newSession starts a fresh conversation, so every invocation gets its own
// thread id.
func (rt Runtime) newSession(p agentloop.Profile, env agentloop.ReadOnlyEnvironment) *agentloop.Session {
	cfg := agentloop.DefaultSessionConfig()
	cfg.ResourceID = rt.ResourceID
	return agentloop.NewSession(rt.Client, p, env,
		agentloop.WithSessionConfig(cfg),
		agentloop.WithObserver(rt.Observer))
}
