package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/patchloop/agentloop"
)

const applierInstructions = `You are the edit applier. Fulfil the goal by reading the diagnosis report and applying fixes to the code it points at.

Rules:
1. Review the diagnosis report carefully.
2. Only edit the files the report names.
3. Every replace-text call changes exactly one line. Never join lines with "\n" in old_str or new_str. For example, replace 'if keyword in task["title"]:' with 'if keyword.lower() in task["title"].lower():'.
4. Finish only after you have made at least one edit.
5. Keep the goal in mind. Make only the changes the goal needs, even if the report lists unrelated problems.`

// applierTools are the tools the edit applier may call on top of the
// read-only set.
var applierTools = []string{
	agentloop.ToolExec,
	agentloop.ToolAppend,
	agentloop.ToolCreate,
	agentloop.ToolReplace,
}

// ApplyResult summarises one Apply.
type ApplyResult struct {
	Text string
	// Edits counts successful calls to mutating tools.
	Edits        int
	Rounds       int
	HitStepLimit bool
}

// EditApplier edits the codebase to reach the goal.
type EditApplier struct {
	rt    Runtime
	env   agentloop.WriteEnvironment
	tools *agentloop.ToolRegistry
}

// NewEditApplier creates an applier over env. When singleLine is set,
// replace-text goes through a SingleLineEditor and multi-line replacements
// are rejected before they reach the file.
func NewEditApplier(rt Runtime, env agentloop.WriteEnvironment, singleLine bool) *EditApplier {
	var writer agentloop.WriteEnvironment = env
	if singleLine {
		writer = agentloop.NewSingleLineEditor(env)
	}
	reg := agentloop.NewToolRegistry()
	agentloop.RegisterReadOnlyTools(reg, env)
	write := agentloop.NewToolRegistry()
	agentloop.RegisterWriteTools(write, writer)
	reg.MergeFrom(write.Subset(applierTools...))
	return &EditApplier{rt: rt, env: env, tools: reg}
}

// Apply asks the model to fix the code described by report toward goal.
func (a *EditApplier) Apply(ctx context.Context, report *Report, goal string) (*ApplyResult, error) {
	if report.Empty() {
		return nil, fmt.Errorf("%s: diagnosis: %w", RoleApplier, ErrMissingInput)
	}
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("%s: goal: %w", RoleApplier, ErrMissingInput)
	}

	input := fmt.Sprintf("Diagnosis report:\n%s\n\nGoal: %s", report.Serialize(), goal)
	reply, err := a.rt.newSession(a.rt.profile(RoleApplier, applierInstructions, a.tools), a.env).Submit(ctx, input)
	if err != nil {
		return nil, err
	}
	result := &ApplyResult{
		Text:         reply.Text,
		Edits:        reply.Edits(),
		Rounds:       reply.Rounds,
		HitStepLimit: reply.HitStepLimit,
	}
	if result.Edits == 0 {
		a.rt.logger().Warn("edit applier finished without editing", "rounds", reply.Rounds)
	}
	return result, nil
}
