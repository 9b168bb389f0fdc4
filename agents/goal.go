package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/patchloop/agentloop"
)

// MaxGoalWords bounds the length of an extracted goal.
const MaxGoalWords = 20

const goalInstructions = `Extract a concise goal (maximum 20 words) from the issue description.
Name any method, command or class the issue mentions explicitly in the goal.

Example issue: Add a silent mode to the data-clean command for use in automated scripts. Currently the command outputs detailed logs by default, which clutters the console during automated runs.
Example goal: Implement a silent mode for data-clean to suppress logs during automated script executions.

Do not try to fix the issue or investigate it. Only read the issue description itself, never the source code. Answer with the goal only.`

// GoalExtractor reduces an issue to a short actionable goal. It may only
// list directories and read files, so it can open the issue file but has
// no search or write tools.
type GoalExtractor struct {
	rt    Runtime
	env   agentloop.ReadOnlyEnvironment
	tools *agentloop.ToolRegistry
}

// NewGoalExtractor creates a goal extractor over env.
func NewGoalExtractor(rt Runtime, env agentloop.ReadOnlyEnvironment) *GoalExtractor {
	reg := agentloop.NewToolRegistry()
	agentloop.RegisterReadOnlyTools(reg, env)
	return &GoalExtractor{
		rt:    rt,
		env:   env,
		tools: reg.Subset(agentloop.ToolListDir, agentloop.ToolReadFile),
	}
}

// Extract returns the goal for task. An empty answer yields ErrEmptyGoal.
func (g *GoalExtractor) Extract(ctx context.Context, task string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("%s: task: %w", RoleGoal, ErrMissingInput)
	}
	session := g.rt.newSession(g.rt.profile(RoleGoal, goalInstructions, g.tools), g.env)
	reply, err := session.Submit(ctx, task)
	if err != nil {
		return "", err
	}
	goal := TruncateWords(strings.TrimSpace(reply.Text), MaxGoalWords)
	if goal == "" {
		return "", ErrEmptyGoal
	}
	g.rt.logger().Debug("goal extracted", "goal", goal, "rounds", reply.Rounds)
	return goal, nil
}

// TruncateWords keeps the first n whitespace separated words of s.
func TruncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
