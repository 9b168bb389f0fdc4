package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/patchloop/agentloop"
)

// DiagnosePrompt prefixes the task sent to the diagnoser.
const DiagnosePrompt = "I need to fix this issue: "

const diagnoserInstructions = `You are a diagnoser. Analyse the codebase for the issue you are given and locate the code responsible for it. Use the tools to navigate the repository.

Answer with exactly this JSON structure and nothing else:

{
  "ParsedDiagnosis": {
    "file_groups": {
      "path/to/file": [
        {"lines": "X to Y", "issue": "Description of the issue."},
        {"lines": "X to Y", "issue": "Description of another issue."}
      ],
      "path/to/another/file": [
        {"lines": "X to Y", "issue": "Description of the issue."}
      ]
    }
  }
}

Rules:
1. Group issues by file path.
2. Give clear, specific descriptions.
3. "lines" is an inclusive range "X to Y" with X <= Y. Use "N to N" for a single line.
4. Describe each line range at most once per file.
5. Do not create files. Answer directly with the JSON.`

// Diagnoser inspects the codebase with read-only tools and reports where
// the issue lives.
type Diagnoser struct {
	rt    Runtime
	env   agentloop.ReadOnlyEnvironment
	tools *agentloop.ToolRegistry
}

// NewDiagnoser creates a diagnoser over env.
func NewDiagnoser(rt Runtime, env agentloop.ReadOnlyEnvironment) *Diagnoser {
	reg := agentloop.NewToolRegistry()
	agentloop.RegisterReadOnlyTools(reg, env)
	return &Diagnoser{rt: rt, env: env, tools: reg}
}

// Diagnose returns the parsed report for task. Output that does not match
// the report shape is returned as a *FormatError and is not retried.
func (d *Diagnoser) Diagnose(ctx context.Context, task string) (*Report, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("%s: task: %w", RoleDiagnoser, ErrMissingInput)
	}
	profile := d.rt.profile(RoleDiagnoser, diagnoserInstructions, d.tools)
	profile.ParallelTools = true

	reply, err := d.rt.newSession(profile, d.env).Submit(ctx, DiagnosePrompt+task)
	if err != nil {
		return nil, err
	}
	report, err := ParseReport(reply.Text)
	if err != nil {
		return nil, err
	}
	d.rt.logger().Debug("diagnosis parsed", "files", report.FileGroups.Len(), "rounds", reply.Rounds)
	return report, nil
}
