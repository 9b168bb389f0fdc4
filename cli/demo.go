package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinemde/patchloop/workflow"
)

// DemoTask is the seed task used by the demo command.
func DemoTask(issueFile, evalDir string) string {
	return fmt.Sprintf("The %s describe an issue about the project, you store a copy of that project at %s, implement a valid patch that solves this issue", issueFile, evalDir)
}

func newDemoCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the patch loop with the standard seed task",
		Long: `Seeds the run with patch number 1 and a task pointing the agents at the
issue file and the project copy, then runs the patch loop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, nil)
			if err != nil {
				return err
			}
			defer a.close()

			task := DemoTask(a.cfg.Project.IssueFile, a.cfg.Project.EvalDir)
			_, err = a.runLoop(cmd.Context(), workflow.NewRunContext(task, 1), "")
			return err
		},
	}
}
