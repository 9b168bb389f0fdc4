package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/patchloop/config"
	"github.com/martinemde/patchloop/workflow"
)

type runOptions struct {
	task          string
	resume        bool
	metricsAddr   string
	stateFile     string
	maxIterations int
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the patch loop",
		Long: `Runs the patch loop against the configured project until the tests pass,
the iteration ceiling is reached or the edit applier stops making progress.

The task defaults to the content of the issue file. Use --resume to continue
from the state file written by a previous run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, opts.apply)
			if err != nil {
				return err
			}
			defer a.close()

			rc, runID, err := opts.context(a)
			if err != nil {
				return err
			}
			_, err = a.runLoop(cmd.Context(), rc, runID)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.task, "task", "", "task text (default: issue file content)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "resume from the state file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.stateFile, "state-file", "", "write run state to this file")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "override limits.max_iterations")
	cmd.MarkFlagsMutuallyExclusive("task", "resume")
	return cmd
}

// apply lays flag overrides over the loaded config.
func (o *runOptions) apply(cfg *config.Config) {
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.stateFile != "" {
		cfg.StateFile = o.stateFile
	}
	if o.maxIterations > 0 {
		cfg.Limits.MaxIterations = o.maxIterations
	}
}

func (o *runOptions) context(a *app) (*workflow.RunContext, string, error) {
	if o.resume {
		if a.cfg.StateFile == "" {
			return nil, "", errors.New("--resume needs a state file (state_file or --state-file)")
		}
		s, err := workflow.LoadState(a.cfg.StateFile)
		if err != nil {
			return nil, "", err
		}
		a.logger.Info("resuming run", "run_id", s.RunID, "patch_number", s.PatchNumber)
		return workflow.RestoreRunContext(s), s.RunID, nil
	}

	task := o.task
	if task == "" {
		content, err := workflow.NewIssueRecord(a.cfg.Project.IssueFile).Read()
		if err != nil {
			return nil, "", err
		}
		task = content
	}
	if strings.TrimSpace(task) == "" {
		return nil, "", fmt.Errorf("no task: %s is empty and --task was not given", a.cfg.Project.IssueFile)
	}
	return workflow.NewRunContext(task, 1), "", nil
}
