// Package workflow drives the patch loop: diagnose the issue (and extract
// the goal once), apply an edit, evaluate it, and on failure interpret the
// error and try again with the failure folded into the task.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/martinemde/patchloop/agents"
	"github.com/martinemde/patchloop/evaluation"
)

// GoalExtractor produces the goal for a task.
type GoalExtractor interface {
	Extract(ctx context.Context, task string) (string, error)
}

// Diagnoser produces a diagnosis report for a task.
type Diagnoser interface {
	Diagnose(ctx context.Context, task string) (*agents.Report, error)
}

// Applier edits the codebase from a report and a goal.
type Applier interface {
	Apply(ctx context.Context, report *agents.Report, goal string) (*agents.ApplyResult, error)
}

// Evaluator runs the tests.
type Evaluator interface {
	Run(ctx context.Context) (*evaluation.Result, error)
}

// Interpreter summarises failing test output.
type Interpreter interface {
	Interpret(ctx context.Context, output string) (*agents.ErrorSummary, error)
}

// Observer is told about every transition of the loop. The goal and
// diagnose steps run concurrently, so implementations must be safe for
// concurrent use.
type Observer interface {
	StepStarted(step Step, iteration int)
	StepFinished(step Step, iteration int, elapsed time.Duration, err error)
	IterationFinished(report IterationReport)
	RunFinished(outcome Outcome, err error)
}

// IterationReport describes one completed iteration.
type IterationReport struct {
	Iteration   int
	PatchNumber int
	Edits       int
	Passed      bool
	Stalled     bool
	Summary     *agents.ErrorSummary
}

// Limits bound the loop.
type Limits struct {
	// MaxIterations is the iteration ceiling. Zero means DefaultMaxIterations.
	MaxIterations int
	// NoProgressThreshold is the number of consecutive applies without a
	// successful edit that ends the run. Zero disables the check.
	NoProgressThreshold int
}

// DefaultMaxIterations is used when Limits.MaxIterations is unset.
const DefaultMaxIterations = 10

// Timeouts bound individual steps. Zero means no limit.
type Timeouts struct {
	Goal      time.Duration
	Diagnose  time.Duration
	Apply     time.Duration
	Evaluate  time.Duration
	Interpret time.Duration
}

// Options configures a Controller.
type Options struct {
	Goals       GoalExtractor
	Diagnoser   Diagnoser
	Applier     Applier
	Evaluator   Evaluator
	Interpreter Interpreter
	Record      *IssueRecord

	Limits   Limits
	Timeouts Timeouts

	// StateFile, when set, receives a RunState snapshot after every
	// iteration.
	StateFile string
	// RunID identifies the run. Empty generates one.
	RunID     string
	Logger    *slog.Logger
	Observers []Observer
}

// Controller runs the loop. One Controller runs one iteration at a time
// against one codebase.
type Controller struct {
	opts   Options
	logger *slog.Logger
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.Limits.MaxIterations <= 0 {
		opts.Limits.MaxIterations = DefaultMaxIterations
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{opts: opts, logger: logger.With("run_id", opts.RunID)}
}

// RunID returns the run identifier.
func (c *Controller) RunID() string { return c.opts.RunID }

// Run iterates until the tests pass or a limit is reached. Fatal step
// errors end the run immediately; the returned Outcome then still reports
// StateIterating.
func (c *Controller) Run(ctx context.Context, rc *RunContext) (outcome Outcome, err error) {
	outcome = Outcome{RunID: c.opts.RunID, State: StateIterating}
	defer func() {
		snap := rc.Snapshot()
		outcome.PatchNumber, outcome.Task, outcome.Goal = snap.PatchNumber, snap.Task, snap.Goal
		c.saveState(rc, outcome)
		for _, o := range c.opts.Observers {
			o.RunFinished(outcome, err)
		}
		if err != nil {
			c.logger.Error("run aborted", "iteration", outcome.Iterations, "error", err)
		} else {
			c.logger.Info("run finished", "state", outcome.State.String(), "reason", outcome.Reason.String(),
				"iterations", outcome.Iterations, "patch_number", outcome.PatchNumber)
		}
	}()

	stalls := 0
	for iteration := 1; ; iteration++ {
		if iteration > c.opts.Limits.MaxIterations {
			outcome.State, outcome.Reason = StateExhausted, ExitReasonMaxIterations
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		outcome.Iterations = iteration

		report, err := c.iterate(ctx, rc, iteration)
		if err != nil {
			return outcome, err
		}
		for _, o := range c.opts.Observers {
			o.IterationFinished(report)
		}

		if report.Passed {
			outcome.State, outcome.Reason = StateSucceeded, ExitReasonTestsPassed
			return outcome, nil
		}
		if report.Stalled {
			stalls++
		} else {
			stalls = 0
		}
		c.saveState(rc, outcome)
		if t := c.opts.Limits.NoProgressThreshold; t > 0 && stalls >= t {
			outcome.State, outcome.Reason = StateExhausted, ExitReasonNoProgress
			return outcome, nil
		}
	}
}

// iterate runs one Diagnose, Apply, Evaluate pass and, on failure, folds
// the interpreted error into the run context.
func (c *Controller) iterate(ctx context.Context, rc *RunContext, iteration int) (IterationReport, error) {
	snap := rc.Snapshot()
	report := IterationReport{Iteration: iteration, PatchNumber: snap.PatchNumber}
	log := c.logger.With("iteration", iteration, "patch_number", snap.PatchNumber)
	log.Info("iteration started")

	diagnosis, goal, err := c.plan(ctx, rc, snap, iteration)
	if err != nil {
		return report, err
	}

	var applied *agents.ApplyResult
	err = c.step(ctx, StepApply, iteration, c.opts.Timeouts.Apply, func(ctx context.Context) error {
		var err error
		applied, err = c.opts.Applier.Apply(ctx, diagnosis, goal)
		return err
	})
	if err != nil {
		return report, err
	}
	report.Edits = applied.Edits
	report.Stalled = applied.Edits == 0
	if report.Stalled {
		log.Warn("apply made no edits")
	}

	result, err := c.evaluate(ctx, iteration)
	if err != nil {
		return report, err
	}
	if result.Success {
		report.Passed = true
		log.Info("evaluation passed")
		return report, nil
	}
	log.Info("evaluation failed", "timed_out", result.TimedOut)

	var summary *agents.ErrorSummary
	err = c.step(ctx, StepInterpret, iteration, c.opts.Timeouts.Interpret, func(ctx context.Context) error {
		var err error
		summary, err = c.opts.Interpreter.Interpret(ctx, result.Output)
		return err
	})
	if err != nil {
		return report, err
	}
	report.Summary = summary

	if err := c.opts.Record.AppendFailure(snap.PatchNumber, summary.RootCause, summary.SuggestedFix); err != nil {
		return report, err
	}
	issuePath := c.opts.Record.Path()
	rc.recordFailure(func(patch int) string {
		if report.Stalled {
			return fmt.Sprintf("The patch number %d failed and no edit was applied, refer to %s to see the error of the patch \n", patch, issuePath)
		}
		return fmt.Sprintf("The patch number %d failed, refer to %s to see the error of the patch \n", patch, issuePath)
	})
	return report, nil
}

// plan runs Diagnose and, when no goal is known yet, ExtractGoal
// concurrently, and returns once both are done.
func (c *Controller) plan(ctx context.Context, rc *RunContext, snap Snapshot, iteration int) (*agents.Report, string, error) {
	var diagnosis *agents.Report
	goal := snap.Goal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.step(gctx, StepDiagnose, iteration, c.opts.Timeouts.Diagnose, func(ctx context.Context) error {
			var err error
			diagnosis, err = c.opts.Diagnoser.Diagnose(ctx, snap.Task)
			return err
		})
	})
	if goal == "" {
		g.Go(func() error {
			return c.step(gctx, StepGoal, iteration, c.opts.Timeouts.Goal, func(ctx context.Context) error {
				extracted, err := c.opts.Goals.Extract(ctx, snap.Task)
				if errors.Is(err, agents.ErrEmptyGoal) {
					extracted = firstLine(snap.Task)
					c.logger.Warn("goal extraction returned nothing, using the first line of the task", "goal", extracted)
					err = nil
				}
				goal = extracted
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	if snap.Goal == "" {
		rc.setGoal(goal)
	}
	return diagnosis, goal, nil
}

// evaluate runs the tests. Running out of time is a failed evaluation,
// not an error.
func (c *Controller) evaluate(ctx context.Context, iteration int) (*evaluation.Result, error) {
	var result *evaluation.Result
	err := c.step(ctx, StepEvaluate, iteration, c.opts.Timeouts.Evaluate, func(ctx context.Context) error {
		var err error
		result, err = c.opts.Evaluator.Run(ctx)
		return err
	})
	var timeout *StepTimeoutError
	if errors.As(err, &timeout) {
		return &evaluation.Result{
			Output:   fmt.Sprintf("evaluation timed out after %s", timeout.Timeout),
			TimedOut: true,
			Duration: timeout.Timeout,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// step runs fn under the step timeout and notifies observers. A deadline
// hit by the step's own timeout becomes a *StepTimeoutError.
func (c *Controller) step(ctx context.Context, step Step, iteration int, timeout time.Duration, fn func(context.Context) error) error {
	for _, o := range c.opts.Observers {
		o.StepStarted(step, iteration)
	}
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	err := fn(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = &StepTimeoutError{Step: step, Timeout: timeout, Err: err}
	}
	if err != nil && !errors.As(err, new(*StepTimeoutError)) {
		err = fmt.Errorf("%s step: %w", step, err)
	}
	elapsed := time.Since(start)
	for _, o := range c.opts.Observers {
		o.StepFinished(step, iteration, elapsed, err)
	}
	c.logger.Debug("step finished", "step", string(step), "iteration", iteration, "elapsed", elapsed, "error", err)
	return err
}

func (c *Controller) saveState(rc *RunContext, outcome Outcome) {
	if c.opts.StateFile == "" {
		return
	}
	snap := rc.Snapshot()
	s := &RunState{
		RunID:       outcome.RunID,
		State:       outcome.State.String(),
		Iteration:   outcome.Iterations,
		PatchNumber: snap.PatchNumber,
		Goal:        snap.Goal,
		Task:        snap.Task,
		UpdatedAt:   time.Now().UTC(),
	}
	if outcome.Reason != ExitReasonNone {
		s.Reason = outcome.Reason.String()
	}
	if err := SaveState(c.opts.StateFile, s); err != nil {
		c.logger.Warn("could not save run state", "path", c.opts.StateFile, "error", err)
	}
}

func firstLine(task string) string {
	for _, line := range strings.Split(task, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
