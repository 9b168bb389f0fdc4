// Package evaluation runs the project's test suite against the working
// copy and reports whether the current patch passes.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/martinemde/patchloop/agentloop"
)

// Executor runs shell commands under an explicit timeout.
// agentloop.LocalExecutionEnvironment satisfies it.
type Executor interface {
	ExecWithTimeout(ctx context.Context, command, dir string, timeout time.Duration) (*agentloop.ExecResult, error)
}

// Config describes how to run the tests.
type Config struct {
	// Dir is the directory the tests run in.
	Dir string
	// ActivateCommand is sourced before the tests, e.g. "venv/bin/activate".
	// Empty skips activation.
	ActivateCommand string
	TestCommand     string
	// Timeout bounds one run. Zero means no limit; the agents' exec
	// timeout does not apply.
	Timeout time.Duration
}

// Result is the outcome of one evaluation.
type Result struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner evaluates the codebase by running the configured test command.
type Runner struct {
	exec   Executor
	cfg    Config
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger discards logs.
func NewRunner(exec Executor, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{exec: exec, cfg: cfg, logger: logger}
}

// Command returns the shell command the runner executes.
func (r *Runner) Command() string {
	parts := []string{"cd " + shellQuote(r.cfg.Dir)}
	if strings.TrimSpace(r.cfg.ActivateCommand) != "" {
		parts = append(parts, ". "+r.cfg.ActivateCommand)
	}
	parts = append(parts, r.cfg.TestCommand)
	return strings.Join(parts, " && ")
}

// shellQuote wraps s in single quotes so bash takes it literally.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Run executes the tests once. A non-zero exit or a timeout is a failed
// Result, not an error; err is reserved for cancellation and for commands
// that could not be started.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if strings.TrimSpace(r.cfg.TestCommand) == "" {
		return nil, errors.New("evaluation: no test command configured")
	}
	command := r.Command()
	r.logger.Info("running evaluation", "dir", r.cfg.Dir, "command", command)

	start := time.Now()
	res, err := r.exec.ExecWithTimeout(ctx, command, "", r.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("evaluation: %w", err)
	}
	result := &Result{
		Success:  res.Success(),
		Output:   res.Output(),
		TimedOut: res.TimedOut,
		Duration: time.Since(start),
	}
	if res.TimedOut && !strings.Contains(result.Output, "timed out") {
		result.Output += fmt.Sprintf("\n[evaluation timed out after %s]", r.cfg.Timeout)
	}

	r.logger.Info("evaluation finished",
		"success", result.Success,
		"timed_out", result.TimedOut,
		"exit_code", res.ExitCode,
		"duration", result.Duration)
	r.logger.Debug("evaluation output", "output", result.Output)
	return result, nil
}
