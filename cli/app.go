package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/martinemde/patchloop/agentloop"
	"github.com/martinemde/patchloop/agents"
	"github.com/martinemde/patchloop/config"
	"github.com/martinemde/patchloop/evaluation"
	"github.com/martinemde/patchloop/logging"
	"github.com/martinemde/patchloop/metrics"
	"github.com/martinemde/patchloop/unifiedllm"
	"github.com/martinemde/patchloop/workflow"
)

// clientFactory builds the LLM client. Tests replace it with a scripted one.
var clientFactory = newClient

// app is everything a command needs once the config is loaded.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      io.Writer
	narrator *logging.Narrator
	env      *agentloop.LocalExecutionEnvironment
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	client   *unifiedllm.Client
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = config.DefaultPath(cwd)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

// newApp loads the config, applies mutate (flag overrides) and builds the
// shared pieces.
func newApp(cmd *cobra.Command, opts *globalOptions, mutate func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
		if err := config.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}

	if abs, err := filepath.Abs(cfg.Project.IssueFile); err == nil {
		cfg.Project.IssueFile = abs
	}

	a := &app{
		cfg:      cfg,
		out:      cmd.OutOrStdout(),
		logger:   logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()}),
		registry: prometheus.NewRegistry(),
	}
	if !opts.quiet {
		a.narrator = logging.NewNarrator(a.out)
	}
	a.metrics = metrics.New(a.registry)

	a.env = agentloop.NewLocalExecutionEnvironment(cfg.Project.EvalDir)
	a.env.ExecTimeout = cfg.Tools.ExecTimeout

	client, err := clientFactory(cfg.LLM, a.logger, a.metrics)
	if err != nil {
		return nil, err
	}
	a.client = client
	return a, nil
}

// newClient wires the configured provider adapter behind logging, metrics,
// retry and rate limiting.
func newClient(cfg config.LLM, logger *slog.Logger, m *metrics.Metrics) (*unifiedllm.Client, error) {
	key := cfg.ResolveAPIKey()

	var adapter unifiedllm.ProviderAdapter
	if cfg.UsesGollm() {
		ga, err := unifiedllm.NewGollmAdapter(cfg.Provider, key, unifiedllm.WithModel(cfg.ModelName()))
		if err != nil {
			return nil, err
		}
		adapter = ga
	} else {
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("no API key configured: set OPENAI_API_KEY")
		}
		adapter = unifiedllm.NewOpenAIAdapter(key, cfg.BaseURL, cfg.ModelName())
	}

	policy := unifiedllm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying llm request", "attempt", attempt, "delay", delay, "error", err)
	}

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(
			unifiedllm.LoggingMiddleware(logger),
			m.Middleware(),
			unifiedllm.RetryMiddleware(policy),
			unifiedllm.RateLimitMiddleware(unifiedllm.PerMinuteLimiter(cfg.RequestsPerMinute)),
		),
	), nil
}

func (a *app) close() {
	if err := a.client.Close(); err != nil {
		a.logger.Warn("failed to close llm client", "error", err)
	}
}

func (a *app) runtime() agents.Runtime {
	rt := agents.Runtime{
		Client:        a.client,
		Model:         a.cfg.LLM.ModelName(),
		Provider:      a.cfg.LLM.Provider,
		ResourceID:    a.cfg.Project.IssueFile,
		MaxSteps:      a.cfg.LLM.MaxSteps,
		SchemaRetries: a.cfg.LLM.SchemaRetries,
		Logger:        a.logger,
	}
	if a.narrator != nil {
		rt.Observer = a.narrator.Observe
	}
	return rt
}

func (a *app) evaluator() *evaluation.Runner {
	return evaluation.NewRunner(a.env, evaluation.Config{
		Dir:             a.cfg.Project.EvalDir,
		ActivateCommand: a.cfg.Project.ActivateCommand,
		TestCommand:     a.cfg.Project.TestCommand,
		Timeout:         a.cfg.Timeouts.Evaluate,
	}, a.logger)
}

func (a *app) controller(runID string) *workflow.Controller {
	rt := a.runtime()
	observers := []workflow.Observer{a.metrics}
	if a.narrator != nil {
		observers = append(observers, a.narrator)
	}
	return workflow.NewController(workflow.Options{
		Goals:       agents.NewGoalExtractor(rt, a.env),
		Diagnoser:   agents.NewDiagnoser(rt, a.env),
		Applier:     agents.NewEditApplier(rt, a.env, a.cfg.Tools.SingleLineEdits),
		Evaluator:   a.evaluator(),
		Interpreter: agents.NewErrorInterpreter(rt),
		Record:      workflow.NewIssueRecord(a.cfg.Project.IssueFile),
		Limits: workflow.Limits{
			MaxIterations:       a.cfg.Limits.MaxIterations,
			NoProgressThreshold: a.cfg.Limits.NoProgressThreshold,
		},
		Timeouts: workflow.Timeouts{
			Goal:      a.cfg.Timeouts.Goal,
			Diagnose:  a.cfg.Timeouts.Diagnose,
			Apply:     a.cfg.Timeouts.Apply,
			Evaluate:  a.cfg.Timeouts.Evaluate,
			Interpret: a.cfg.Timeouts.Interpret,
		},
		StateFile: a.cfg.StateFile,
		RunID:     runID,
		Logger:    a.logger,
		Observers: observers,
	})
}

// serveMetrics starts the metrics endpoint when configured. It stops with
// ctx.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.registry, a.logger); err != nil {
			a.logger.Error("metrics server failed", "addr", a.cfg.MetricsAddr, "error", err)
		}
	}()
}

// runLoop drives the controller and turns a run that did not succeed into
// an error so the process exits non-zero.
func (a *app) runLoop(ctx context.Context, rc *workflow.RunContext, runID string) (workflow.Outcome, error) {
	a.serveMetrics(ctx)
	outcome, err := a.controller(runID).Run(ctx, rc)
	if err != nil {
		return outcome, err
	}
	fmt.Fprintf(a.out, "%s after %d iterations (patch number %d)\n", outcome.State, outcome.Iterations, outcome.PatchNumber)
	if outcome.State != workflow.StateSucceeded {
		return outcome, fmt.Errorf("run %s: %s", outcome.RunID, outcome.Reason)
	}
	return outcome, nil
}
