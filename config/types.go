package config

import (
	"os"
	"strings"
	"time"

	"github.com/martinemde/patchloop/unifiedllm"
)

// Project describes the codebase under repair and how to test it.
type Project struct {
	// IssueFile holds the issue text; failed patches are appended to it.
	IssueFile string `yaml:"issue_file" env:"ISSUE_FILE_PATH" validate:"required"`
	// EvalDir is the copy of the project that is edited and tested.
	EvalDir         string `yaml:"eval_dir" env:"EVAL_DIRECTORY" validate:"required"`
	TestCommand     string `yaml:"test_command" env:"RUN_TEST_COMMAND" validate:"required"`
	ActivateCommand string `yaml:"activate_command" env:"ACTIVATE_VENV_COMMAND"`
}

// LLM selects and tunes the model provider.
type LLM struct {
	Provider string `yaml:"provider" env:"PATCHLOOP_PROVIDER" validate:"required,oneof=openai anthropic groq mistral ollama openrouter"`
	// Backend picks the client for the openai provider: "native" uses the
	// OpenAI SDK, "gollm" routes through gollm. Other providers always use
	// gollm.
	Backend string `yaml:"backend" env:"PATCHLOOP_BACKEND" validate:"oneof=native gollm"`
	// Model defaults to the provider's catalog default when empty.
	Model   string `yaml:"model,omitempty" env:"OPENAI_MODEL"`
	BaseURL string `yaml:"base_url,omitempty" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	// APIKey is normally left empty and read from <PROVIDER>_API_KEY.
	APIKey            string `yaml:"-" env:"PATCHLOOP_API_KEY"`
	RequestsPerMinute int    `yaml:"requests_per_minute" env:"PATCHLOOP_REQUESTS_PER_MINUTE" validate:"gte=0"`
	MaxRetries        int    `yaml:"max_retries" validate:"gte=0,lte=10"`
	SchemaRetries     int    `yaml:"schema_retries" validate:"gte=0,lte=10"`
	MaxSteps          int    `yaml:"max_steps" validate:"gte=1"`
}

// Tools tunes the agent tool set.
type Tools struct {
	SingleLineEdits bool          `yaml:"single_line_edits"`
	ExecTimeout     time.Duration `yaml:"exec_timeout" validate:"gte=0s"`
}

// Limits bound the patch loop.
type Limits struct {
	MaxIterations       int `yaml:"max_iterations" env:"PATCHLOOP_MAX_ITERATIONS" validate:"gte=1"`
	NoProgressThreshold int `yaml:"no_progress_threshold" validate:"gte=0"`
}

// Timeouts bound each step of an iteration. Zero disables a timeout.
type Timeouts struct {
	Goal      time.Duration `yaml:"goal" validate:"gte=0s"`
	Diagnose  time.Duration `yaml:"diagnose" validate:"gte=0s"`
	Apply     time.Duration `yaml:"apply" validate:"gte=0s"`
	Evaluate  time.Duration `yaml:"evaluate" validate:"gte=0s"`
	Interpret time.Duration `yaml:"interpret" validate:"gte=0s"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level" env:"PATCHLOOP_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"PATCHLOOP_LOG_FORMAT" validate:"oneof=text json"`
}

// Config represents the .patchloop/config.yaml file.
type Config struct {
	Project  Project  `yaml:"project"`
	LLM      LLM      `yaml:"llm"`
	Tools    Tools    `yaml:"tools"`
	Limits   Limits   `yaml:"limits"`
	Timeouts Timeouts `yaml:"timeouts"`
	Log      Log      `yaml:"log"`
	// StateFile receives a snapshot of the run after every iteration.
	StateFile string `yaml:"state_file,omitempty" env:"PATCHLOOP_STATE_FILE"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr,omitempty" env:"PATCHLOOP_METRICS_ADDR" validate:"omitempty,hostname_port"`
}

// ModelName returns the configured model or the provider default.
func (l LLM) ModelName() string {
	if l.Model != "" {
		return l.Model
	}
	return unifiedllm.DefaultModel(l.Provider)
}

// ResolveAPIKey returns APIKey, falling back to <PROVIDER>_API_KEY.
func (l LLM) ResolveAPIKey() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	return os.Getenv(strings.ToUpper(l.Provider) + "_API_KEY")
}

// UsesGollm reports whether requests go through the gollm backend.
func (l LLM) UsesGollm() bool {
	return l.Provider != "openai" || l.Backend == "gollm"
}
