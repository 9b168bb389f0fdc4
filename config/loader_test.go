package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := DefaultPath(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Project = Project{IssueFile: "issue.md", EvalDir: "/tmp/eval", TestCommand: "pytest"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4.1", cfg.LLM.ModelName())
	assert.Equal(t, 10, cfg.Limits.MaxIterations)
	assert.Equal(t, 3, cfg.Limits.NoProgressThreshold)
	assert.True(t, cfg.Tools.SingleLineEdits)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.Evaluate)
	assert.False(t, cfg.LLM.UsesGollm())
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", ".patchloop", "config.yaml"), DefaultPath("/work"))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
project:
  issue_file: issue.md
  eval_dir: /srv/eval
  test_command: pytest -q
  activate_command: venv/bin/activate
llm:
  provider: anthropic
  requests_per_minute: 30
limits:
  max_iterations: 4
timeouts:
  evaluate: 90s
metrics_addr: ":9090"
`)
	cfg, err := load(path, env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, "/srv/eval", cfg.Project.EvalDir)
	assert.Equal(t, "venv/bin/activate", cfg.Project.ActivateCommand)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.ModelName())
	assert.True(t, cfg.LLM.UsesGollm())
	assert.Equal(t, 30, cfg.LLM.RequestsPerMinute)
	assert.Equal(t, 4, cfg.Limits.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Evaluate)
	// untouched sections keep their defaults
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Goal)
	assert.Equal(t, 3, cfg.Limits.NoProgressThreshold)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
project:
  issue_file: issue.md
  eval_dir: /srv/eval
  test_command: pytest
llm:
  model: gpt-4o
`)
	cfg, err := load(path, env.Options{Environment: map[string]string{
		"OPENAI_MODEL":          "gpt-4.1-mini",
		"EVAL_DIRECTORY":        "/override",
		"ACTIVATE_VENV_COMMAND": "env/bin/activate",
		"PATCHLOOP_BACKEND":     "gollm",
	}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.ModelName())
	assert.Equal(t, "/override", cfg.Project.EvalDir)
	assert.Equal(t, "issue.md", cfg.Project.IssueFile)
	assert.Equal(t, "env/bin/activate", cfg.Project.ActivateCommand)
	assert.True(t, cfg.LLM.UsesGollm())
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("ISSUE_FILE_PATH", "issue.md")
	t.Setenv("EVAL_DIRECTORY", "/srv/eval")
	t.Setenv("RUN_TEST_COMMAND", "go test ./...")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", cfg.Project.TestCommand)
	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "project: [unclosed")
	_, err := load(path, env.Options{Environment: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing issue file", func(c *Config) { c.Project.IssueFile = "" }, "project.issue_file"},
		{"missing test command", func(c *Config) { c.Project.TestCommand = "" }, "project.test_command"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "nope" }, "llm.provider"},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "grpc" }, "llm.backend"},
		{"zero iterations", func(c *Config) { c.Limits.MaxIterations = 0 }, "limits.max_iterations"},
		{"negative timeout", func(c *Config) { c.Timeouts.Apply = -time.Second }, "timeouts.apply"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "not an address" }, "metrics_addr"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}

	cfg := validConfig()
	assert.NoError(t, ValidateConfig(&cfg))
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	assert.Equal(t, "sk-ant", LLM{Provider: "anthropic"}.ResolveAPIKey())
	assert.Equal(t, "explicit", LLM{Provider: "anthropic", APIKey: "explicit"}.ResolveAPIKey())
}

func TestSaveRoundTrip(t *testing.T) {
	path := DefaultPath(t.TempDir())
	cfg := validConfig()
	cfg.Limits.MaxIterations = 7
	require.NoError(t, Save(path, &cfg))

	loaded, err := load(path, env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Limits.MaxIterations)
	assert.Equal(t, cfg.Timeouts, loaded.Timeouts)
}
