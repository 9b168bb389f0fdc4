// Package config loads the patchloop configuration: defaults, then the
// YAML file, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultProvider            = "openai"
	DefaultBackend             = "native"
	DefaultMaxRetries          = 2
	DefaultSchemaRetries       = 2
	DefaultMaxSteps            = 50
	DefaultMaxIterations       = 10
	DefaultNoProgressThreshold = 3
	DefaultExecTimeout         = 5 * time.Minute
)

// DefaultTimeouts returns the default per-step timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Goal:      2 * time.Minute,
		Diagnose:  10 * time.Minute,
		Apply:     15 * time.Minute,
		Evaluate:  10 * time.Minute,
		Interpret: 2 * time.Minute,
	}
}

// DefaultConfig returns a Config with sensible default values. Project
// fields have no defaults and must come from the file or environment.
func DefaultConfig() Config {
	return Config{
		LLM: LLM{
			Provider:      DefaultProvider,
			Backend:       DefaultBackend,
			MaxRetries:    DefaultMaxRetries,
			SchemaRetries: DefaultSchemaRetries,
			MaxSteps:      DefaultMaxSteps,
		},
		Tools: Tools{
			SingleLineEdits: true,
			ExecTimeout:     DefaultExecTimeout,
		},
		Limits: Limits{
			MaxIterations:       DefaultMaxIterations,
			NoProgressThreshold: DefaultNoProgressThreshold,
		},
		Timeouts: DefaultTimeouts(),
		Log:      Log{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the config file location under basePath.
func DefaultPath(basePath string) string {
	return filepath.Join(basePath, ".patchloop", "config.yaml")
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Load reads the config file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
	})
	return v
}

// ValidateConfig checks that all config values are valid. The first
// failing field is reported as a ValidationError.
func ValidateConfig(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return ValidationError{Field: field, Message: message(fe)}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is empty"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a URL"
	case "hostname_port":
		return "must be host:port"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
