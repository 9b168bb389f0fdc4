package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RunState is the persisted snapshot of a run, written after every
// iteration so an interrupted run can be resumed.
type RunState struct {
	RunID       string    `yaml:"run_id"`
	State       string    `yaml:"state"`
	Reason      string    `yaml:"reason,omitempty"`
	Iteration   int       `yaml:"iteration"`
	PatchNumber int       `yaml:"patch_number"`
	Goal        string    `yaml:"goal,omitempty"`
	Task        string    `yaml:"task"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// SaveState writes s to path, replacing any previous snapshot.
func SaveState(path string, s *RunState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	return nil
}

// LoadState reads a snapshot written by SaveState.
func LoadState(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run state not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}
	var s RunState
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse run state: %w", err)
	}
	if s.Task == "" || s.PatchNumber < 1 {
		return nil, fmt.Errorf("run state %s is incomplete", path)
	}
	return &s, nil
}
