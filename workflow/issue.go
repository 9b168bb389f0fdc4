package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// IssueRecord is the append-only issue file. Failed patches are appended
// to it so later iterations can read what went wrong.
type IssueRecord struct {
	mu   sync.Mutex
	path string
}

// NewIssueRecord returns the record stored at path.
func NewIssueRecord(path string) *IssueRecord {
	return &IssueRecord{path: path}
}

// Path returns the file path of the record.
func (r *IssueRecord) Path() string { return r.path }

// Read returns the current content of the record.
func (r *IssueRecord) Read() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("read issue record: %w", err)
	}
	return string(data), nil
}

// AppendFailure appends the error block for a failed patch.
func (r *IssueRecord) AppendFailure(patch int, rootCause, suggestedFix string) error {
	block := fmt.Sprintf("\nERROR ON PATH NUMBER %d \nERROR DESCRIPTION: %s \nSUGGESTED FIX: %s \n",
		patch, rootCause, suggestedFix)

	r.mu.Lock()
	defer r.mu.Unlock()
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("append issue record: %w", err)
		}
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append issue record: %w", err)
	}
	if _, err := f.WriteString(block); err != nil {
		f.Close()
		return fmt.Errorf("append issue record: %w", err)
	}
	return f.Close()
}
