package agentloop

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
)

// MsgOldStringNotFound is the soft failure reported when the text to replace
// is absent from an existing file.
const MsgOldStringNotFound = "old string not found in file"

// EditResult is the outcome of a mutating file operation. Success with a
// non-empty Error is a benign no-op.
type EditResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FileStore is the filesystem surface the replace primitive touches.
type FileStore interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// OSFileStore reads and writes the local filesystem. WriteFile creates
// missing parent directories.
type OSFileStore struct{}

func (OSFileStore) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileStore) WriteFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644)
}

// Replace substitutes the first occurrence of oldStr with newStr in the file at
// path and rewrites the file in full.
//
// An empty path or oldStr == newStr succeeds without touching store. A missing
// file is created with content newStr when oldStr is empty and is a failure
// otherwise. An existing file that does not contain oldStr is left unchanged
// and reported as success with MsgOldStringNotFound.
func Replace(store FileStore, path, oldStr, newStr string) EditResult {
	if path == "" || oldStr == newStr {
		return EditResult{Success: true}
	}

	data, err := store.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return EditResult{Error: err.Error()}
		}
		if oldStr != "" {
			return EditResult{Error: fmt.Sprintf("%s: file not found", path)}
		}
		if err := store.WriteFile(path, []byte(newStr)); err != nil {
			return EditResult{Error: err.Error()}
		}
		return EditResult{Success: true}
	}

	content := string(data)
	if !strings.Contains(content, oldStr) {
		return EditResult{Success: true, Error: MsgOldStringNotFound}
	}
	if err := store.WriteFile(path, []byte(strings.Replace(content, oldStr, newStr, 1))); err != nil {
		return EditResult{Error: err.Error()}
	}
	return EditResult{Success: true}
}

// SingleLineEditor wraps a WriteEnvironment and refuses replacements that
// would add or remove more than one line. Everything else is delegated.
type SingleLineEditor struct {
	WriteEnvironment
}

// NewSingleLineEditor wraps env.
func NewSingleLineEditor(env WriteEnvironment) *SingleLineEditor {
	return &SingleLineEditor{WriteEnvironment: env}
}

// ReplaceText previews the replacement, measures it as a unified diff and
// only forwards it to the wrapped environment when at most one line changes.
func (s *SingleLineEditor) ReplaceText(path, oldStr, newStr string) EditResult {
	if path == "" || oldStr == newStr {
		return s.WriteEnvironment.ReplaceText(path, oldStr, newStr)
	}
	before, err := s.ReadFile(path)
	if err != nil || !strings.Contains(before, oldStr) {
		return s.WriteEnvironment.ReplaceText(path, oldStr, newStr)
	}

	after := strings.Replace(before, oldStr, newStr, 1)
	n, err := ChangedLines(path, before, after)
	if err != nil {
		return EditResult{Error: fmt.Sprintf("could not validate replacement: %v", err)}
	}
	if n > 1 {
		return EditResult{Error: fmt.Sprintf("replacement changes %d lines, replace one line at a time", n)}
	}
	return s.WriteEnvironment.ReplaceText(path, oldStr, newStr)
}

// ChangedLines reports how many lines an edit from before to after touches:
// the larger of the added and removed line counts of their unified diff.
func ChangedLines(name, before, after string) (int, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  0,
	})
	if err != nil {
		return 0, err
	}
	summary, err := SummarizeDiff(text)
	if err != nil {
		return 0, err
	}
	return max(summary.Added, summary.Removed), nil
}

// FileChange is the per-file line count of a diff.
type FileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// DiffSummary is a parsed unified diff.
type DiffSummary struct {
	Raw     string       `json:"diff"`
	Files   []FileChange `json:"files"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
}

// SummarizeDiff parses a unified diff and counts added and removed lines per
// file. An empty diff yields an empty summary.
func SummarizeDiff(text string) (*DiffSummary, error) {
	summary := &DiffSummary{Raw: text, Files: []FileChange{}}
	if strings.TrimSpace(text) == "" {
		return summary, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	for _, fd := range fileDiffs {
		change := FileChange{Path: diffPath(fd)}
		for _, hunk := range fd.Hunks {
			for _, line := range bytes.Split(hunk.Body, []byte{'\n'}) {
				if len(line) == 0 {
					continue
				}
				switch line[0] {
				case '+':
					change.Added++
				case '-':
					change.Removed++
				}
			}
		}
		summary.Files = append(summary.Files, change)
		summary.Added += change.Added
		summary.Removed += change.Removed
	}
	return summary, nil
}

func diffPath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}
