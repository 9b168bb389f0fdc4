package agentloop

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
	err        error
}

// Success reports whether the command exited 0 within its timeout.
func (r ExecResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut && r.err == nil
}

// Output is the text reported to callers. Successful runs report stdout; a
// failed run reports stderr, then stdout, then the process error.
func (r ExecResult) Output() string {
	if r.Success() {
		return r.Stdout
	}
	switch {
	case r.Stderr != "":
		return r.Stderr
	case r.Stdout != "":
		return r.Stdout
	case r.TimedOut:
		return fmt.Sprintf("command timed out after %dms", r.DurationMs)
	case r.err != nil:
		return r.err.Error()
	default:
		return fmt.Sprintf("command exited with status %d", r.ExitCode)
	}
}

// EntryKind selects what Create makes.
type EntryKind string

const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// ReadOnlyEnvironment is the capability set for roles that inspect a
// codebase without changing it. Relative paths resolve against
// WorkingDirectory.
type ReadOnlyEnvironment interface {
	WorkingDirectory() string
	Platform() string

	ListDir(path string) ([]string, error)
	ReadFile(path string) (string, error)
	SearchDir(dir, term string) ([]string, error)
	FindFile(name string) (string, error)
	SearchLines(path, term string) ([]string, error)
	CountLines(path string) (int, error)
}

// WriteEnvironment adds the mutating operations. Edit operations report
// failure as data in EditResult.
type WriteEnvironment interface {
	ReadOnlyEnvironment

	Exec(ctx context.Context, command, dir string) (*ExecResult, error)
	AppendText(path, text string) EditResult
	ReplaceText(path, oldStr, newStr string) EditResult
	Create(path string, kind EntryKind, content string) EditResult
	Diff(ctx context.Context) (*DiffSummary, error)
	// Fingerprint summarizes the tree so callers can tell whether a command
	// changed it.
	Fingerprint() (string, error)
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// kept out of child processes.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"VIRTUAL_ENV": true, "PYENV_ROOT": true, "CONDA_PREFIX": true,
	"GOPATH": true, "GOROOT": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalExecutionEnvironment runs every tool against a root directory on the
// local machine. It satisfies WriteEnvironment and therefore
// ReadOnlyEnvironment.
type LocalExecutionEnvironment struct {
	root        string
	files       FileStore
	ExecTimeout time.Duration
}

// NewLocalExecutionEnvironment creates an environment rooted at root, or at
// the process working directory when root is empty.
func NewLocalExecutionEnvironment(root string) *LocalExecutionEnvironment {
	if root == "" {
		root, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &LocalExecutionEnvironment{
		root:        root,
		files:       OSFileStore{},
		ExecTimeout: 5 * time.Minute,
	}
}

func (e *LocalExecutionEnvironment) WorkingDirectory() string { return e.root }

func (e *LocalExecutionEnvironment) Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func (e *LocalExecutionEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.root, path)
}

func (e *LocalExecutionEnvironment) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(e.resolvePath(path))
	if err != nil {
		return []string{}, fmt.Errorf("ls: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (e *LocalExecutionEnvironment) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", fmt.Errorf("cat: %w", err)
	}
	return string(data), nil
}

// SearchDir returns the files under dir whose content contains term. Paths
// containing "test" relative to the root are skipped, so test fixtures do
// not drown out the code under repair.
func (e *LocalExecutionEnvironment) SearchDir(dir, term string) ([]string, error) {
	base := e.resolvePath(dir)
	matches := []string{}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			// unreadable entries are skipped
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel := e.relative(path)
		if path != base && strings.Contains(rel, "test") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), term) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return []string{}, fmt.Errorf("search-files-text: %w", err)
	}
	return matches, nil
}

// FindFile walks the root and returns the first file whose base name equals
// name.
func (e *LocalExecutionEnvironment) FindFile(name string) (string, error) {
	var found string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("find-file: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("find-file: %s: %w", name, fs.ErrNotExist)
	}
	return found, nil
}

func (e *LocalExecutionEnvironment) SearchLines(path, term string) ([]string, error) {
	content, err := e.ReadFile(path)
	if err != nil {
		return []string{}, fmt.Errorf("search-lines: %w", err)
	}
	lines := []string{}
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, term) {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// CountLines returns the number of "\n"-separated lines, or 0 when the file
// cannot be read.
func (e *LocalExecutionEnvironment) CountLines(path string) (int, error) {
	content, err := e.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("count-lines: %w", err)
	}
	return len(strings.Split(content, "\n")), nil
}

// Exec runs command with /bin/bash -c in dir (the root when empty), bounded
// by ExecTimeout. A non-zero exit is reported through the result, not the
// error; the error is reserved for commands that could not be started.
func (e *LocalExecutionEnvironment) Exec(ctx context.Context, command, dir string) (*ExecResult, error) {
	return e.ExecWithTimeout(ctx, command, dir, e.ExecTimeout)
}

// ExecWithTimeout is Exec with an explicit timeout in place of ExecTimeout.
// Zero means no limit.
func (e *LocalExecutionEnvironment) ExecWithTimeout(ctx context.Context, command, dir string, timeout time.Duration) (*ExecResult, error) {
	workingDir := e.root
	if dir != "" {
		workingDir = e.resolvePath(dir)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", command)
	cmd.Dir = workingDir
	cmd.Env = filterEnvironment()
	// Own process group so a timeout can kill the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case ctx.Err() != nil:
		return nil, fmt.Errorf("exec: %w", ctx.Err())
	default:
		result.ExitCode = -1
		result.err = err
	}
	return result, nil
}

func (e *LocalExecutionEnvironment) AppendText(path, text string) EditResult {
	f, err := os.OpenFile(e.resolvePath(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return EditResult{Error: err.Error()}
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return EditResult{Error: err.Error()}
	}
	return EditResult{Success: true}
}

func (e *LocalExecutionEnvironment) ReplaceText(path, oldStr, newStr string) EditResult {
	if path == "" {
		return Replace(e.files, path, oldStr, newStr)
	}
	return Replace(e.files, e.resolvePath(path), oldStr, newStr)
}

func (e *LocalExecutionEnvironment) Create(path string, kind EntryKind, content string) EditResult {
	full := e.resolvePath(path)
	switch kind {
	case KindFolder:
		if err := os.MkdirAll(full, 0o755); err != nil {
			return EditResult{Error: err.Error()}
		}
	case KindFile, "":
		if err := e.files.WriteFile(full, []byte(content)); err != nil {
			return EditResult{Error: err.Error()}
		}
	default:
		return EditResult{Error: fmt.Sprintf("unknown kind %q, want file or folder", kind)}
	}
	return EditResult{Success: true}
}

// Fingerprint hashes path, size, mode and modification time of every entry
// under the root, skipping .git.
func (e *LocalExecutionEnvironment) Fingerprint() (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == e.root {
				return err
			}
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fmt.Fprintf(h, "%s\x00%d\x00%o\x00%d\n", e.relative(path), info.Size(), info.Mode(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Diff runs git diff in the root and summarizes it.
func (e *LocalExecutionEnvironment) Diff(ctx context.Context) (*DiffSummary, error) {
	res, err := e.Exec(ctx, "git diff", "")
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("git diff: %s", strings.TrimSpace(res.Output()))
	}
	return SummarizeDiff(res.Stdout)
}

func (e *LocalExecutionEnvironment) relative(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return path
	}
	return rel
}
