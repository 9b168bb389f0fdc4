package workflow

import (
	"strings"
	"sync"
)

// RunContext is the state shared across iterations of one run: the task
// text, the patch attempt counter and the goal. Only the Controller
// mutates it, and the task and counter always change together.
type RunContext struct {
	mu          sync.Mutex
	task        string
	patchNumber int
	goal        string
}

// Snapshot is a consistent copy of a RunContext.
type Snapshot struct {
	Task        string
	PatchNumber int
	Goal        string
}

// NewRunContext creates a context for task. The counter starts at
// patchNumber, or 1 when patchNumber is not positive.
func NewRunContext(task string, patchNumber int) *RunContext {
	if patchNumber < 1 {
		patchNumber = 1
	}
	return &RunContext{task: task, patchNumber: patchNumber}
}

// RestoreRunContext rebuilds a context from a saved run state.
func RestoreRunContext(s *RunState) *RunContext {
	rc := NewRunContext(s.Task, s.PatchNumber)
	rc.goal = s.Goal
	return rc
}

// Snapshot returns the current values.
func (rc *RunContext) Snapshot() Snapshot {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return Snapshot{Task: rc.task, PatchNumber: rc.patchNumber, Goal: rc.goal}
}

func (rc *RunContext) setGoal(goal string) {
	rc.mu.Lock()
	rc.goal = goal
	rc.mu.Unlock()
}

// recordFailure appends the note for the current patch to the task and
// advances the counter, in one step. It returns the number of the patch
// that failed.
func (rc *RunContext) recordFailure(note func(patch int) string) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	failed := rc.patchNumber
	if rc.task != "" && !strings.HasSuffix(rc.task, "\n") {
		rc.task += "\n"
	}
	rc.task += note(failed)
	rc.patchNumber++
	return failed
}
