package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/martinemde/patchloop/agentloop"
	"github.com/martinemde/patchloop/agents"
	"github.com/martinemde/patchloop/workflow"
)

var (
	// Colors
	stepColor    = lipgloss.Color("#5FAFAF") // Teal accent
	subtleColor  = lipgloss.Color("#666666")
	successColor = lipgloss.Color("#87AF87")
	errorColor   = lipgloss.Color("#AF5F5F")

	roleColors = map[string]lipgloss.Color{
		agents.RoleGoal:        lipgloss.Color("#AF87D7"),
		agents.RoleDiagnoser:   lipgloss.Color("#D7AF5F"),
		agents.RoleApplier:     lipgloss.Color("#5F87D7"),
		agents.RoleInterpreter: lipgloss.Color("#D75F87"),
		agents.RoleChat:        lipgloss.Color("#87AFAF"),
	}
)

// Narrator renders agent activity and loop transitions for a human reader.
// It implements workflow.Observer, and Observe can be passed to agent
// sessions as an agentloop.Observer. Writes are serialized.
type Narrator struct {
	mu  sync.Mutex
	out io.Writer

	// ShowToolOutput prints tool results as well as tool calls.
	ShowToolOutput bool
	// MaxLine truncates long rendered values. Zero means 200.
	MaxLine int

	step    lipgloss.Style
	subtle  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	roles   map[string]lipgloss.Style
}

// NewNarrator creates a Narrator writing to out. Colours are dropped when
// out is not a terminal.
func NewNarrator(out io.Writer) *Narrator {
	r := lipgloss.NewRenderer(out)
	n := &Narrator{
		out:     out,
		step:    r.NewStyle().Bold(true).Foreground(stepColor),
		subtle:  r.NewStyle().Foreground(subtleColor),
		success: r.NewStyle().Bold(true).Foreground(successColor),
		failure: r.NewStyle().Bold(true).Foreground(errorColor),
		roles:   make(map[string]lipgloss.Style, len(roleColors)),
	}
	for role, c := range roleColors {
		n.roles[role] = r.NewStyle().Foreground(c)
	}
	return n
}

func (n *Narrator) roleStyle(role string) lipgloss.Style {
	if s, ok := n.roles[role]; ok {
		return s
	}
	return n.subtle
}

func (n *Narrator) clip(s string) string {
	limit := n.MaxLine
	if limit <= 0 {
		limit = 200
	}
	s = strings.TrimSpace(s)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func (n *Narrator) println(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, s)
}

// Observe renders one agent session event.
func (n *Narrator) Observe(ev agentloop.SessionEvent) {
	label := n.roleStyle(ev.Role).Bold(true).Render("[" + ev.Role + "]")
	str := func(key string) string {
		v, _ := ev.Data[key].(string)
		return v
	}

	switch ev.Kind {
	case agentloop.EventAssistantTextEnd:
		text := str("text")
		if text == "" {
			return
		}
		n.println(label + " " + n.roleStyle(ev.Role).Render(n.clip(text)))
	case agentloop.EventToolCallStart:
		n.println(label + " " + n.subtle.Render("→ "+str("tool_name")+" "+n.clip(str("arguments"))))
	case agentloop.EventToolCallEnd:
		if msg := str("error"); msg != "" {
			n.println(label + " " + n.failure.Render("✗ "+str("tool_name")+": "+n.clip(msg)))
			return
		}
		if ok, _ := ev.Data["success"].(bool); !ok {
			n.println(label + " " + n.failure.Render("✗ "+str("tool_name")))
			return
		}
		if n.ShowToolOutput {
			n.println(label + " " + n.subtle.Render("← "+n.clip(str("output"))))
		}
	case agentloop.EventTurnLimit:
		n.println(label + " " + n.failure.Render(fmt.Sprintf("step limit reached after %v rounds", ev.Data["rounds"])))
	case agentloop.EventLoopDetection, agentloop.EventWarning:
		n.println(label + " " + n.subtle.Render("! "+n.clip(str("message"))))
	case agentloop.EventError:
		n.println(label + " " + n.failure.Render("error: "+n.clip(str("error"))))
	}
}

// StepStarted implements workflow.Observer.
func (n *Narrator) StepStarted(step workflow.Step, iteration int) {
	n.println(n.step.Render(fmt.Sprintf("▸ %s", step)) + n.subtle.Render(fmt.Sprintf(" (iteration %d)", iteration)))
}

// StepFinished implements workflow.Observer.
func (n *Narrator) StepFinished(step workflow.Step, iteration int, elapsed time.Duration, err error) {
	if err != nil {
		n.println(n.failure.Render(fmt.Sprintf("✗ %s failed: %v", step, err)))
		return
	}
	n.println(n.subtle.Render(fmt.Sprintf("  %s done in %s", step, elapsed.Round(time.Millisecond))))
}

// IterationFinished implements workflow.Observer.
func (n *Narrator) IterationFinished(r workflow.IterationReport) {
	if r.Passed {
		n.println(n.success.Render(fmt.Sprintf("✓ patch number %d passed the tests", r.PatchNumber)))
		return
	}
	line := fmt.Sprintf("✗ patch number %d failed (%d edits)", r.PatchNumber, r.Edits)
	if r.Stalled {
		line += ", no edit was applied"
	}
	n.println(n.failure.Render(line))
	if r.Summary != nil {
		n.println(n.subtle.Render("  cause: " + n.clip(r.Summary.RootCause)))
		n.println(n.subtle.Render("  fix:   " + n.clip(r.Summary.SuggestedFix)))
	}
}

// RunFinished implements workflow.Observer.
func (n *Narrator) RunFinished(o workflow.Outcome, err error) {
	switch {
	case err != nil:
		n.println(n.failure.Render(fmt.Sprintf("run %s aborted: %v", o.RunID, err)))
	case o.State == workflow.StateSucceeded:
		n.println(n.success.Render(fmt.Sprintf("run %s succeeded after %d iterations", o.RunID, o.Iterations)))
	default:
		n.println(n.failure.Render(fmt.Sprintf("run %s %s: %s after %d iterations", o.RunID, o.State, o.Reason, o.Iterations)))
	}
}

var _ workflow.Observer = (*Narrator)(nil)
