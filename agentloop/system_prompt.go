package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// BuildSystemPrompt assembles the role instructions, an environment block,
// the tool list and any AGENTS.md found at the project root.
func BuildSystemPrompt(p Profile, env ReadOnlyEnvironment) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.Instructions))
	sb.WriteString("\n\n")
	sb.WriteString(BuildEnvironmentContext(env, p.Model))

	if names := p.registry().Names(); len(names) > 0 {
		sb.WriteString("\n\n<tools>\n")
		for _, def := range p.registry().Definitions() {
			fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
		}
		sb.WriteString("</tools>")
	}

	if docs := DiscoverProjectDocs(env.WorkingDirectory()); docs != "" {
		sb.WriteString("\n\n# Project instructions\n\n")
		sb.WriteString(docs)
	}
	return sb.String()
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env ReadOnlyEnvironment, model string) string {
	workingDir := env.WorkingDirectory()
	branch := gitBranch(workingDir)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Project root: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", branch != "")
	if branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md from dir, truncated to 32KB.
func DiscoverProjectDocs(dir string) string {
	content, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if err != nil {
		return ""
	}
	text := string(content)
	if len(text) > maxProjectDocBytes {
		text = text[:maxProjectDocBytes] + "\n[Project instructions truncated at 32KB]"
	}
	return text
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
