package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/martinemde/patchloop/unifiedllm"
)

// Finding is one issue the diagnoser located in a file.
type Finding struct {
	Lines string `json:"lines" validate:"notblank,linerange"`
	Issue string `json:"issue" validate:"notblank"`
}

// FileGroup is the ordered list of findings for one path.
type FileGroup struct {
	Path     string
	Findings []Finding
}

// Report is a parsed diagnosis. File groups keep the order the model wrote
// them in.
type Report struct {
	FileGroups *orderedmap.OrderedMap[string, []Finding] `json:"file_groups"`
}

type reportEnvelope struct {
	ParsedDiagnosis *Report                                   `json:"ParsedDiagnosis"`
	FileGroups      *orderedmap.OrderedMap[string, []Finding] `json:"file_groups"`
}

// NewReport builds a report from groups, in order.
func NewReport(groups ...FileGroup) *Report {
	m := orderedmap.New[string, []Finding]()
	for _, g := range groups {
		m.Set(g.Path, g.Findings)
	}
	return &Report{FileGroups: m}
}

// Groups returns the file groups in order.
func (r *Report) Groups() []FileGroup {
	if r == nil || r.FileGroups == nil {
		return nil
	}
	groups := make([]FileGroup, 0, r.FileGroups.Len())
	for pair := r.FileGroups.Oldest(); pair != nil; pair = pair.Next() {
		groups = append(groups, FileGroup{Path: pair.Key, Findings: pair.Value})
	}
	return groups
}

// Empty reports whether the report names no files.
func (r *Report) Empty() bool {
	return r == nil || r.FileGroups == nil || r.FileGroups.Len() == 0
}

// Serialize renders the report in the shape the diagnoser was asked for.
func (r *Report) Serialize() string {
	raw, err := json.MarshalIndent(struct {
		ParsedDiagnosis *Report `json:"ParsedDiagnosis"`
	}{r}, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}

// ParseReport strictly parses diagnoser output. Markdown fences, prose
// around the object and a bare {"file_groups": ...} object are tolerated;
// any other deviation is a *FormatError.
func ParseReport(text string) (*Report, error) {
	raw := unifiedllm.ExtractJSON(text)
	if raw == "" {
		return nil, &FormatError{Reason: "no JSON object in output", Raw: text}
	}

	var env reportEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: text}
	}

	report := env.ParsedDiagnosis
	if report == nil || report.FileGroups == nil {
		report = &Report{FileGroups: env.FileGroups}
	}
	if report.FileGroups == nil {
		return nil, &FormatError{Reason: "missing file_groups", Raw: text}
	}
	if reason := checkReport(report); reason != "" {
		return nil, &FormatError{Reason: reason, Raw: text}
	}
	return report, nil
}

func checkReport(r *Report) string {
	if r.Empty() {
		return "file_groups is empty"
	}
	for _, g := range r.Groups() {
		if strings.TrimSpace(g.Path) == "" {
			return "file group with an empty path"
		}
		if len(g.Findings) == 0 {
			return fmt.Sprintf("file group %q has no findings", g.Path)
		}
		seen := make(map[[2]int]bool, len(g.Findings))
		for i, f := range g.Findings {
			if err := validate.Struct(f); err != nil {
				return fmt.Sprintf("%s finding %d: %s", g.Path, i+1, describeValidation(err))
			}
			start, end, _ := ParseLineRange(f.Lines)
			key := [2]int{start, end}
			if seen[key] {
				return fmt.Sprintf("%s: duplicate line range %q", g.Path, f.Lines)
			}
			seen[key] = true
		}
	}
	return ""
}
