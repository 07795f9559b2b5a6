package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Formatter renders a report in one output format.
type Formatter interface {
	// Name is the format id used on the command line.
	Name() string

	// Extension is the file extension for artifacts, without the dot.
	Extension() string

	Format(w io.Writer, r *types.Report) error
}

// Formats lists the supported format names.
func Formats() []string {
	return []string{"markdown", "json", "sarif"}
}

// NewFormatter returns the formatter registered as name.
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markdown", "md":
		return &MarkdownFormatter{}, nil
	case "json":
		return &JSONFormatter{Indent: true}, nil
	case "sarif":
		return &SARIFFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q (supported: %s)", name, strings.Join(Formats(), ", "))
	}
}

// JSONFormatter writes the report as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Name() string      { return "json" }
func (f *JSONFormatter) Extension() string { return "json" }

func (f *JSONFormatter) Format(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}

// Decode reads a report written by JSONFormatter.
func Decode(rd io.Reader) (*types.Report, error) {
	var r types.Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// MarkdownFormatter writes GitHub-flavored Markdown suitable for a PR comment
// or a job summary.
type MarkdownFormatter struct {
	// MaxIssues limits the issue listing. Zero lists every issue.
	MaxIssues int
}

func (f *MarkdownFormatter) Name() string      { return "markdown" }
func (f *MarkdownFormatter) Extension() string { return "md" }

func (f *MarkdownFormatter) Format(w io.Writer, r *types.Report) error {
	var sb strings.Builder

	title := r.Repository.FullName
	if title == "" {
		title = r.Repository.URL
	}
	fmt.Fprintf(&sb, "# Code review: %s\n\n", title)
	fmt.Fprintf(&sb, "> **Status:** %s · **Run:** `%s` · %s", r.Status, r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if r.Repository.Ref != "" {
		fmt.Fprintf(&sb, " · **Ref:** `%s`", r.Repository.Ref)
	}
	if r.Duration > 0 {
		fmt.Fprintf(&sb, " · %.1fs", r.Duration.Seconds())
	}
	sb.WriteString("\n\n")

	s := r.Summary
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Files analyzed: %d (skipped: %d)\n", s.FilesAnalyzed, s.FilesSkipped)
	fmt.Fprintf(&sb, "- Issues: %d (%.2f per file)\n", s.TotalIssues, s.IssueDensity)
	fmt.Fprintf(&sb, "- Analysis units: %d (failed: %d)\n", s.TotalUnits, s.FailedUnits)
	if r.MinSeverity > types.SeverityInfo {
		fmt.Fprintf(&sb, "- Minimum severity: %s\n", r.MinSeverity)
	}
	if r.AIUsage != nil && r.AIUsage.Calls > 0 {
		fmt.Fprintf(&sb, "- AI review: %d calls, %d input / %d output tokens, $%.4f\n",
			r.AIUsage.Calls, r.AIUsage.InputTokens, r.AIUsage.OutputTokens, r.AIUsage.CostUSD)
	}
	sb.WriteString("\n| Severity | Count |\n|---|---|\n")
	for _, sev := range types.AllSeverities {
		fmt.Fprintf(&sb, "| %s | %d |\n", sev, s.BySeverity[sev.String()])
	}
	sb.WriteString("\n")

	if len(s.ByLanguage) > 0 {
		sb.WriteString("### By language\n\n| Language | Files | Issues | Density | Failed units | Tools |\n|---|---|---|---|---|---|\n")
		langs := make([]string, 0, len(s.ByLanguage))
		for l := range s.ByLanguage {
			langs = append(langs, string(l))
		}
		sort.Strings(langs)
		for _, l := range langs {
			ls := s.ByLanguage[types.Language(l)]
			fmt.Fprintf(&sb, "| %s | %d | %d | %.2f | %d | %s |\n", l, ls.Files, ls.Issues, ls.Density, ls.FailedUnits, strings.Join(ls.Tools, ", "))
		}
		sb.WriteString("\n")
	}

	if len(s.ByTool) > 0 {
		sb.WriteString("### By tool\n\n| Tool | Units | Failed | Issues |\n|---|---|---|---|\n")
		tools := make([]string, 0, len(s.ByTool))
		for t := range s.ByTool {
			tools = append(tools, t)
		}
		sort.Strings(tools)
		for _, t := range tools {
			ts := s.ByTool[t]
			fmt.Fprintf(&sb, "| %s | %d | %d | %d |\n", t, ts.Units, ts.Failed, ts.Issues)
		}
		sb.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&sb, "- **%s**: %s\n", rec.Severity, rec.Message)
		}
		sb.WriteString("\n")
	}

	if len(r.Issues) > 0 {
		sb.WriteString("## Issues\n\n| Severity | Location | Tool | Rule | Message |\n|---|---|---|---|---|\n")
		shown := r.Issues
		if f.MaxIssues > 0 && len(shown) > f.MaxIssues {
			shown = shown[:f.MaxIssues]
		}
		for _, is := range shown {
			tool := is.Tool
			if len(is.ReportedBy) > 0 {
				tool = strings.Join(is.ReportedBy, ", ")
			}
			fmt.Fprintf(&sb, "| %s | `%s` | %s | %s | %s |\n",
				is.Severity, location(is), tool, escapeCell(is.RuleID), escapeCell(is.Message))
		}
		if len(shown) < len(r.Issues) {
			fmt.Fprintf(&sb, "\n_%d more issues omitted._\n", len(r.Issues)-len(shown))
		}
		sb.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		sb.WriteString("## Failed analysis units\n\n| File | Tool | Reason | Message |\n|---|---|---|---|\n")
		for _, fl := range r.Failures {
			fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", fl.File, fl.Tool, fl.Reason, escapeCell(fl.Message))
		}
		sb.WriteString("\n")
	}

	if len(r.Skipped) > 0 {
		counts := make(map[string]int)
		for _, sk := range r.Skipped {
			counts[sk.Reason]++
		}
		reasons := make([]string, 0, len(counts))
		for reason := range counts {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		sb.WriteString("## Skipped files\n\n")
		for _, reason := range reasons {
			fmt.Fprintf(&sb, "- %s: %d\n", reason, counts[reason])
		}
		sb.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "- `%s`: %s\n", e.Stage, e.Message)
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func location(is types.Issue) string {
	switch {
	case is.Line > 0 && is.Column > 0:
		return fmt.Sprintf("%s:%d:%d", is.File, is.Line, is.Column)
	case is.Line > 0:
		return fmt.Sprintf("%s:%d", is.File, is.Line)
	default:
		return is.File
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
