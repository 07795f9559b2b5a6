package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kushal45/reviewgraph/internal/types"
)

// levelSeverity is shared by shellcheck and hadolint, which use the same
// four level names.
var levelSeverity = map[string]types.Severity{
	"error":   types.SeverityHigh,
	"warning": types.SeverityMedium,
	"info":    types.SeverityLow,
	"style":   types.SeverityInfo,
}

// NewShellCheck returns the shellcheck analyzer for shell scripts.
func NewShellCheck(runner *Runner) *ToolAnalyzer {
	return NewToolAnalyzer(ToolSpec{
		Name:      "shellcheck",
		Languages: []types.Language{"shell"},
		Args: func(path string) []string {
			return []string{"--format=json", path}
		},
		Parse: parseShellCheck,
	}, runner)
}

type shellcheckComment struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func parseShellCheck(stdout []byte) ([]types.Issue, error) {
	stdout = bytes.TrimSpace(stdout)
	if len(stdout) == 0 {
		return nil, nil
	}

	var comments []shellcheckComment
	if err := json.Unmarshal(stdout, &comments); err != nil {
		return nil, err
	}

	issues := make([]types.Issue, 0, len(comments))
	for _, c := range comments {
		issues = append(issues, types.Issue{
			Line:     c.Line,
			Column:   c.Column,
			Severity: lookup(levelSeverity, c.Level, types.SeverityInfo),
			Category: c.Level,
			Message:  c.Message,
			RuleID:   fmt.Sprintf("SC%d", c.Code),
		})
	}
	return issues, nil
}
