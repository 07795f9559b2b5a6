package analyzer

import (
	"bytes"
	"encoding/json"

	"github.com/kushal45/reviewgraph/internal/types"
)

// NewESLint returns the eslint analyzer for JavaScript and TypeScript.
// Exit code 2 means eslint itself failed (bad config, crash).
func NewESLint(runner *Runner) *ToolAnalyzer {
	return NewToolAnalyzer(ToolSpec{
		Name:      "eslint",
		Languages: []types.Language{"javascript", "typescript"},
		Args: func(path string) []string {
			return []string{"--format", "json", "--no-color", path}
		},
		Parse: parseESLint,
	}, runner)
}

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   *string `json:"ruleId"`
	Severity int     `json:"severity"`
	Message  string  `json:"message"`
	Line     int     `json:"line"`
	Column   int     `json:"column"`
	Fatal    bool    `json:"fatal"`
}

func parseESLint(stdout []byte) ([]types.Issue, error) {
	stdout = bytes.TrimSpace(stdout)
	if len(stdout) == 0 {
		return nil, nil
	}

	var files []eslintFile
	if err := json.Unmarshal(stdout, &files); err != nil {
		return nil, err
	}

	var issues []types.Issue
	for _, f := range files {
		for _, m := range f.Messages {
			issue := types.Issue{
				Line:    m.Line,
				Column:  m.Column,
				Message: m.Message,
			}
			if m.RuleID != nil {
				issue.RuleID = *m.RuleID
			}
			switch {
			case m.Fatal:
				issue.Severity = types.SeverityCritical
				issue.Category = "syntax"
			case m.Severity >= 2:
				issue.Severity = types.SeverityHigh
				issue.Category = "error"
			default:
				issue.Severity = types.SeverityMedium
				issue.Category = "warning"
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}
