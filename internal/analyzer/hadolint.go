package analyzer

import (
	"bytes"
	"encoding/json"

	"github.com/kushal45/reviewgraph/internal/types"
)

// NewHadolint returns the hadolint analyzer for Dockerfiles.
func NewHadolint(runner *Runner) *ToolAnalyzer {
	return NewToolAnalyzer(ToolSpec{
		Name:      "hadolint",
		Languages: []types.Language{"dockerfile"},
		Args: func(path string) []string {
			return []string{"--format", "json", "--no-fail", path}
		},
		Parse: parseHadolint,
	}, runner)
}

type hadolintResult struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func parseHadolint(stdout []byte) ([]types.Issue, error) {
	stdout = bytes.TrimSpace(stdout)
	if len(stdout) == 0 {
		return nil, nil
	}

	var results []hadolintResult
	if err := json.Unmarshal(stdout, &results); err != nil {
		return nil, err
	}

	issues := make([]types.Issue, 0, len(results))
	for _, r := range results {
		category := "best-practice"
		if len(r.Code) >= 2 && r.Code[:2] == "SC" {
			category = "shell"
		}
		issues = append(issues, types.Issue{
			Line:     r.Line,
			Column:   r.Column,
			Severity: lookup(levelSeverity, r.Level, types.SeverityInfo),
			Category: category,
			Message:  r.Message,
			RuleID:   r.Code,
		})
	}
	return issues, nil
}
