package analyzer

import (
	"bytes"
	"encoding/json"

	"github.com/kushal45/reviewgraph/internal/types"
)

var pylintSeverity = map[string]types.Severity{
	"fatal":      types.SeverityCritical,
	"error":      types.SeverityHigh,
	"warning":    types.SeverityMedium,
	"refactor":   types.SeverityLow,
	"convention": types.SeverityLow,
	"info":       types.SeverityInfo,
}

// NewPylint returns the pylint analyzer for Python.
//
// pylint's exit status is a bit mask of message classes found; bit 32 is a
// usage error and the only status treated as a failure.
func NewPylint(runner *Runner) *ToolAnalyzer {
	return NewToolAnalyzer(ToolSpec{
		Name:      "pylint",
		Languages: []types.Language{"python"},
		Args: func(path string) []string {
			return []string{"--output-format=json", "--score=n", "--persistent=n", path}
		},
		ExitOK: func(code int) bool { return code >= 0 && code < 32 },
		Parse:  parsePylint,
	}, runner)
}

type pylintMessage struct {
	Type      string `json:"type"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Path      string `json:"path"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
	MessageID string `json:"message-id"`
}

func parsePylint(stdout []byte) ([]types.Issue, error) {
	stdout = bytes.TrimSpace(stdout)
	if len(stdout) == 0 {
		return nil, nil
	}

	var messages []pylintMessage
	if err := json.Unmarshal(stdout, &messages); err != nil {
		return nil, err
	}

	issues := make([]types.Issue, 0, len(messages))
	for _, m := range messages {
		rule := m.MessageID
		if m.Symbol != "" {
			rule = m.MessageID + " " + m.Symbol
		}
		issues = append(issues, types.Issue{
			Line:     m.Line,
			Column:   m.Column + 1, // pylint columns are 0-based
			Severity: lookup(pylintSeverity, m.Type, types.SeverityInfo),
			Category: m.Type,
			Message:  m.Message,
			RuleID:   rule,
		})
	}
	return issues, nil
}
