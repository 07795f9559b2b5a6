package analyzer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kushal45/reviewgraph/internal/types"
)

// NewStaticcheck returns the staticcheck analyzer for Go. It checks the whole
// package containing the file, since a lone Go file rarely type checks, and
// reports only the findings in that file.
func NewStaticcheck(runner *Runner) *ToolAnalyzer {
	return NewToolAnalyzer(ToolSpec{
		Name:      "staticcheck",
		Languages: []types.Language{"go"},
		Args: func(pkg string) []string {
			return []string{"-f", "json", pkg}
		},
		PackageScope: true,
		Parse:        parseStaticcheck,
	}, runner)
}

type staticcheckProblem struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Location struct {
		File   string `json:"file"`
		Line   int    `json:"line"`
		Column int    `json:"column"`
	} `json:"location"`
	Message string `json:"message"`
}

// staticcheckClassify maps a check code to severity and category by family:
// SA (bugs), S (simplifications), ST (style), QF (quick fixes).
func staticcheckClassify(code string) (types.Severity, string) {
	switch {
	case strings.HasPrefix(code, "SA"):
		return types.SeverityHigh, "bug"
	case strings.HasPrefix(code, "ST"):
		return types.SeverityLow, "style"
	case strings.HasPrefix(code, "QF"):
		return types.SeverityInfo, "quickfix"
	case strings.HasPrefix(code, "S"):
		return types.SeverityLow, "simplification"
	default:
		return types.SeverityInfo, "other"
	}
}

// parseStaticcheck decodes staticcheck's JSON lines output. A "compile"
// problem means the package did not type check and no checks ran, which
// fails the unit with ErrUnexpectedExit.
func parseStaticcheck(stdout []byte) ([]types.Issue, error) {
	var issues []types.Issue
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p staticcheckProblem
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, err
		}
		if p.Code == "compile" {
			return nil, fmt.Errorf("%w: package does not type check: %s:%d: %s",
				ErrUnexpectedExit, p.Location.File, p.Location.Line, p.Message)
		}
		sev, category := staticcheckClassify(p.Code)
		issues = append(issues, types.Issue{
			File:     p.Location.File,
			Line:     p.Location.Line,
			Column:   p.Location.Column,
			Severity: sev,
			Category: category,
			Message:  p.Message,
			RuleID:   p.Code,
		})
	}
	return issues, scanner.Err()
}
