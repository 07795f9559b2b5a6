package analyzer

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kushal45/reviewgraph/internal/types"
)

// NewFlake8 returns the flake8 analyzer for Python.
func NewFlake8(runner *Runner) *ToolAnalyzer {
	return NewToolAnalyzer(ToolSpec{
		Name:      "flake8",
		Languages: []types.Language{"python"},
		Args: func(path string) []string {
			return []string{"--format=%(path)s:%(row)d:%(col)d: %(code)s %(text)s", path}
		},
		Parse: parseFlake8,
	}, runner)
}

var flake8Line = regexp.MustCompile(`^(.*):(\d+):(\d+): ([A-Z]+\d+) (.*)$`)

func parseFlake8(stdout []byte) ([]types.Issue, error) {
	var issues []types.Issue
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m := flake8Line.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("unrecognized flake8 line %q", line)
		}
		row, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		sev, category := flake8Classify(m[4])
		issues = append(issues, types.Issue{
			Line:     row,
			Column:   col,
			Severity: sev,
			Category: category,
			Message:  m[5],
			RuleID:   m[4],
		})
	}
	return issues, scanner.Err()
}

// flake8Classify maps a flake8 code to severity and category by its prefix:
// F (pyflakes) and E9 (syntax/IO) are errors, E is pycodestyle, C9 is
// mccabe complexity, W and other C codes are style warnings.
func flake8Classify(code string) (types.Severity, string) {
	switch {
	case strings.HasPrefix(code, "F"):
		return types.SeverityHigh, "error"
	case strings.HasPrefix(code, "E9"):
		return types.SeverityHigh, "error"
	case strings.HasPrefix(code, "E"):
		return types.SeverityMedium, "style"
	case strings.HasPrefix(code, "C9"):
		return types.SeverityMedium, "complexity"
	case strings.HasPrefix(code, "W"), strings.HasPrefix(code, "C"):
		return types.SeverityLow, "style"
	default:
		return types.SeverityInfo, "convention"
	}
}
