package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kushal45/reviewgraph/internal/language"
	"github.com/kushal45/reviewgraph/internal/llm"
	"github.com/kushal45/reviewgraph/internal/types"
)

// DefaultAIMaxBytes is the largest file the AI reviewer sends to a model.
const DefaultAIMaxBytes = 64 << 10

// AIAnalyzer asks a language model to review one file at a time.
type AIAnalyzer struct {
	client   llm.Client
	costs    *llm.CostTracker
	maxBytes int
	langs    []types.Language
}

// NewAIAnalyzer reviews every known language with client and records token
// usage in costs, which may be nil.
func NewAIAnalyzer(client llm.Client, costs *llm.CostTracker) *AIAnalyzer {
	return &AIAnalyzer{
		client:   client,
		costs:    costs,
		maxBytes: DefaultAIMaxBytes,
		langs:    language.Languages(),
	}
}

// SetMaxBytes bounds the file content sent per prompt. Zero sends whole
// files.
func (a *AIAnalyzer) SetMaxBytes(n int) { a.maxBytes = n }

func (a *AIAnalyzer) Name() string                { return "ai" }
func (a *AIAnalyzer) Languages() []types.Language { return a.langs }

func (a *AIAnalyzer) Analyze(ctx context.Context, target Target) ([]types.Issue, error) {
	if strings.TrimSpace(target.Content) == "" {
		return nil, nil
	}

	comp, err := a.client.Complete(ctx, buildReviewPrompt(target, a.maxBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: ai review of %s: %v", ErrTimeout, target.Path, err)
		}
		return nil, fmt.Errorf("ai review of %s: %w", target.Path, err)
	}
	a.costs.Record(comp)

	issues, err := parseAIResponse(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: ai: %v", ErrParse, err)
	}
	for i := range issues {
		issues[i].File = target.Path
		issues[i].Tool = a.Name()
		issues[i].Language = target.Language
	}
	return issues, nil
}

func buildReviewPrompt(target Target, maxBytes int) string {
	content := target.Content
	truncated := false
	if maxBytes > 0 && len(content) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString("You are an expert code reviewer. Review the following ")
	sb.WriteString(string(target.Language))
	sb.WriteString(" file and identify bugs, security problems, performance problems and maintainability issues.\n\n")

	sb.WriteString("File: ")
	sb.WriteString(target.Path)
	sb.WriteString("\n```")
	sb.WriteString(string(target.Language))
	sb.WriteString("\n")
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&sb, "%4d| %s\n", i+1, line)
	}
	sb.WriteString("```\n")
	if truncated {
		sb.WriteString("(file truncated)\n")
	}

	sb.WriteString("\nRespond with a JSON object {\"issues\": [...]}. Each issue must have:\n")
	sb.WriteString("- line: the line number (integer, 0 for file-level issues)\n")
	sb.WriteString("- column: the column number (integer, 0 if unknown)\n")
	sb.WriteString("- severity: one of [critical, high, medium, low, info]\n")
	sb.WriteString("- category: one of [bug, security, performance, style, best-practice]\n")
	sb.WriteString("- message: brief description of the issue and how to fix it\n")
	sb.WriteString("- rule: short kebab-case identifier for the kind of issue\n\n")
	sb.WriteString("Return ONLY the JSON object. If no issues are found, return {\"issues\": []}")
	return sb.String()
}

type aiIssue struct {
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Message     string `json:"message"`
	Description string `json:"description"`
	Rule        string `json:"rule"`
}

// parseAIResponse accepts {"issues": [...]}, a bare array, or either one
// embedded in surrounding prose or a code fence.
func parseAIResponse(text string) ([]types.Issue, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	raw, err := decodeAIIssues(text)
	if err != nil {
		start := strings.IndexAny(text, "[{")
		end := strings.LastIndexAny(text, "]}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("no JSON found in model response")
		}
		if raw, err = decodeAIIssues(text[start : end+1]); err != nil {
			return nil, err
		}
	}

	issues := make([]types.Issue, 0, len(raw))
	for _, r := range raw {
		msg := r.Message
		if msg == "" {
			msg = r.Description
		}
		if msg == "" {
			continue
		}
		sev, err := types.ParseSeverity(r.Severity)
		if err != nil {
			sev = types.SeverityInfo
		}
		category := r.Category
		if category == "" {
			category = "review"
		}
		line := r.Line
		if line < 0 {
			line = 0
		}
		issues = append(issues, types.Issue{
			Line:     line,
			Column:   r.Column,
			Severity: sev,
			Category: category,
			Message:  msg,
			RuleID:   r.Rule,
		})
	}
	return issues, nil
}

func decodeAIIssues(s string) ([]aiIssue, error) {
	if strings.HasPrefix(s, "[") {
		var list []aiIssue
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapped struct {
		Issues *[]aiIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(s), &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Issues == nil {
		return nil, fmt.Errorf("response has no \"issues\" field")
	}
	return *wrapped.Issues, nil
}
