package orchestrator

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/kushal45/reviewgraph/internal/types"
)

// SimilarityThreshold is the minimum normalized Levenshtein similarity at
// which two messages on the same line are treated as one finding.
const SimilarityThreshold = 0.70

// MergeDuplicates collapses findings that different tools reported for the
// same file and line with the same or a similar message. The merged issue
// keeps the most severe member's fields, the longest message, and lists
// every reporting tool in ReportedBy. Issues from the same tool are never
// merged with each other. It returns the merged slice and the number of
// issues folded away.
func MergeDuplicates(issues []types.Issue) ([]types.Issue, int) {
	if len(issues) < 2 {
		return issues, 0
	}

	type location struct {
		file string
		line int
	}
	byLoc := make(map[location][]int)
	var order []location
	for i, is := range issues {
		loc := location{is.File, is.Line}
		if _, ok := byLoc[loc]; !ok {
			order = append(order, loc)
		}
		byLoc[loc] = append(byLoc[loc], i)
	}

	out := make([]types.Issue, 0, len(issues))
	for _, loc := range order {
		idx := byLoc[loc]
		used := make([]bool, len(idx))
		for a := range idx {
			if used[a] {
				continue
			}
			used[a] = true
			group := []types.Issue{issues[idx[a]]}
			tools := map[string]bool{issues[idx[a]].Tool: true}
			for b := a + 1; b < len(idx); b++ {
				cand := issues[idx[b]]
				if used[b] || tools[cand.Tool] {
					continue
				}
				if similar(group[0].Message, cand.Message) {
					used[b] = true
					tools[cand.Tool] = true
					group = append(group, cand)
				}
			}
			out = append(out, mergeGroup(group))
		}
	}
	return out, len(issues) - len(out)
}

func normalizeMessage(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func similar(a, b string) bool {
	a, b = normalizeMessage(a), normalizeMessage(b)
	if a == b {
		return true
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return true
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1-float64(dist)/float64(maxLen) >= SimilarityThreshold
}

func mergeGroup(group []types.Issue) types.Issue {
	if len(group) == 1 {
		return group[0]
	}
	primary := group[0]
	message := primary.Message
	tools := make([]string, 0, len(group))
	for _, is := range group {
		tools = append(tools, is.Tool)
		if is.Severity > primary.Severity {
			primary = is
		}
		if len(is.Message) > len(message) {
			message = is.Message
		}
	}
	sort.Strings(tools)
	primary.Message = message
	primary.ReportedBy = tools
	return primary
}
