package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kushal45/reviewgraph/internal/types"
)

// DensityThreshold is the issues-per-analyzed-file ratio above which a
// repository or language is flagged.
const DensityThreshold = 5.0

func severityCounts() map[string]int {
	counts := make(map[string]int, len(types.AllSeverities))
	for _, sev := range types.AllSeverities {
		counts[sev.String()] = 0
	}
	return counts
}

// Summarize groups an analysis by language and by tool and computes totals.
func Summarize(a *types.Analysis) types.Summary {
	s := types.Summary{
		BySeverity: severityCounts(),
		ByLanguage: make(map[types.Language]types.LanguageSummary),
		ByTool:     make(map[string]types.ToolSummary),
	}
	if a == nil {
		return s
	}

	s.FilesAnalyzed = len(a.Languages)
	s.FilesSkipped = len(a.Skipped)
	s.TotalIssues = len(a.Issues)
	s.TotalUnits = len(a.Units)

	langs := make(map[types.Language]*types.LanguageSummary)
	langTools := make(map[types.Language]map[string]bool)
	getLang := func(l types.Language) *types.LanguageSummary {
		ls, ok := langs[l]
		if !ok {
			ls = &types.LanguageSummary{BySeverity: severityCounts(), Tools: []string{}}
			langs[l] = ls
			langTools[l] = make(map[string]bool)
		}
		return ls
	}
	tools := make(map[string]*types.ToolSummary)
	getTool := func(name string) *types.ToolSummary {
		ts, ok := tools[name]
		if !ok {
			ts = &types.ToolSummary{BySeverity: severityCounts()}
			tools[name] = ts
		}
		return ts
	}

	for _, lang := range a.Languages {
		getLang(lang).Files++
	}
	for _, u := range a.Units {
		getLang(u.Language)
		langTools[u.Language][u.Tool] = true
		ts := getTool(u.Tool)
		ts.Units++
		if u.Status == types.UnitFailed {
			ts.Failed++
			getLang(u.Language).FailedUnits++
			s.FailedUnits++
		}
	}
	for _, issue := range a.Issues {
		sev := issue.Severity.String()
		s.BySeverity[sev]++

		ls := getLang(issue.Language)
		ls.Issues++
		ls.BySeverity[sev]++

		ts := getTool(issue.Tool)
		ts.Issues++
		ts.BySeverity[sev]++
	}

	s.IssueDensity = density(s.TotalIssues, s.FilesAnalyzed)
	for lang, ls := range langs {
		for tool := range langTools[lang] {
			ls.Tools = append(ls.Tools, tool)
		}
		sort.Strings(ls.Tools)
		ls.Density = density(ls.Issues, ls.Files)
		s.ByLanguage[lang] = *ls
	}
	for name, ts := range tools {
		s.ByTool[name] = *ts
	}
	return s
}

func density(issues, files int) float64 {
	if files == 0 {
		return 0
	}
	return float64(issues) / float64(files)
}

// Recommend derives threshold-based recommendations from a summary and the
// failure manifest.
func Recommend(s types.Summary, failures []types.Failure) []types.Recommendation {
	recs := []types.Recommendation{}

	if n := s.BySeverity[types.SeverityCritical.String()]; n > 0 {
		recs = append(recs, types.Recommendation{
			Kind:     "critical_issues",
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("%d critical %s found: fix them before merging.", n, plural(n, "issue", "issues")),
		})
	}

	if s.FilesAnalyzed > 0 && s.IssueDensity > DensityThreshold {
		recs = append(recs, types.Recommendation{
			Kind:     "high_density",
			Severity: types.SeverityHigh,
			Message: fmt.Sprintf("High issue density: %.1f issues per analyzed file (threshold %.0f). Plan a cleanup pass before adding features.",
				s.IssueDensity, DensityThreshold),
		})
	}

	langs := make([]types.Language, 0, len(s.ByLanguage))
	for lang := range s.ByLanguage {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	for _, lang := range langs {
		ls := s.ByLanguage[lang]
		if ls.Files >= 1 && ls.Density > DensityThreshold {
			recs = append(recs, types.Recommendation{
				Kind:     "language_density",
				Severity: types.SeverityMedium,
				Message: fmt.Sprintf("%s code has %.1f issues per file across %d %s; consider stricter linting for %s.",
					lang, ls.Density, ls.Files, plural(ls.Files, "file", "files"), lang),
			})
		}
	}

	if len(failures) > 0 {
		failedTools := make(map[string]bool)
		missing := make(map[string]bool)
		for _, f := range failures {
			failedTools[f.Tool] = true
			if f.Reason == types.ReasonToolMissing {
				missing[f.Tool] = true
			}
		}
		recs = append(recs, types.Recommendation{
			Kind:     "failed_units",
			Severity: types.SeverityMedium,
			Message: fmt.Sprintf("%d analysis %s failed (%s); results for those files are incomplete.",
				len(failures), plural(len(failures), "unit", "units"), strings.Join(sortedKeys(failedTools), ", ")),
		})
		if len(missing) > 0 {
			recs = append(recs, types.Recommendation{
				Kind:     "install_tools",
				Severity: types.SeverityLow,
				Message:  fmt.Sprintf("Install the missing %s to get full coverage: %s.", plural(len(missing), "tool", "tools"), strings.Join(sortedKeys(missing), ", ")),
			})
		}
	}

	if s.TotalIssues == 0 && s.FailedUnits == 0 && len(failures) == 0 {
		recs = append(recs, types.Recommendation{
			Kind:     "clean",
			Severity: types.SeverityInfo,
			Message:  "No issues found and every analyzer succeeded.",
		})
	}
	return recs
}

// Status is "completed" when every unit succeeded and "partial" otherwise.
func Status(a *types.Analysis) string {
	if a != nil && len(a.Failures) > 0 {
		return types.StatusPartial
	}
	return types.StatusCompleted
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
