// Package report assembles review results into a Report, renders it as
// Markdown, JSON or SARIF and writes the artifacts to a sink.
package report

import (
	"time"

	"github.com/kushal45/reviewgraph/internal/orchestrator"
	"github.com/kushal45/reviewgraph/internal/types"
)

// Input is everything Build needs. Analysis may be nil when a stage failed
// before analysis finished.
type Input struct {
	RunID       string
	Repository  types.Repository
	Analysis    *types.Analysis
	MinSeverity types.Severity
	StartedAt   time.Time
	Errors      []types.StageError
	AIUsage     *types.Usage
}

// Build assembles a report stamped with now.
//
// The status is "failed" when there is no analysis, "partial" when a stage
// error was recorded or any unit failed, and "completed" otherwise.
func Build(in Input, now time.Time) *types.Report {
	r := &types.Report{
		RunID:           in.RunID,
		Repository:      in.Repository,
		GeneratedAt:     now.UTC(),
		MinSeverity:     in.MinSeverity,
		Summary:         orchestrator.Summarize(in.Analysis),
		Recommendations: []types.Recommendation{},
		Issues:          []types.Issue{},
		Units:           []types.UnitResult{},
		Failures:        []types.Failure{},
		Skipped:         []types.SkippedFile{},
		Errors:          in.Errors,
		AIUsage:         in.AIUsage,
	}
	if !in.StartedAt.IsZero() {
		r.Duration = now.Sub(in.StartedAt)
	}

	if in.Analysis == nil {
		r.Status = types.StatusFailed
		return r
	}

	r.Issues = append(r.Issues, in.Analysis.Issues...)
	r.Units = append(r.Units, in.Analysis.Units...)
	r.Failures = append(r.Failures, in.Analysis.Failures...)
	r.Skipped = append(r.Skipped, in.Analysis.Skipped...)
	r.Recommendations = orchestrator.Recommend(r.Summary, r.Failures)

	r.Status = orchestrator.Status(in.Analysis)
	if len(in.Errors) > 0 {
		r.Status = types.StatusPartial
	}
	return r
}

// FailedReport is the minimal report emitted when the workflow could not
// produce a regular one.
func FailedReport(runID string, repo types.Repository, errs []types.StageError, now time.Time) *types.Report {
	r := Build(Input{RunID: runID, Repository: repo, Errors: errs}, now)
	r.Status = types.StatusFailed
	return r
}

// ExceedsThreshold reports whether r contains an issue at or above sev.
func ExceedsThreshold(r *types.Report, sev types.Severity) bool {
	if r == nil {
		return false
	}
	for _, issue := range r.Issues {
		if issue.Severity >= sev {
			return true
		}
	}
	return false
}
