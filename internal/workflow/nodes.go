package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kushal45/reviewgraph/graph"
	"github.com/kushal45/reviewgraph/internal/orchestrator"
	"github.com/kushal45/reviewgraph/internal/report"
	"github.com/kushal45/reviewgraph/internal/repository"
	"github.com/kushal45/reviewgraph/internal/types"
)

type result = graph.NodeResult[ReviewState]

// FetchNode downloads repository metadata and files.
//
// Permanent failures (bad URL, missing repository, rate limit, 4xx) are
// recorded as a stage error and routed to handle_error. Other failures are
// returned as node errors so the engine's retry policy can try again.
type FetchNode struct {
	Fetcher repository.Fetcher
	Options repository.Options
	Logger  *zap.Logger
	Now     func() time.Time
}

func (n *FetchNode) Run(ctx context.Context, state ReviewState) result {
	snap, err := n.Fetcher.Fetch(ctx, state.RepoURL, n.Options)
	if err != nil {
		if !permanentFetchError(err) && ctx.Err() == nil {
			return result{Err: err}
		}
		n.Logger.Error("fetch failed", zap.String("repo", state.RepoURL), zap.Error(err))
		return result{Delta: ReviewState{Errors: []types.StageError{stageError(NodeFetch, err, n.Now)}}}
	}

	repo := snap.Repository
	files := snap.Files
	if files == nil {
		files = []types.SourceFile{}
	}
	if len(snap.Skipped) > 0 {
		n.Logger.Warn("some files could not be read", zap.Int("unread", len(snap.Skipped)))
	}
	return result{Delta: ReviewState{Repository: &repo, Files: files, Unread: snap.Skipped}}
}

func permanentFetchError(err error) bool {
	if errors.Is(err, repository.ErrInvalidURL) ||
		errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrRateLimited) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var httpErr *repository.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode < 500
}

// AnalyzeNode runs the orchestrator over the fetched files.
type AnalyzeNode struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *zap.Logger
	Now          func() time.Time
}

func (n *AnalyzeNode) Run(ctx context.Context, state ReviewState) result {
	analysis, err := n.Orchestrator.Analyze(ctx, state.Files)
	if err != nil {
		n.Logger.Error("analysis failed", zap.Error(err))
		return result{Delta: ReviewState{Errors: []types.StageError{stageError(NodeAnalyze, err, n.Now)}}}
	}
	if len(state.Unread) > 0 {
		analysis.Skipped = append(append([]types.SkippedFile(nil), state.Unread...), analysis.Skipped...)
	}
	return result{Delta: ReviewState{Analysis: analysis}}
}

// ReportNode builds the report and writes it to the sink in every
// configured format.
type ReportNode struct {
	Sink        report.Sink
	Formatters  []report.Formatter
	MinSeverity types.Severity

	// Usage returns AI reviewer consumption. Nil when AI review is off.
	Usage func() *types.Usage

	Logger *zap.Logger
	Now    func() time.Time
}

func (n *ReportNode) Run(ctx context.Context, state ReviewState) result {
	r := buildReport(state, n.MinSeverity, n.Usage, n.Now())

	delta := ReviewState{Report: r, Status: r.Status, FinishedAt: r.GeneratedAt}
	if n.Sink != nil && len(n.Formatters) > 0 {
		locations, err := report.Write(ctx, n.Sink, r, n.Formatters...)
		delta.Artifacts = locations
		if err != nil {
			n.Logger.Error("report write failed", zap.Error(err))
			delta.Errors = []types.StageError{stageError(NodeReport, err, n.Now)}
			return result{Delta: delta}
		}
	}
	n.Logger.Info("report ready",
		zap.String("status", r.Status),
		zap.Int("issues", len(r.Issues)),
		zap.Int("failures", len(r.Failures)))
	return result{Delta: delta, Route: graph.Stop()}
}

func buildReport(state ReviewState, minSev types.Severity, usage func() *types.Usage, now time.Time) *types.Report {
	in := report.Input{
		RunID:       state.RunID,
		Analysis:    state.Analysis,
		MinSeverity: minSev,
		StartedAt:   state.StartedAt,
		Errors:      state.Errors,
	}
	if state.Repository != nil {
		in.Repository = *state.Repository
	} else {
		in.Repository = types.Repository{URL: state.RepoURL}
	}
	if usage != nil {
		in.AIUsage = usage()
	}
	return report.Build(in, now)
}

// HandleErrorNode finalizes runs in which a stage failed.
//
// A run that already has a report, or at least a partial analysis, is marked
// partial and keeps every finished unit. Without either the run is marked
// failed. Any report built here is written if a sink is configured.
type HandleErrorNode struct {
	Sink        report.Sink
	Formatters  []report.Formatter
	MinSeverity types.Severity
	Usage       func() *types.Usage
	Logger      *zap.Logger
	Now         func() time.Time
}

func (n *HandleErrorNode) Run(ctx context.Context, state ReviewState) result {
	for _, e := range state.Errors {
		n.Logger.Error("stage failed",
			zap.String("run_id", state.RunID),
			zap.String("stage", e.Stage),
			zap.String("error", e.Message))
	}

	now := n.Now()
	if state.Report != nil {
		r := *state.Report
		r.Status = types.StatusPartial
		r.Errors = state.Errors
		return result{Delta: ReviewState{Report: &r, Status: types.StatusPartial, FinishedAt: now}, Route: graph.Stop()}
	}

	var r *types.Report
	if state.Analysis != nil {
		r = buildReport(state, n.MinSeverity, n.Usage, now)
		r.Status = types.StatusPartial
	} else {
		repo := types.Repository{URL: state.RepoURL}
		if state.Repository != nil {
			repo = *state.Repository
		}
		r = report.FailedReport(state.RunID, repo, state.Errors, now)
		if !state.StartedAt.IsZero() {
			r.Duration = now.Sub(state.StartedAt)
		}
	}

	delta := ReviewState{Report: r, Status: r.Status, FinishedAt: now}
	if n.Sink != nil && len(n.Formatters) > 0 {
		locations, err := report.Write(ctx, n.Sink, r, n.Formatters...)
		if err != nil {
			n.Logger.Warn("could not write error report", zap.Error(err))
		}
		delta.Artifacts = locations
	}
	return result{Delta: delta, Route: graph.Stop()}
}

func stageError(stage string, err error, now func() time.Time) types.StageError {
	return types.StageError{Stage: stage, Message: err.Error(), At: now().UTC()}
}
