// Package workflow wires the review pipeline into a graph:
//
//	fetch ──ok──▶ analyze ──ok──▶ report ──▶ Stop
//	  │              │               │
//	  └──error──▶ handle_error ◀─────┘
//	                 │
//	                 ▼
//	                Stop
//
// State is persisted after every step and checkpointed after fetch, so a run
// can be resumed without downloading the repository again.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kushal45/reviewgraph/graph"
	"github.com/kushal45/reviewgraph/graph/emit"
	"github.com/kushal45/reviewgraph/graph/store"
	"github.com/kushal45/reviewgraph/internal/orchestrator"
	"github.com/kushal45/reviewgraph/internal/report"
	"github.com/kushal45/reviewgraph/internal/repository"
	"github.com/kushal45/reviewgraph/internal/types"
)

// Config holds the collaborators of a review workflow.
type Config struct {
	Fetcher      repository.Fetcher
	FetchOptions repository.Options
	Orchestrator *orchestrator.Orchestrator

	// Sink and Formatters control where reports are written. A nil Sink
	// keeps the report in state only.
	Sink       report.Sink
	Formatters []report.Formatter

	// Usage reports AI reviewer consumption for the report summary.
	Usage func() *types.Usage

	Store   store.Store[ReviewState]
	Emitter emit.Emitter
	Metrics *graph.PrometheusMetrics
	Logger  *zap.Logger

	// FetchTimeout, FetchAttempts and FetchRetryDelay bound the fetch node.
	// Zero values use 5 minutes, 3 attempts and a 1 second base delay.
	FetchTimeout    time.Duration
	FetchAttempts   int
	FetchRetryDelay time.Duration

	// RunBudget bounds a whole run. Zero means no limit.
	RunBudget time.Duration

	Now func() time.Time
}

// Workflow runs reviews.
type Workflow struct {
	engine  *graph.Engine[ReviewState]
	store   store.Store[ReviewState]
	handler *HandleErrorNode
	history *emit.BufferedEmitter
	logger  *zap.Logger
	now     func() time.Time
}

// New builds the review graph.
func New(cfg Config) (*Workflow, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("workflow: fetcher is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("workflow: orchestrator is required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemStore[ReviewState]()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.FetchRetryDelay <= 0 {
		cfg.FetchRetryDelay = time.Second
	}
	logger := cfg.Logger.With(zap.String("component", "workflow"))

	opts := []graph.Option{
		graph.WithMaxSteps(10),
		graph.WithCheckpointAfter(NodeFetch),
		graph.WithNodePolicy(NodeFetch, graph.NodePolicy{
			Timeout: cfg.FetchTimeout,
			RetryPolicy: &graph.RetryPolicy{
				MaxAttempts: cfg.FetchAttempts,
				BaseDelay:   cfg.FetchRetryDelay,
				MaxDelay:    15 * cfg.FetchRetryDelay,
			},
		}),
	}
	if cfg.RunBudget > 0 {
		opts = append(opts, graph.WithRunWallClockBudget(cfg.RunBudget))
	}
	if cfg.Metrics != nil {
		opts = append(opts, graph.WithMetrics(cfg.Metrics))
	}

	history := emit.NewBufferedEmitter()
	engine, err := graph.New(ReduceReviewState, cfg.Store, emit.NewMultiEmitter(cfg.Emitter, history), opts...)
	if err != nil {
		return nil, err
	}

	minSeverity := cfg.Orchestrator.Config().MinSeverity
	handler := &HandleErrorNode{
		Sink:        cfg.Sink,
		Formatters:  cfg.Formatters,
		MinSeverity: minSeverity,
		Usage:       cfg.Usage,
		Logger:      logger,
		Now:         cfg.Now,
	}
	nodes := []struct {
		id   string
		node graph.Node[ReviewState]
	}{
		{NodeFetch, &FetchNode{Fetcher: cfg.Fetcher, Options: cfg.FetchOptions, Logger: logger, Now: cfg.Now}},
		{NodeAnalyze, &AnalyzeNode{Orchestrator: cfg.Orchestrator, Logger: logger, Now: cfg.Now}},
		{NodeReport, &ReportNode{
			Sink:        cfg.Sink,
			Formatters:  cfg.Formatters,
			MinSeverity: minSeverity,
			Usage:       cfg.Usage,
			Logger:      logger,
			Now:         cfg.Now,
		}},
		{NodeHandleError, handler},
	}
	for _, n := range nodes {
		if err := engine.Add(n.id, n.node); err != nil {
			return nil, err
		}
	}

	edges := []struct {
		from, to string
		when     graph.Predicate[ReviewState]
	}{
		{NodeFetch, NodeHandleError, stageFailed(NodeFetch)},
		{NodeFetch, NodeAnalyze, nil},
		{NodeAnalyze, NodeHandleError, stageFailed(NodeAnalyze)},
		{NodeAnalyze, NodeReport, nil},
		{NodeReport, NodeHandleError, stageFailed(NodeReport)},
	}
	for _, e := range edges {
		if err := engine.Connect(e.from, e.to, e.when); err != nil {
			return nil, err
		}
	}
	if err := engine.StartAt(NodeFetch); err != nil {
		return nil, err
	}

	return &Workflow{
		engine:  engine,
		store:   cfg.Store,
		handler: handler,
		history: history,
		logger:  logger,
		now:     cfg.Now,
	}, nil
}

// Run reviews repoURL under runID.
//
// The returned state always carries a report. A non-nil error means the
// engine itself failed (node timeout, exhausted retries, store failure); the
// report is then the minimal failure report built from the recorded errors.
func (w *Workflow) Run(ctx context.Context, runID, repoURL string) (ReviewState, error) {
	initial := ReviewState{RunID: runID, RepoURL: repoURL, StartedAt: w.now()}
	w.logger.Info("review started", zap.String("run_id", runID), zap.String("repo", repoURL))

	final, err := w.engine.Run(ctx, runID, initial)
	return w.finish(ctx, final, err)
}

// Resume re-runs analysis and reporting for fromRunID under newRunID, starting
// from the state checkpointed after fetch.
func (w *Workflow) Resume(ctx context.Context, fromRunID, newRunID string) (ReviewState, error) {
	cp := graph.CheckpointID(fromRunID, NodeFetch)
	state, step, err := w.store.LoadCheckpoint(ctx, cp)
	if err != nil {
		return ReviewState{}, fmt.Errorf("load checkpoint %s: %w", cp, err)
	}
	if state.Failed(NodeFetch) {
		return state, fmt.Errorf("run %s has no fetched repository to resume from", fromRunID)
	}

	state.RunID = newRunID
	state.StartedAt = w.now()
	state.Analysis = nil
	state.Report = nil
	state.Artifacts = nil
	state.Errors = nil
	state.Status = ""
	state.FinishedAt = time.Time{}

	resumeCp := graph.CheckpointID(newRunID, "resume")
	if err := w.store.SaveCheckpoint(ctx, resumeCp, state, step); err != nil {
		return state, fmt.Errorf("save checkpoint %s: %w", resumeCp, err)
	}

	w.logger.Info("review resumed", zap.String("run_id", newRunID), zap.String("from", fromRunID))
	final, err := w.engine.ResumeFromCheckpoint(ctx, resumeCp, newRunID, NodeAnalyze)
	return w.finish(ctx, final, err)
}

// Latest returns the most recently persisted state of runID.
func (w *Workflow) Latest(ctx context.Context, runID string) (ReviewState, error) {
	state, _, err := w.store.LoadLatest(ctx, runID)
	return state, err
}

func (w *Workflow) finish(ctx context.Context, final ReviewState, runErr error) (ReviewState, error) {
	if runErr != nil {
		stage := NodeFetch
		var nodeErr *graph.NodeError
		switch {
		case errors.As(runErr, &nodeErr) && nodeErr.NodeID != "":
			stage = nodeErr.NodeID
		case final.Analysis != nil && final.Report == nil && isContextError(runErr):
			// Canceled mid-analysis: the analyze node returned its partial
			// results and the engine stopped before report.
			stage = NodeAnalyze
		case final.Analysis != nil:
			stage = NodeReport
		case final.Repository != nil:
			stage = NodeAnalyze
		}
		final = ReduceReviewState(final, ReviewState{
			Errors: []types.StageError{{Stage: stage, Message: runErr.Error(), At: w.now().UTC()}},
		})

		// The engine stopped before handle_error could run; finish the run
		// the same way with a context that is still usable.
		handleCtx := context.WithoutCancel(ctx)
		res := w.handler.Run(handleCtx, final)
		final = ReduceReviewState(final, res.Delta)
		final.Path = append(w.visited(final.RunID), NodeHandleError)
	} else {
		final.Path = w.visited(final.RunID)
	}
	w.history.Clear(final.RunID)

	w.logger.Info("review finished",
		zap.String("run_id", final.RunID),
		zap.String("status", final.Status),
		zap.Int("stage_errors", len(final.Errors)))
	return final, runErr
}

// visited lists the nodes the engine completed for runID, in order.
func (w *Workflow) visited(runID string) []string {
	events := w.history.GetHistoryWithFilter(runID, emit.HistoryFilter{Msg: "node_end"})
	path := make([]string, 0, len(events)+1)
	for _, e := range events {
		path = append(path, e.NodeID)
	}
	return path
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
