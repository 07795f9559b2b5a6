package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kushal45/reviewgraph/graph"
	"github.com/kushal45/reviewgraph/graph/emit"
	"github.com/kushal45/reviewgraph/graph/store"
	"github.com/kushal45/reviewgraph/internal/analyzer"
	"github.com/kushal45/reviewgraph/internal/orchestrator"
	"github.com/kushal45/reviewgraph/internal/report"
	"github.com/kushal45/reviewgraph/internal/repository"
	"github.com/kushal45/reviewgraph/internal/types"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// fakeFetcher returns errs in order, then snap.
type fakeFetcher struct {
	mu    sync.Mutex
	snap  *types.Snapshot
	errs  []error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, _ repository.Options) (*types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		} else if f.snap != nil {
			f.errs = nil
		}
		return nil, err
	}
	s := *f.snap
	return &s, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleSnapshot() *types.Snapshot {
	return &types.Snapshot{
		Repository: types.Repository{FullName: "octo/hello", Name: "hello", Ref: "main", TotalFiles: 3},
		Files: []types.SourceFile{
			{Path: "app.py", Content: "import os\n"},
			{Path: "run.sh", Content: "echo $1\n"},
			{Path: "README.md", Content: "# hi\n"},
		},
	}
}

type stubAnalyzer struct {
	name  string
	langs []types.Language
	err   error
}

func (s *stubAnalyzer) Name() string                { return s.name }
func (s *stubAnalyzer) Languages() []types.Language { return s.langs }
func (s *stubAnalyzer) Analyze(_ context.Context, t analyzer.Target) ([]types.Issue, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []types.Issue{{Line: 1, Severity: types.SeverityMedium, Category: "style", Message: "finding in " + t.Path}}, nil
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

type harness struct {
	wf      *Workflow
	fetcher *fakeFetcher
	store   *store.MemStore[ReviewState]
	events  *emit.BufferedEmitter
	outDir  string
}

func newHarness(t *testing.T, fetcher *fakeFetcher, sink report.Sink, analyzers ...analyzer.Analyzer) *harness {
	t.Helper()
	return newHarnessWith(t, fetcher, sink, nil, analyzers...)
}

// newHarnessWith is newHarness with a hook to adjust the orchestrator config.
func newHarnessWith(t *testing.T, fetcher *fakeFetcher, sink report.Sink, tune func(*orchestrator.Config), analyzers ...analyzer.Analyzer) *harness {
	t.Helper()
	if len(analyzers) == 0 {
		analyzers = []analyzer.Analyzer{
			&stubAnalyzer{name: "lint", langs: []types.Language{"python", "shell"}},
		}
	}
	reg := analyzer.NewRegistry()
	for _, a := range analyzers {
		if err := reg.Register(a); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	cfg := orchestrator.DefaultConfig()
	cfg.WorkDir = t.TempDir()
	if tune != nil {
		tune(&cfg)
	}
	orch, err := orchestrator.New(reg, cfg)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	h := &harness{
		fetcher: fetcher,
		store:   store.NewMemStore[ReviewState](),
		events:  emit.NewBufferedEmitter(),
		outDir:  t.TempDir(),
	}
	if sink == nil {
		sink = &report.LocalSink{Dir: h.outDir}
	}
	h.wf, err = New(Config{
		Fetcher:         fetcher,
		Orchestrator:    orch,
		Sink:            sink,
		Formatters:      []report.Formatter{&report.JSONFormatter{Indent: true}, &report.MarkdownFormatter{}},
		Store:           h.store,
		Emitter:         h.events,
		FetchAttempts:   2,
		FetchRetryDelay: time.Millisecond,
		Now:             func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

func (h *harness) path(runID string) []string {
	var nodes []string
	for _, e := range h.events.GetHistoryWithFilter(runID, emit.HistoryFilter{Msg: "node_end"}) {
		nodes = append(nodes, e.NodeID)
	}
	return nodes
}

func TestRun_Completed(t *testing.T) {
	h := newHarness(t, &fakeFetcher{snap: sampleSnapshot()}, nil)

	final, err := h.wf.Run(context.Background(), "run-1", "octo/hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final.Status != types.StatusCompleted {
		t.Errorf("Status = %s, want completed", final.Status)
	}
	if diff := cmp.Diff([]string{NodeFetch, NodeAnalyze, NodeReport}, h.path("run-1")); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{NodeFetch, NodeAnalyze, NodeReport}, final.Path); diff != "" {
		t.Errorf("final.Path mismatch (-want +got):\n%s", diff)
	}

	r := final.Report
	if r == nil {
		t.Fatal("no report")
	}
	if r.RunID != "run-1" || r.Repository.FullName != "octo/hello" || len(r.Issues) != 2 || len(r.Skipped) != 1 {
		t.Errorf("report = %+v", r)
	}

	wantArtifacts := map[string]string{
		"json":     filepath.Join(h.outDir, "run-1", "report.json"),
		"markdown": filepath.Join(h.outDir, "run-1", "report.md"),
	}
	if diff := cmp.Diff(wantArtifacts, final.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(wantArtifacts["json"])
	if err != nil {
		t.Fatalf("read json report: %v", err)
	}
	if !strings.Contains(string(data), `"status": "completed"`) {
		t.Errorf("json report lacks status:\n%s", data)
	}

	if _, _, err := h.store.LoadCheckpoint(context.Background(), graph.CheckpointID("run-1", NodeFetch)); err != nil {
		t.Errorf("fetch checkpoint missing: %v", err)
	}
	latest, err := h.wf.Latest(context.Background(), "run-1")
	if err != nil || latest.Report == nil || latest.Status != types.StatusCompleted {
		t.Errorf("Latest = (%+v, %v)", latest.Status, err)
	}
}

func TestRun_PartialOnUnitFailure(t *testing.T) {
	h := newHarness(t, &fakeFetcher{snap: sampleSnapshot()}, nil,
		&stubAnalyzer{name: "lint", langs: []types.Language{"python"}},
		&stubAnalyzer{name: "shellcheck", langs: []types.Language{"shell"}, err: fmt.Errorf("%w: shellcheck", analyzer.ErrToolNotFound)},
	)

	final, err := h.wf.Run(context.Background(), "run-1", "octo/hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final.Status != types.StatusPartial {
		t.Errorf("Status = %s, want partial", final.Status)
	}
	if len(final.Report.Failures) != 1 || final.Report.Failures[0].Reason != types.ReasonToolMissing {
		t.Errorf("failures = %+v", final.Report.Failures)
	}
	if len(final.Errors) != 0 {
		t.Errorf("unit failures must not become stage errors: %+v", final.Errors)
	}
}

func TestRun_UnreadFilesAreReported(t *testing.T) {
	snap := sampleSnapshot()
	snap.Skipped = []types.SkippedFile{{Path: "lib/broken.py", Language: "python", Reason: types.SkipUnreadable}}
	h := newHarness(t, &fakeFetcher{snap: snap}, nil)

	final, err := h.wf.Run(context.Background(), "run-1", "octo/hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []types.SkippedFile{
		{Path: "lib/broken.py", Language: "python", Reason: types.SkipUnreadable},
		{Path: "README.md", Language: "markdown", Reason: types.SkipNoAnalyzer},
	}
	if diff := cmp.Diff(want, final.Report.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if final.Report.Summary.FilesSkipped != 2 {
		t.Errorf("FilesSkipped = %d, want 2", final.Report.Summary.FilesSkipped)
	}
}

// cancelingAnalyzer reports one finding per file and cancels the run when it
// reaches the file named at.
type cancelingAnalyzer struct {
	at     string
	cancel context.CancelFunc
}

func (c *cancelingAnalyzer) Name() string                { return "lint" }
func (c *cancelingAnalyzer) Languages() []types.Language { return []types.Language{"python", "shell"} }
func (c *cancelingAnalyzer) Analyze(ctx context.Context, t analyzer.Target) ([]types.Issue, error) {
	if t.Path == c.at {
		c.cancel()
		return nil, ctx.Err()
	}
	return []types.Issue{{Line: 1, Severity: types.SeverityHigh, Message: "finding in " + t.Path}}, nil
}

func TestRun_CanceledDuringAnalysisKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarnessWith(t, &fakeFetcher{snap: sampleSnapshot()}, nil,
		func(c *orchestrator.Config) { c.Concurrency = 1 },
		&cancelingAnalyzer{at: "run.sh", cancel: cancel},
	)

	final, err := h.wf.Run(ctx, "run-1", "octo/hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if final.Status != types.StatusPartial {
		t.Errorf("Status = %s, want partial", final.Status)
	}

	r := final.Report
	if r == nil {
		t.Fatal("no report")
	}
	if r.Status != types.StatusPartial || len(r.Units) != 2 || len(r.Issues) != 1 {
		t.Errorf("report status = %s, units = %d, issues = %d", r.Status, len(r.Units), len(r.Issues))
	}
	if len(r.Failures) != 1 || r.Failures[0].File != "run.sh" || r.Failures[0].Reason != types.ReasonCanceled {
		t.Errorf("failures = %+v", r.Failures)
	}
	if r.Summary.TotalIssues != 1 || r.Summary.FailedUnits != 1 {
		t.Errorf("summary = %+v", r.Summary)
	}
	if len(final.Errors) != 1 || final.Errors[0].Stage != NodeAnalyze {
		t.Errorf("errors = %+v", final.Errors)
	}
	if diff := cmp.Diff([]string{NodeFetch, NodeAnalyze, NodeHandleError}, final.Path); diff != "" {
		t.Errorf("final.Path mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(h.outDir, "run-1", "report.json"))
	if err != nil {
		t.Fatalf("partial report not written: %v", err)
	}
	if !strings.Contains(string(data), "finding in app.py") {
		t.Errorf("written report lacks the finished unit's issue:\n%s", data)
	}
}

func TestRun_FetchNotFound(t *testing.T) {
	h := newHarness(t, &fakeFetcher{errs: []error{fmt.Errorf("fetch: %w", repository.ErrNotFound)}}, nil)

	final, err := h.wf.Run(context.Background(), "run-1", "octo/missing")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{NodeFetch, NodeHandleError}, h.path("run-1")); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{NodeFetch, NodeHandleError}, final.Path); diff != "" {
		t.Errorf("final.Path mismatch (-want +got):\n%s", diff)
	}
	if final.Status != types.StatusFailed || final.Report == nil || final.Report.Status != types.StatusFailed {
		t.Fatalf("status = %s, report = %+v", final.Status, final.Report)
	}
	if len(final.Errors) != 1 || final.Errors[0].Stage != NodeFetch {
		t.Errorf("errors = %+v", final.Errors)
	}
	if h.fetcher.Calls() != 1 {
		t.Errorf("permanent error retried: %d calls", h.fetcher.Calls())
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "run-1", "report.md")); err != nil {
		t.Errorf("error report not written: %v", err)
	}
}

func TestRun_FetchRetriesTransientErrors(t *testing.T) {
	h := newHarness(t, &fakeFetcher{snap: sampleSnapshot(), errs: []error{errors.New("connection reset by peer")}}, nil)

	final, err := h.wf.Run(context.Background(), "run-1", "octo/hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final.Status != types.StatusCompleted {
		t.Errorf("Status = %s, want completed", final.Status)
	}
	if h.fetcher.Calls() != 2 {
		t.Errorf("fetch calls = %d, want 2", h.fetcher.Calls())
	}
	if n := len(h.events.GetHistoryWithFilter("run-1", emit.HistoryFilter{Msg: "node_retry"})); n != 1 {
		t.Errorf("retry events = %d, want 1", n)
	}
}

func TestRun_FetchRetriesExhausted(t *testing.T) {
	h := newHarness(t, &fakeFetcher{errs: []error{errors.New("connection reset by peer")}}, nil)

	final, err := h.wf.Run(context.Background(), "run-1", "octo/hello")
	if err == nil {
		t.Fatal("expected engine error after exhausted retries")
	}
	var nodeErr *graph.NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeID != NodeFetch {
		t.Errorf("err = %v, want NodeError from fetch", err)
	}
	if final.Status != types.StatusFailed || final.Report == nil {
		t.Errorf("status = %s, report = %v", final.Status, final.Report)
	}
	if len(final.Errors) != 1 || final.Errors[0].Stage != NodeFetch {
		t.Errorf("errors = %+v", final.Errors)
	}
}

func TestRun_ReportSinkFailure(t *testing.T) {
	h := newHarness(t, &fakeFetcher{snap: sampleSnapshot()}, failingSink{})

	final, err := h.wf.Run(context.Background(), "run-1", "octo/hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{NodeFetch, NodeAnalyze, NodeReport, NodeHandleError}, h.path("run-1")); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if final.Status != types.StatusPartial {
		t.Errorf("Status = %s, want partial", final.Status)
	}
	if final.Report == nil || len(final.Report.Issues) != 2 || final.Report.Status != types.StatusPartial {
		t.Errorf("report = %+v", final.Report)
	}
	if len(final.Report.Errors) != 1 || final.Report.Errors[0].Stage != NodeReport {
		t.Errorf("report errors = %+v", final.Report.Errors)
	}
}

func TestResume(t *testing.T) {
	h := newHarness(t, &fakeFetcher{snap: sampleSnapshot()}, nil)
	ctx := context.Background()

	if _, err := h.wf.Run(ctx, "run-1", "octo/hello"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	final, err := h.wf.Resume(ctx, "run-1", "run-2")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if h.fetcher.Calls() != 1 {
		t.Errorf("resume fetched again: %d calls", h.fetcher.Calls())
	}
	if final.RunID != "run-2" || final.Report == nil || final.Report.RunID != "run-2" {
		t.Errorf("resumed state = %+v", final.RunID)
	}
	if diff := cmp.Diff([]string{NodeAnalyze, NodeReport}, h.path("run-2")); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if len(h.events.GetHistoryWithFilter("run-2", emit.HistoryFilter{Msg: "run_resumed"})) != 1 {
		t.Error("missing run_resumed event")
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "run-2", "report.json")); err != nil {
		t.Errorf("resumed report not written: %v", err)
	}

	if _, err := h.wf.Resume(ctx, "nope", "run-3"); err == nil {
		t.Error("resume of unknown run should fail")
	}
}

func TestResume_FailedFetch(t *testing.T) {
	h := newHarness(t, &fakeFetcher{errs: []error{repository.ErrInvalidURL}}, nil)
	ctx := context.Background()

	if _, err := h.wf.Run(ctx, "run-1", "bad"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := h.wf.Resume(ctx, "run-1", "run-2"); err == nil {
		t.Error("resume after failed fetch should fail")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without fetcher should fail")
	}
	if _, err := New(Config{Fetcher: &fakeFetcher{}}); err == nil {
		t.Error("New without orchestrator should fail")
	}
}

func TestReduceReviewState(t *testing.T) {
	repo := &types.Repository{Name: "hello"}
	prev := ReviewState{
		RunID:     "run-1",
		StartedAt: fixedNow,
		Artifacts: map[string]string{"json": "a.json"},
		Errors:    []types.StageError{{Stage: "fetch"}},
	}
	delta := ReviewState{
		Repository: repo,
		Files:      []types.SourceFile{},
		Unread:     []types.SkippedFile{{Path: "x.py", Reason: types.SkipUnreadable}},
		Artifacts:  map[string]string{"markdown": "a.md"},
		Errors:     []types.StageError{{Stage: "report"}},
		Status:     types.StatusPartial,
		StartedAt:  fixedNow.Add(time.Hour),
		FinishedAt: fixedNow.Add(time.Minute),
	}

	got := ReduceReviewState(prev, delta)
	if got.RunID != "run-1" || got.Repository != repo || got.Files == nil || len(got.Unread) != 1 {
		t.Errorf("replace fields wrong: %+v", got)
	}
	if diff := cmp.Diff(map[string]string{"json": "a.json", "markdown": "a.md"}, got.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
	if len(got.Errors) != 2 || !got.Failed("fetch") || !got.Failed("report") || got.Failed("analyze") {
		t.Errorf("errors = %+v", got.Errors)
	}
	if !got.StartedAt.Equal(fixedNow) || !got.FinishedAt.Equal(fixedNow.Add(time.Minute)) {
		t.Errorf("timestamps = %v / %v", got.StartedAt, got.FinishedAt)
	}
	if len(prev.Errors) != 1 || len(prev.Artifacts) != 1 {
		t.Error("reducer mutated prev")
	}
}
