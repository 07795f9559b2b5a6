// Package orchestrator turns a set of source files into analysis units,
// runs them with bounded concurrency and aggregates the results.
//
// A unit is one (file, analyzer) pair. Units fail independently: a missing
// tool, a timeout or unreadable output marks only that unit failed and adds
// an entry to the failure manifest. Analyze always returns what finished.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kushal45/reviewgraph/internal/analyzer"
	"github.com/kushal45/reviewgraph/internal/language"
	"github.com/kushal45/reviewgraph/internal/types"
)

// Orchestrator dispatches analysis units for a set of files.
type Orchestrator struct {
	registry *analyzer.Registry
	cfg      Config
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records unit outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New validates cfg and returns an orchestrator over registry.
func New(registry *analyzer.Registry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid config: %w", err)
	}
	o := &Orchestrator{
		registry: registry,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o, nil
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

type unit struct {
	file     types.SourceFile
	lang     types.Language
	analyzer analyzer.Analyzer
	absPath  string
}

// Analyze runs every applicable analyzer on files.
//
// The returned error is non-nil only when the run could not start, for
// example when the workspace directory cannot be created. Cancellation of ctx
// marks unfinished units failed with reason "canceled" and still returns the
// partial analysis.
func (o *Orchestrator) Analyze(ctx context.Context, files []types.SourceFile) (*types.Analysis, error) {
	result := &types.Analysis{
		Issues:    []types.Issue{},
		Units:     []types.UnitResult{},
		Failures:  []types.Failure{},
		Skipped:   []types.SkippedFile{},
		Languages: make(map[string]types.Language),
		StartedAt: o.now(),
	}

	units := o.plan(files, result)
	if len(units) == 0 {
		result.FinishedAt = o.now()
		o.logger.Info("nothing to analyze", zap.Int("skipped", len(result.Skipped)))
		return result, nil
	}

	workspace, cleanup, err := o.materialize(units, packageContext(files, units))
	if err != nil {
		return result, err
	}
	defer cleanup()

	o.logger.Info("analysis started",
		zap.Int("files", len(result.Languages)),
		zap.Int("units", len(units)),
		zap.Int("concurrency", o.cfg.Concurrency))

	unitResults := make([]types.UnitResult, len(units))
	unitIssues := make([][]types.Issue, len(units))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, u := range units {
		if ctx.Err() != nil {
			unitResults[i] = canceledUnit(u, ctx.Err())
			o.metrics.unitCanceled(u.analyzer.Name())
			continue
		}
		g.Go(func() error {
			unitResults[i], unitIssues[i] = o.runUnit(ctx, workspace, u)
			return nil
		})
	}
	_ = g.Wait()

	for i, ur := range unitResults {
		result.Units = append(result.Units, ur)
		if ur.Status == types.UnitFailed {
			result.Failures = append(result.Failures, types.Failure{
				File:     ur.File,
				Language: ur.Language,
				Tool:     ur.Tool,
				Reason:   ur.Reason,
				Message:  ur.Error,
			})
			continue
		}
		for _, issue := range unitIssues[i] {
			if issue.Severity < o.cfg.MinSeverity {
				continue
			}
			result.Issues = append(result.Issues, issue)
			o.metrics.issue(issue.Tool, issue.Severity)
		}
	}
	if o.cfg.MergeDuplicates {
		result.Issues, result.Merged = MergeDuplicates(result.Issues)
	}
	SortIssues(result.Issues)
	result.FinishedAt = o.now()

	o.logger.Info("analysis finished",
		zap.Int("units", len(result.Units)),
		zap.Int("failed", len(result.Failures)),
		zap.Int("issues", len(result.Issues)),
		zap.Int("merged", result.Merged),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

// plan filters files and expands the remainder into units, recording skipped
// files in result.
func (o *Orchestrator) plan(files []types.SourceFile, result *types.Analysis) []unit {
	var units []unit
	seen := make(map[string]bool, len(files))

	skip := func(f types.SourceFile, lang types.Language, reason string) {
		result.Skipped = append(result.Skipped, types.SkippedFile{Path: f.Path, Language: lang, Reason: reason})
		o.metrics.fileSkipped(reason)
		o.logger.Debug("file skipped", zap.String("file", f.Path), zap.String("reason", reason))
	}

	for _, f := range files {
		f.Path = filepath.ToSlash(f.Path)
		if seen[f.Path] {
			skip(f, language.Resolve(f.Path, f.Language), types.SkipDuplicate)
			continue
		}
		seen[f.Path] = true

		lang := language.Resolve(f.Path, f.Language)
		size := f.Size
		if int64(len(f.Content)) > size {
			size = int64(len(f.Content))
		}

		switch {
		case !filepath.IsLocal(filepath.FromSlash(f.Path)):
			skip(f, lang, types.SkipBadPath)
			continue
		case isExcluded(o.cfg.Exclude, f.Path):
			skip(f, lang, types.SkipExcluded)
			continue
		case o.cfg.MaxFileSize > 0 && size > o.cfg.MaxFileSize:
			skip(f, lang, types.SkipTooLarge)
			continue
		case isBinary(f.Content):
			skip(f, lang, types.SkipBinary)
			continue
		}

		analyzers := o.registry.For(lang)
		if lang == types.LanguageUnknown || len(analyzers) == 0 {
			skip(f, lang, types.SkipNoAnalyzer)
			continue
		}

		result.Languages[f.Path] = lang
		for _, a := range analyzers {
			units = append(units, unit{file: f, lang: lang, analyzer: a})
		}
	}
	return units
}

func isExcluded(globs []string, p string) bool {
	_, ok := Excluded(globs, p)
	return ok
}

// isBinary reports whether content looks binary: a NUL byte in the first 8KB.
func isBinary(content string) bool {
	head := content
	if len(head) > 8<<10 {
		head = head[:8<<10]
	}
	return bytes.IndexByte([]byte(head), 0) >= 0
}

// goModuleFiles are written to the workspace wherever they appear so that
// package-scoped Go tools find the module root.
var goModuleFiles = map[string]bool{"go.mod": true, "go.sum": true, "go.work": true}

// packageContext returns the files a package-scoped tool needs besides the
// units themselves: Go module files, and every other Go file in a directory
// holding a Go unit. Empty or binary files are left out.
func packageContext(files []types.SourceFile, units []unit) []types.SourceFile {
	goDirs := make(map[string]bool)
	for _, u := range units {
		if u.lang == "go" {
			goDirs[path.Dir(u.file.Path)] = true
		}
	}
	if len(goDirs) == 0 {
		return nil
	}

	var out []types.SourceFile
	for _, f := range files {
		p := filepath.ToSlash(f.Path)
		if f.Content == "" || isBinary(f.Content) || !filepath.IsLocal(filepath.FromSlash(p)) {
			continue
		}
		if goModuleFiles[path.Base(p)] || (path.Ext(p) == ".go" && goDirs[path.Dir(p)]) {
			f.Path = p
			out = append(out, f)
		}
	}
	return out
}

// materialize writes each distinct unit file, plus the supporting files, to
// a fresh workspace directory so subprocess tools can read them.
func (o *Orchestrator) materialize(units []unit, support []types.SourceFile) (string, func(), error) {
	workspace, err := os.MkdirTemp(o.cfg.WorkDir, "reviewgraph-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create workspace: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workspace); err != nil {
			o.logger.Warn("failed to remove workspace", zap.String("dir", workspace), zap.Error(err))
		}
	}

	written := make(map[string]string)
	for i := range units {
		p := units[i].file.Path
		if abs, ok := written[p]; ok {
			units[i].absPath = abs
			continue
		}
		abs := filepath.Join(workspace, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("materialize %s: %w", p, err)
		}
		if err := os.WriteFile(abs, []byte(units[i].file.Content), 0o644); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("materialize %s: %w", p, err)
		}
		written[p] = abs
		units[i].absPath = abs
	}
	for _, f := range support {
		if _, ok := written[f.Path]; ok {
			continue
		}
		abs := filepath.Join(workspace, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("materialize %s: %w", f.Path, err)
		}
		if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("materialize %s: %w", f.Path, err)
		}
		written[f.Path] = abs
	}
	return workspace, cleanup, nil
}

func (o *Orchestrator) runUnit(ctx context.Context, workspace string, u unit) (types.UnitResult, []types.Issue) {
	name := u.analyzer.Name()
	res := types.UnitResult{
		File:     u.file.Path,
		Language: u.lang,
		Tool:     name,
		Status:   types.UnitOK,
	}

	unitCtx, cancel := context.WithTimeout(ctx, o.cfg.timeoutFor(name))
	defer cancel()

	o.metrics.unitStarted()
	started := time.Now()
	issues, err := safeAnalyze(unitCtx, u.analyzer, analyzer.Target{
		Path:     u.file.Path,
		AbsPath:  u.absPath,
		Dir:      workspace,
		Content:  u.file.Content,
		Language: u.lang,
	})
	res.Duration = time.Since(started)

	if err == nil && unitCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("%w: %s exceeded %s", analyzer.ErrTimeout, name, o.cfg.timeoutFor(name))
	}
	if err != nil {
		res.Status = types.UnitFailed
		res.Error = err.Error()
		res.Reason = analyzer.Reason(err)
		if ctx.Err() != nil {
			res.Reason = types.ReasonCanceled
		}
		o.logger.Warn("analysis unit failed",
			zap.String("file", u.file.Path),
			zap.String("tool", name),
			zap.String("reason", res.Reason),
			zap.Error(err))
		o.metrics.unitFinished(res)
		return res, nil
	}

	for i := range issues {
		if issues[i].File == "" {
			issues[i].File = u.file.Path
		}
		if issues[i].Tool == "" {
			issues[i].Tool = name
		}
		if issues[i].Language == "" {
			issues[i].Language = u.lang
		}
	}
	res.Issues = len(issues)
	o.logger.Debug("analysis unit finished",
		zap.String("file", u.file.Path),
		zap.String("tool", name),
		zap.Int("issues", len(issues)),
		zap.Duration("elapsed", res.Duration))
	o.metrics.unitFinished(res)
	return res, issues
}

// safeAnalyze converts an analyzer panic into a unit error.
func safeAnalyze(ctx context.Context, a analyzer.Analyzer, target analyzer.Target) (issues []types.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = fmt.Errorf("analyzer %s panicked: %v", a.Name(), r)
		}
	}()
	return a.Analyze(ctx, target)
}

func canceledUnit(u unit, cause error) types.UnitResult {
	return types.UnitResult{
		File:     u.file.Path,
		Language: u.lang,
		Tool:     u.analyzer.Name(),
		Status:   types.UnitFailed,
		Reason:   types.ReasonCanceled,
		Error:    cause.Error(),
	}
}

// SortIssues orders issues by severity (most severe first), then file, line,
// column and tool.
func SortIssues(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Tool != b.Tool {
			return a.Tool < b.Tool
		}
		return a.RuleID < b.RuleID
	})
}
