package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kushal45/reviewgraph/internal/config"
	"github.com/kushal45/reviewgraph/internal/report"
	"github.com/kushal45/reviewgraph/internal/types"
	"github.com/kushal45/reviewgraph/internal/workflow"
)

type reviewOptions struct {
	formats     []string
	output      string
	minSeverity string
	failOn      string
	concurrency int
	timeout     time.Duration
	exclude     []string
	ref         string
	maxFiles    int
	merge       bool
	ai          bool
	aiProvider  string
	aiModel     string
}

func newReviewCmd(g *globalOptions) *cobra.Command {
	o := &reviewOptions{}
	cmd := &cobra.Command{
		Use:   "review <repo-url|path>...",
		Short: "Review one or more repositories",
		Long: `Review fetches each repository (a GitHub URL, owner/repo, or a local
directory), analyzes it and writes a report per run.

Each repository gets its own run id. Analysis units that fail (missing tool,
timeout, unparsable output) are listed in the report without failing the run.`,
		Example: `  reviewgraph review github.com/octo/hello
  reviewgraph review ./service --format sarif --fail-on high
  reviewgraph review octo/hello@v1.2.0 --store sqlite --store-dsn runs.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := o.apply(cmd, &cfg); err != nil {
				return err
			}
			return runReview(cmd, cfg, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&o.formats, "format", "f", nil, "Report formats (markdown, json, sarif)")
	f.StringVarP(&o.output, "output", "o", "", "Report directory (default: reports)")
	f.StringVar(&o.minSeverity, "min-severity", "", "Drop issues below this severity")
	f.StringVar(&o.failOn, "fail-on", "", "Exit with code 1 if any issue is at or above this severity")
	f.IntVar(&o.concurrency, "concurrency", 0, "Maximum concurrent analysis units")
	f.DurationVar(&o.timeout, "timeout", 0, "Timeout per analysis unit")
	f.StringSliceVar(&o.exclude, "exclude", nil, "Glob patterns to skip (replaces configured excludes)")
	f.StringVar(&o.ref, "ref", "", "Branch, tag or commit to review")
	f.IntVar(&o.maxFiles, "max-files", 0, "Maximum files to fetch")
	f.BoolVar(&o.merge, "merge-duplicates", false, "Fold the same finding from several tools into one issue")
	f.BoolVar(&o.ai, "ai", false, "Also run the AI reviewer")
	f.StringVar(&o.aiProvider, "ai-provider", "", "AI provider (anthropic, openai, google, mock)")
	f.StringVar(&o.aiModel, "ai-model", "", "AI model name")
	return cmd
}

func (o *reviewOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Report.Formats = o.formats
	}
	if f.Changed("output") {
		cfg.Report.Dir = o.output
	}
	if f.Changed("min-severity") {
		sev, err := types.ParseSeverity(o.minSeverity)
		if err != nil {
			return fmt.Errorf("invalid --min-severity: %w", err)
		}
		cfg.Analysis.MinSeverity = sev
	}
	if f.Changed("fail-on") {
		cfg.Report.FailOn = o.failOn
	}
	if f.Changed("concurrency") {
		cfg.Analysis.Concurrency = o.concurrency
	}
	if f.Changed("timeout") {
		cfg.Analysis.ToolTimeout = config.Duration(o.timeout)
	}
	if f.Changed("exclude") {
		cfg.Analysis.Exclude = o.exclude
	}
	if f.Changed("ref") {
		cfg.Fetch.Ref = o.ref
	}
	if f.Changed("max-files") {
		cfg.Fetch.MaxFiles = o.maxFiles
	}
	if f.Changed("merge-duplicates") {
		cfg.Analysis.MergeDuplicates = o.merge
	}
	if f.Changed("ai") {
		cfg.AI.Enabled = o.ai
	}
	if f.Changed("ai-provider") {
		cfg.AI.Provider = o.aiProvider
		if env, ok := config.APIKeyEnv[cfg.AI.Provider]; ok && cfg.AI.APIKey == "" {
			cfg.AI.APIKey = os.Getenv(env)
		}
	}
	if f.Changed("ai-model") {
		cfg.AI.Model = o.aiModel
	}
	return nil
}

func runReview(cmd *cobra.Command, cfg config.Config, targets []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	wf, err := a.newWorkflow(ctx)
	if err != nil {
		return err
	}

	var reports []*types.Report
	failed := 0
	for _, target := range targets {
		runID := uuid.NewString()
		final, runErr := wf.Run(ctx, runID, target)
		printRun(cmd.OutOrStdout(), final)
		if runErr != nil || final.Status == types.StatusFailed {
			failed++
		}
		if final.Report != nil {
			reports = append(reports, final.Report)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d reviews failed", failed, len(targets))
	}
	return checkFailOn(cfg.Report.FailOn, reports)
}

func checkFailOn(failOn string, reports []*types.Report) error {
	if failOn == "" {
		return nil
	}
	threshold, err := types.ParseSeverity(failOn)
	if err != nil {
		return fmt.Errorf("invalid --fail-on: %w", err)
	}
	for _, r := range reports {
		if report.ExceedsThreshold(r, threshold) {
			return &exitError{
				code: ExitThreshold,
				msg:  fmt.Sprintf("run %s has issues at or above %s", r.RunID, threshold),
			}
		}
	}
	return nil
}

func printRun(w io.Writer, s workflow.ReviewState) {
	repo := s.RepoURL
	if s.Repository != nil && s.Repository.FullName != "" {
		repo = s.Repository.FullName
	}
	fmt.Fprintf(w, "%s  %-9s  %s\n", s.RunID, s.Status, repo)
	if len(s.Path) > 0 {
		fmt.Fprintf(w, "  path: %s\n", strings.Join(s.Path, " > "))
	}
	if r := s.Report; r != nil {
		fmt.Fprintf(w, "  files: %d analyzed, %d skipped; issues: %d; failed units: %d\n",
			r.Summary.FilesAnalyzed, r.Summary.FilesSkipped, r.Summary.TotalIssues, r.Summary.FailedUnits)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  error (%s): %s\n", e.Stage, e.Message)
	}

	formats := make([]string, 0, len(s.Artifacts))
	for f := range s.Artifacts {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	for _, f := range formats {
		fmt.Fprintf(w, "  %s: %s\n", f, s.Artifacts[f])
	}
}
