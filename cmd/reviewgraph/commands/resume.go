package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kushal45/reviewgraph/internal/types"
)

func newResumeCmd(g *globalOptions) *cobra.Command {
	var failOn string
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Re-run analysis and reporting from a run's fetch checkpoint",
		Long: `Resume loads the repository snapshot checkpointed after the fetch stage of
<run-id> and runs analysis and reporting again under a new run id. Use a
persistent store (--store sqlite|mysql|postgres) so checkpoints outlive the
process that created them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fail-on") {
				cfg.Report.FailOn = failOn
			}

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
			final, err := wf.Resume(ctx, args[0], uuid.NewString())
			if final.RunID != "" {
				printRun(cmd.OutOrStdout(), final)
			}
			if err != nil {
				return fmt.Errorf("resume %s: %w", args[0], err)
			}
			if final.Status == types.StatusFailed {
				return fmt.Errorf("resumed run %s failed", final.RunID)
			}
			var reports []*types.Report
			if final.Report != nil {
				reports = append(reports, final.Report)
			}
			return checkFailOn(cfg.Report.FailOn, reports)
		},
	}
	cmd.Flags().StringVar(&failOn, "fail-on", "", "Exit with code 1 if any issue is at or above this severity")
	return cmd
}
