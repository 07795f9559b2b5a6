package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kushal45/reviewgraph/graph/store"
	"github.com/kushal45/reviewgraph/internal/report"
)

func newShowCmd(g *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := report.NewFormatter(format)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			state, _, err := a.store.LoadLatest(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %s not found in the %s store", args[0], cfg.Store.Kind)
			}
			if err != nil {
				return err
			}
			if state.Report == nil {
				return fmt.Errorf("run %s has no report yet (last status %q)", args[0], state.Status)
			}
			return formatter.Format(cmd.OutOrStdout(), state.Report)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format (markdown, json, sarif)")
	return cmd
}
