package commands

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kushal45/reviewgraph/internal/analyzer"
)

func newToolsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List analyzers, their languages and whether they can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			reg, err := analyzer.NewDefaultRegistry(analyzer.NewRunner(nil))
			if err != nil {
				return err
			}
			if err := cfg.ConfigureRegistry(reg); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBINARY\tSTATUS\tLANGUAGES")
			for _, name := range reg.Names() {
				a, _ := reg.Get(name)
				binary, status := "-", "builtin"
				if t, ok := a.(*analyzer.ToolAnalyzer); ok {
					binary = t.Binary()
					status = "available"
					if err := t.Available(); err != nil {
						status = "missing"
					}
				}
				if !reg.Enabled(name) {
					status = "disabled"
				}
				langs := make([]string, 0, len(a.Languages()))
				for _, l := range a.Languages() {
					langs = append(langs, string(l))
				}
				sort.Strings(langs)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, binary, status, strings.Join(langs, ","))
			}
			if cfg.AI.Enabled {
				fmt.Fprintf(tw, "ai\t-\t%s/%s\tall\n", cfg.AI.Provider, cfg.AI.Model)
			}
			return tw.Flush()
		},
	}
}
