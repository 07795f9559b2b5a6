package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kushal45/reviewgraph/internal/language"
	"github.com/kushal45/reviewgraph/internal/repository"
	"github.com/kushal45/reviewgraph/internal/types"
)

func newDetectCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "detect <path>...",
		Short: "Print the language detected for files or directory trees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := repository.NewLocal(nil)
			counts := make(map[types.Language]int)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			for _, p := range args {
				info, err := os.Stat(p)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					lang := language.Detect(p)
					counts[lang]++
					if !summary {
						fmt.Fprintf(tw, "%s\t%s\n", p, lang)
					}
					continue
				}

				snap, err := local.Fetch(cmd.Context(), p, repository.Options{})
				if err != nil {
					return err
				}
				for _, f := range snap.Files {
					lang := language.Resolve(f.Path, f.Language)
					counts[lang]++
					if !summary {
						fmt.Fprintf(tw, "%s\t%s\n", f.Path, lang)
					}
				}
			}

			if summary {
				langs := make([]types.Language, 0, len(counts))
				for l := range counts {
					langs = append(langs, l)
				}
				sort.Slice(langs, func(i, j int) bool {
					if counts[langs[i]] != counts[langs[j]] {
						return counts[langs[i]] > counts[langs[j]]
					}
					return langs[i] < langs[j]
				})
				for _, l := range langs {
					fmt.Fprintf(tw, "%s\t%d\n", l, counts[l])
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "Print file counts per language")
	return cmd
}
