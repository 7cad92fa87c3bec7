package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/pacer/internal/performance/executor"
)

func newGeneratorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generators",
		Short: "List the supported generator types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			title := color.New(color.Bold, color.FgCyan)

			for i, t := range executor.GetSupportedGenerators() {
				desc := executor.GetGeneratorDescription(t)
				if desc == nil {
					continue
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				title.Fprintf(out, "%s", desc.Type)
				fmt.Fprintf(out, " (%s)\n", desc.Name)
				fmt.Fprintf(out, "  %s\n", desc.Description)
				for _, useCase := range desc.UseCases {
					fmt.Fprintf(out, "  - %s\n", useCase)
				}
			}
			return nil
		},
	}
}
