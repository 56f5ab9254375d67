package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/source"
)

// NewPlatformsCommand lists the platforms enabled in the config.
func NewPlatformsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the configured search platforms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			registry := source.NewRegistry(source.FromConfig(cfg.Platforms, cfg.Analyzer.SampleSize, nil, nil)...)
			infos := registry.Platforms()
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(infos, func(w io.Writer) {
				for _, p := range infos {
					mode := "sampled"
					if p.Boolean {
						mode = "boolean"
					}
					fmt.Fprintf(w, "%-10s %s\n", p.Name, mode)
				}
			})
		},
	}
}
