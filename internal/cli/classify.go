package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
)

// ClassifyResult is the output of the classify command.
type ClassifyResult struct {
	Yield      int                   `json:"yield"`
	Range      classifier.Range      `json:"range"`
	Thresholds classifier.Thresholds `json:"thresholds"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <yield>",
		Short: "Classify a result count into a yield range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			y, err := strconv.Atoi(args[0])
			if err != nil || y < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("yield must be a non-negative integer, got %q", args[0]))
			}
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			th := classifier.Thresholds{
				LowerLimit:   cfg.Analyzer.LowerLimit,
				LowerOptimum: cfg.Analyzer.LowerOptimum,
				UpperOptimum: cfg.Analyzer.UpperOptimum,
				UpperLimit:   cfg.Analyzer.UpperLimit,
			}
			res := ClassifyResult{Yield: y, Range: th.Classify(y), Thresholds: th}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%d: %s\n", res.Yield, res.Range)
			})
		},
	}
}
