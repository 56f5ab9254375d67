package cli

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/ratelimit"
)

type analyzeOptions struct {
	platform string
	fixtures string
	tree     bool
	timeout  time.Duration
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <query>",
		Short: "Estimate the yield of a query and suggest changes",
		Long: `Analyze a boolean search query on one platform.

The query uses AND, OR, NOT, parentheses, quoted phrases and field tags
such as crispr[tiab]. With --tree the argument is a JSON query tree
instead. With --fixtures, results come from a YAML fixture file rather
than the live platform.`,
		Example: `  qa analyze --platform pubmed 'crispr[tiab] AND (therapy OR treatment)'
  qa analyze --fixtures testdata/fixtures.yaml 'a OR b'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, rootOpts, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&opts.platform, "platform", "p", "", "search platform (defaults to the fixture platform)")
	cmd.Flags().StringVar(&opts.fixtures, "fixtures", "", "YAML fixture file to answer queries from")
	cmd.Flags().BoolVar(&opts.tree, "tree", false, "treat the argument as a JSON query tree")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall analysis timeout")
	return cmd
}

func runAnalyze(cmd *cobra.Command, rootOpts *RootOptions, opts *analyzeOptions, text string) error {
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}

	var root *query.Node
	if opts.tree {
		root, err = query.DecodeJSON([]byte(text))
	} else {
		root, err = query.Parse(text)
	}
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	registry := source.NewRegistry()
	platform := opts.platform
	if opts.fixtures != "" {
		static, err := source.LoadStatic(opts.fixtures)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading fixtures", err)
		}
		registry.Register(static)
		if platform == "" {
			platform = static.Platform()
		}
	} else {
		limiter := ratelimit.New(time.Second)
		defer limiter.Close()
		for _, src := range source.FromConfig(cfg.Platforms, cfg.Analyzer.SampleSize, limiter, nil) {
			registry.Register(src)
		}
	}
	if platform == "" {
		return NewExitError(ExitCommandError, "--platform is required without --fixtures")
	}

	a, err := analyzer.New(registry, cfg.Analyzer, analyzer.WithSpanLogging(rootOpts.Verbose))
	if err != nil {
		return WrapExitError(ExitCommandError, "configuring analyzer", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	res, err := a.Analyze(ctx, root, platform)
	if err != nil {
		out.Error(err)
		if errors.Is(err, apperrors.ErrUnsupportedPlatform) || errors.Is(err, apperrors.ErrInvalidQuery) {
			return WrapExitError(ExitCommandError, "analysis rejected", err)
		}
		return WrapExitError(ExitFailure, "analysis failed", err)
	}
	return out.Success(res, func(w io.Writer) { writeAnalysis(w, res) })
}
