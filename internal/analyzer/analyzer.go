// Package analyzer runs the full analysis of a query tree against one
// platform: validation, flattening, yield estimation and advice.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/advisor"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/events"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/source"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/tracing"
)

// EventSink receives one event per analysis.
type EventSink interface {
	Track(event events.AnalysisEvent)
}

// Saver persists completed analyses.
type Saver interface {
	Save(ctx context.Context, result *Result) error
}

type Analyzer struct {
	registry   *source.Registry
	estimator  *estimator.Estimator
	advisor    *advisor.Advisor
	thresholds classifier.Thresholds
	syntax     query.Syntax
	metrics    *metrics.Metrics
	events     EventSink
	history    Saver
	traceSpans bool
	logger     *slog.Logger
}

type Option func(*Analyzer)

// WithMetrics records analysis and fetch metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

func WithEvents(sink EventSink) Option {
	return func(a *Analyzer) { a.events = sink }
}

func WithHistory(s Saver) Option {
	return func(a *Analyzer) { a.history = s }
}

// WithSpanLogging logs each run's span tree at debug level.
func WithSpanLogging(enabled bool) Option {
	return func(a *Analyzer) { a.traceSpans = enabled }
}

func New(registry *source.Registry, cfg config.AnalyzerConfig, opts ...Option) (*Analyzer, error) {
	th := classifier.Thresholds{
		LowerLimit:   cfg.LowerLimit,
		LowerOptimum: cfg.LowerOptimum,
		UpperOptimum: cfg.UpperOptimum,
		UpperLimit:   cfg.UpperLimit,
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	syntax, err := query.ParseSyntax(cfg.Syntax)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		registry:   registry,
		thresholds: th,
		syntax:     syntax,
		logger:     slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}

	estOpts := []estimator.Option{
		estimator.WithSampleSize(cfg.SampleSize),
		estimator.WithMaxConcurrent(cfg.MaxConcurrent),
	}
	if a.metrics != nil {
		estOpts = append(estOpts, estimator.WithObserver(a.metrics))
	}
	a.estimator = estimator.New(estOpts...)
	a.advisor = advisor.New(th, syntax)
	return a, nil
}

// Thresholds returns the classifier bounds in use.
func (a *Analyzer) Thresholds() classifier.Thresholds {
	return a.thresholds
}

func (a *Analyzer) Registry() *source.Registry {
	return a.registry
}

// Analyze estimates the yield of every node of root on platform and
// advises on the root's range. An unknown platform or a malformed tree is
// an error; failing platform requests only degrade individual yields.
func (a *Analyzer) Analyze(ctx context.Context, root *query.Node, platform string) (*Result, error) {
	start := time.Now()
	id := newID()
	ctx = logger.WithAnalysisID(ctx, id)
	log := logger.FromContext(ctx).With("component", "analyzer", "platform", platform)

	src, err := a.registry.Lookup(platform)
	if err != nil {
		return nil, err
	}
	if err := query.Validate(root); err != nil {
		a.trackFailure(ctx, id, src.Platform(), "", err, start)
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "analyze", id)
	span.Set("platform", src.Platform())

	_, flatSpan := tracing.Child(ctx, "flatten")
	flat := query.Flatten(root)
	flatSpan.Set("nodes", flat.Len())
	flatSpan.End()

	estCtx, estSpan := tracing.Child(ctx, "estimate")
	table, err := a.estimator.Estimate(estCtx, flat, src)
	estSpan.End()
	if err != nil {
		span.End()
		a.trackFailure(ctx, id, src.Platform(), root.String(a.syntax), err, start)
		return nil, fmt.Errorf("estimating yields: %w", err)
	}

	_, advSpan := tracing.Child(ctx, "advise")
	advice := a.advisor.CreateSuggestions(flat, table)
	advSpan.End()
	span.End()

	res := &Result{
		ID:          id,
		Platform:    src.Platform(),
		Query:       root.String(a.syntax),
		Yield:       table.Root().Yield,
		Range:       advice.Range,
		Entries:     entries(flat, table, a.syntax),
		Suggestions: advice.Suggestions,
		Trail:       a.advisor.Queries(advice.Trail),
		DurationMs:  time.Since(start).Milliseconds(),
		Phases:      span.Phases(),
		CreatedAt:   start.UTC(),
	}
	if advice.Direction != nil {
		res.Direction = advice.Direction.String()
	}

	if a.traceSpans {
		span.Log(ctx, log)
	}
	a.metrics.ObserveAnalysis(res.Platform, res.Range.String(), flat.Len(), time.Since(start))
	a.publish(ctx, res, flat.Len())
	a.save(ctx, res, log)

	log.Info("analysis completed",
		"yield", res.Yield,
		"range", res.Range.String(),
		"nodes", flat.Len(),
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

func entries(flat *query.Flattened, table estimator.Table, syntax query.Syntax) []Entry {
	out := make([]Entry, flat.Len())
	for i, n := range flat.Nodes {
		out[i] = Entry{
			Index:    i,
			Parent:   flat.Parent[i],
			Operator: n.Operator.String(),
			Query:    n.String(syntax),
			Yield:    table.Yield(i),
		}
	}
	return out
}

func (a *Analyzer) publish(ctx context.Context, res *Result, nodes int) {
	if a.events == nil {
		return
	}
	a.events.Track(events.AnalysisEvent{
		Type:       events.EventAnalysisCompleted,
		AnalysisID: res.ID,
		Platform:   res.Platform,
		Query:      res.Query,
		Yield:      res.Yield,
		Range:      res.Range.String(),
		Nodes:      nodes,
		LatencyMs:  res.DurationMs,
		Timestamp:  res.CreatedAt,
		RequestID:  logger.RequestID(ctx),
	})
}

func (a *Analyzer) trackFailure(ctx context.Context, id, platform, q string, err error, start time.Time) {
	if a.events == nil {
		return
	}
	a.events.Track(events.AnalysisEvent{
		Type:       events.EventAnalysisFailed,
		AnalysisID: id,
		Platform:   platform,
		Query:      q,
		LatencyMs:  time.Since(start).Milliseconds(),
		Error:      err.Error(),
		Timestamp:  start.UTC(),
		RequestID:  logger.RequestID(ctx),
	})
}

func (a *Analyzer) save(ctx context.Context, res *Result, log *slog.Logger) {
	if a.history == nil {
		return
	}
	if err := a.history.Save(ctx, res); err != nil {
		log.Error("failed to save analysis", "error", err)
	}
}

// newID returns a time-ordered UUID so history listings sort by creation.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
