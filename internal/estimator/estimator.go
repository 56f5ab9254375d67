package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/tracing"
)

const (
	DefaultSampleSize    = 200
	DefaultMaxConcurrent = 4
)

// Observer receives one call per Source.Fetch.
type Observer interface {
	ObserveFetch(platform string, err error, elapsed time.Duration)
}

// Estimator fills a Table for a flattened tree.
type Estimator struct {
	sampleSize    int
	maxConcurrent int
	observer      Observer
	logger        *slog.Logger
}

type Option func(*Estimator)

// WithSampleSize bounds every identifier sample.
func WithSampleSize(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.sampleSize = n
		}
	}
}

// WithMaxConcurrent bounds the number of in-flight fetches.
func WithMaxConcurrent(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Estimator) {
		e.observer = o
	}
}

func New(opts ...Option) *Estimator {
	e := &Estimator{
		sampleSize:    DefaultSampleSize,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        slog.Default().With("component", "yield-estimator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns a Record for every node of flat. A failed fetch degrades
// that node to a zero yield and never aborts the run; only cancellation of
// ctx is reported as an error.
func (e *Estimator) Estimate(ctx context.Context, flat *query.Flattened, src Source) (Table, error) {
	if flat.Len() == 0 {
		return Table{}, nil
	}
	if src.SupportsBoolean() {
		return e.estimateExact(ctx, flat, src)
	}
	return e.estimateFromSamples(ctx, flat, src)
}

// estimateExact resolves every node with one fetch of its own
// sub-expression. NOT nodes are not fetched: a bare exclusion has no
// meaningful yield.
func (e *Estimator) estimateExact(ctx context.Context, flat *query.Flattened, src Source) (Table, error) {
	table := make(Table, flat.Len())
	for i := range table {
		table[i].Index = i
	}
	var targets []int
	for i, n := range flat.Nodes {
		if n.Operator != query.OpNot {
			targets = append(targets, i)
		}
	}
	results, err := e.fetchAll(ctx, flat, src, targets)
	if err != nil {
		return nil, err
	}
	for _, i := range targets {
		table[i].Yield = results[i].Count
	}
	return table, nil
}

// estimateFromSamples fetches the leaves, then composes internal nodes in
// reverse flattened order so that every child is resolved before its parent.
func (e *Estimator) estimateFromSamples(ctx context.Context, flat *query.Flattened, src Source) (Table, error) {
	var leaves []int
	for i, n := range flat.Nodes {
		if n.IsLeaf() {
			leaves = append(leaves, i)
		}
	}
	results, err := e.fetchAll(ctx, flat, src, leaves)
	if err != nil {
		return nil, err
	}

	table := make(Table, flat.Len())
	for _, i := range leaves {
		table[i] = Record{
			Index:       i,
			Yield:       results[i].Count,
			Identifiers: cleanSample(results[i].Identifiers, e.sampleSize),
		}
	}
	for i := flat.Len() - 1; i >= 0; i-- {
		n := flat.Nodes[i]
		switch n.Operator {
		case query.OpTerm:
			continue
		case query.OpAnd, query.OpOr, query.OpNot:
			table[i] = e.compose(flat, i, table)
		default:
			panic(fmt.Sprintf("estimator: unhandled operator %v", n.Operator))
		}
	}
	return table, nil
}

// compose combines the records of children under op. NOT children are set
// aside: the remaining siblings are combined as if they were absent, and
// whatever the NOT operands matched is then removed from the combined
// sample, scaling the yield by the fraction of the sample that survived.
// A NOT node itself keeps a zero yield; its sample is the set it excludes.
func (e *Estimator) compose(flat *query.Flattened, i int, table Table) Record {
	op := flat.Nodes[i].Operator
	var kept, excluded []int
	for _, c := range flat.ChildIndices(i) {
		if flat.Nodes[c].Operator == query.OpNot {
			excluded = append(excluded, c)
		} else {
			kept = append(kept, c)
		}
	}

	var yield int
	var sample []string
	switch op {
	case query.OpAnd:
		yield, sample = composeAnd(kept, table)
	case query.OpOr, query.OpNot:
		yield, sample = composeOr(kept, table)
	}

	if len(excluded) > 0 && len(sample) > 0 {
		drop := make(map[string]struct{})
		for _, c := range excluded {
			for _, id := range table[c].Identifiers {
				drop[id] = struct{}{}
			}
		}
		remaining := make([]string, 0, len(sample))
		for _, id := range sample {
			if _, ok := drop[id]; !ok {
				remaining = append(remaining, id)
			}
		}
		yield = ceilDiv(yield*len(remaining), len(sample))
		sample = remaining
	}

	if len(sample) > e.sampleSize {
		sample = sample[:e.sampleSize]
	}
	rec := Record{Index: i, Yield: yield, Identifiers: sample}
	if op == query.OpNot {
		rec.Yield = 0
	}
	return rec
}

// composeOr returns the size of the deduplicated union of the children's
// samples and the union itself.
func composeOr(children []int, table Table) (int, []string) {
	union := unionOf(children, table)
	return len(union), union
}

// composeAnd scales the summed child yields by the share of identifiers that
// every child's sample contains, relative to the union of all samples.
func composeAnd(children []int, table Table) (int, []string) {
	if len(children) == 0 {
		return 0, nil
	}
	counts := make(map[string]int)
	for _, c := range children {
		for _, id := range table[c].Identifiers {
			counts[id]++
		}
	}
	union := unionOf(children, table)
	shared := make([]string, 0)
	for _, id := range union {
		if counts[id] == len(children) {
			shared = append(shared, id)
		}
	}
	if len(union) == 0 {
		return 0, shared
	}
	sum := 0
	for _, c := range children {
		sum += table[c].Yield
	}
	return ceilDiv(len(shared)*sum, len(union)), shared
}

func unionOf(children []int, table Table) []string {
	seen := make(map[string]struct{})
	union := make([]string, 0)
	for _, c := range children {
		for _, id := range table[c].Identifiers {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}
	return union
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// fetchAll fetches the nodes at idx concurrently. Results are written to
// per-index slots so no state is shared between goroutines.
func (e *Estimator) fetchAll(ctx context.Context, flat *query.Flattened, src Source, idx []int) ([]Result, error) {
	results := make([]Result, flat.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for _, i := range idx {
		node := flat.Nodes[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fctx, span := tracing.Child(gctx, "fetch")
			span.Set("index", i)
			span.Set("operator", node.Operator.String())
			start := time.Now()
			res, err := src.Fetch(fctx, node)
			span.End()
			if e.observer != nil {
				e.observer.ObserveFetch(src.Platform(), err, time.Since(start))
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.WarnContext(ctx, "fetch failed, using zero yield",
					"platform", src.Platform(),
					"index", i,
					"operator", node.Operator.String(),
					"error", err,
				)
				return nil
			}
			res.Count = max(res.Count, 0)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching yields from %s: %w", src.Platform(), err)
	}
	return results, nil
}
