package estimator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
)

// stubSource answers from a map keyed by the generic rendering of a node.
type stubSource struct {
	boolean bool
	results map[string]Result
	fail    map[string]error

	mu      sync.Mutex
	fetched []string
}

func (s *stubSource) Platform() string      { return "stub" }
func (s *stubSource) SupportsBoolean() bool { return s.boolean }

func (s *stubSource) Fetch(ctx context.Context, n *query.Node) (Result, error) {
	key := n.String(query.SyntaxGeneric)
	s.mu.Lock()
	s.fetched = append(s.fetched, key)
	s.mu.Unlock()
	if err, ok := s.fail[key]; ok {
		return Result{}, err
	}
	return s.results[key], nil
}

func dois(ids ...int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("10.1000/d%d", id)
	}
	return out
}

func estimate(t *testing.T, root *query.Node, src Source, opts ...Option) (*query.Flattened, Table) {
	t.Helper()
	require.NoError(t, query.Validate(root))
	flat := query.Flatten(root)
	table, err := New(opts...).Estimate(context.Background(), flat, src)
	require.NoError(t, err)
	require.Len(t, table, flat.Len())
	return flat, table
}

func TestOrIdempotentUnderDuplicateChildren(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 40, Identifiers: dois(1, 2, 3)},
	}}
	a := query.Term("a", "")
	_, single := estimate(t, query.Or(a), src)
	_, double := estimate(t, query.Or(a, a), src)

	assert.Equal(t, single.Root().Yield, double.Root().Yield)
	assert.Equal(t, single.Root().Identifiers, double.Root().Identifiers)
	assert.Equal(t, 3, double.Root().Yield)
}

func TestOrIdempotentForEqualSamples(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 10, Identifiers: dois(1, 2)},
		"b": {Count: 10, Identifiers: dois(1, 2)},
	}}
	_, table := estimate(t, query.Or(query.Term("a", ""), query.Term("b", "")), src)
	assert.Equal(t, 2, table.Root().Yield)
}

func TestAndDisjointSamplesYieldZero(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 500, Identifiers: dois(1, 2, 3)},
		"b": {Count: 700, Identifiers: dois(4, 5)},
	}}
	_, table := estimate(t, query.And(query.Term("a", ""), query.Term("b", "")), src)
	assert.Equal(t, 0, table.Root().Yield)
	assert.Empty(t, table.Root().Identifiers)
}

func TestAndIdenticalSamplesYieldSum(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 500, Identifiers: dois(1, 2, 3, 4)},
		"b": {Count: 700, Identifiers: dois(4, 3, 2, 1)},
	}}
	_, table := estimate(t, query.And(query.Term("a", ""), query.Term("b", "")), src)
	assert.Equal(t, 1200, table.Root().Yield)
	assert.Len(t, table.Root().Identifiers, 4)
}

func TestAndPartialOverlapRoundsUp(t *testing.T) {
	// shared {2,3}, union {1,2,3,4}: ceil(2 * (10+11) / 4) = ceil(10.5) = 11
	src := &stubSource{results: map[string]Result{
		"a": {Count: 10, Identifiers: dois(1, 2, 3)},
		"b": {Count: 11, Identifiers: dois(2, 3, 4)},
	}}
	_, table := estimate(t, query.And(query.Term("a", ""), query.Term("b", "")), src)
	assert.Equal(t, 11, table.Root().Yield)
	assert.Equal(t, dois(2, 3), table.Root().Identifiers)
}

func TestAndEmptyUnionYieldsZero(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 10},
		"b": {Count: 20},
	}}
	_, table := estimate(t, query.And(query.Term("a", ""), query.Term("b", "")), src)
	assert.Equal(t, 0, table.Root().Yield)
}

func TestNotCorrectionUnderOr(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"x": {Count: 3, Identifiers: dois(1, 2, 3)},
		"y": {Count: 1, Identifiers: dois(2)},
	}}
	not := query.Not(query.Term("y", ""))
	root := query.Or(query.Term("x", ""), not)
	flat, table := estimate(t, root, src)

	assert.Equal(t, 2, table.Root().Yield)
	assert.Equal(t, dois(1, 3), table.Root().Identifiers)
	assert.Equal(t, 0, table.Yield(flat.IndexOf(not)))
}

func TestNotCorrectionUnderAnd(t *testing.T) {
	// kept: shared {1,2} of union {1,2,3}, yield ceil(2*(30+30)/3) = 40;
	// excluding {2} keeps half the sample: ceil(40*1/2) = 20
	src := &stubSource{results: map[string]Result{
		"a": {Count: 30, Identifiers: dois(1, 2)},
		"b": {Count: 30, Identifiers: dois(1, 2, 3)},
		"c": {Count: 5, Identifiers: dois(2)},
	}}
	root := query.And(query.Term("a", ""), query.Term("b", ""), query.Not(query.Term("c", "")))
	_, table := estimate(t, root, src)

	assert.Equal(t, 20, table.Root().Yield)
	assert.Equal(t, dois(1), table.Root().Identifiers)
}

func TestMultipleNotChildrenSubtractUnion(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"x": {Count: 4, Identifiers: dois(1, 2, 3, 4)},
		"y": {Count: 1, Identifiers: dois(1)},
		"z": {Count: 1, Identifiers: dois(4)},
	}}
	root := query.Or(query.Term("x", ""), query.Not(query.Term("y", "")), query.Not(query.Term("z", "")))
	_, table := estimate(t, root, src)
	assert.Equal(t, 2, table.Root().Yield)
}

func TestRootNotHasZeroYield(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 9, Identifiers: dois(1)},
	}}
	_, table := estimate(t, query.Not(query.Term("a", "")), src)
	assert.Equal(t, 0, table.Root().Yield)
	assert.Equal(t, dois(1), table.Root().Identifiers)
}

func TestMalformedIdentifiersDropped(t *testing.T) {
	src := &stubSource{results: map[string]Result{
		"a": {Count: 10, Identifiers: []string{"10.1000/ok", "not-a-doi", "", "10.12/short", "10.1000/ok", "10.5555/X.Y(1)"}},
	}}
	_, table := estimate(t, query.Term("a", ""), src)
	assert.Equal(t, 10, table.Root().Yield)
	assert.Equal(t, []string{"10.1000/ok", "10.5555/X.Y(1)"}, table.Root().Identifiers)
}

func TestSampleBound(t *testing.T) {
	ids := make([]int, 50)
	for i := range ids {
		ids[i] = i
	}
	src := &stubSource{results: map[string]Result{
		"a": {Count: 1000, Identifiers: dois(ids...)},
		"b": {Count: 1000, Identifiers: dois(ids...)},
	}}
	_, table := estimate(t, query.Or(query.Term("a", ""), query.Term("b", "")), src, WithSampleSize(10))
	for _, r := range table {
		assert.LessOrEqual(t, len(r.Identifiers), 10)
	}
}

func TestFailedFetchDegradesToZero(t *testing.T) {
	src := &stubSource{
		results: map[string]Result{"a": {Count: 5, Identifiers: dois(1, 2)}},
		fail:    map[string]error{"b": errors.New("no results")},
	}
	_, table := estimate(t, query.Or(query.Term("a", ""), query.Term("b", "")), src)
	assert.Equal(t, 0, table.Yield(2))
	assert.Equal(t, 2, table.Root().Yield)
}

func TestNegativeCountClamped(t *testing.T) {
	src := &stubSource{boolean: true, results: map[string]Result{"a": {Count: -4}}}
	_, table := estimate(t, query.Term("a", ""), src)
	assert.Equal(t, 0, table.Root().Yield)
}

func TestExactPathFetchesEveryNonNotNode(t *testing.T) {
	root := query.And(query.Or(query.Term("a", ""), query.Term("b", "")), query.Not(query.Term("c", "")))
	src := &stubSource{boolean: true, results: map[string]Result{
		"(a OR b) NOT c": {Count: 180},
		"a OR b":         {Count: 2100},
		"a":              {Count: 1500, Identifiers: dois(1)},
		"b":              {Count: 1500},
		"c":              {Count: 300},
	}}
	flat, table := estimate(t, root, src)

	assert.Equal(t, 180, table.Root().Yield)
	assert.Equal(t, 2100, table.Yield(1))
	assert.Equal(t, 0, table.Yield(2), "NOT node")
	assert.Equal(t, 300, table.Yield(flat.IndexOf(root.Children[1].Children[0])))
	assert.NotContains(t, src.fetched, "NOT c")
	assert.Len(t, src.fetched, 5)
	for _, r := range table {
		assert.Empty(t, r.Identifiers)
	}
}

func TestSampledPathFetchesOnlyLeaves(t *testing.T) {
	root := query.And(query.Term("a", ""), query.Or(query.Term("b", ""), query.Term("c", "")))
	src := &stubSource{results: map[string]Result{}}
	estimate(t, root, src)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, src.fetched)
}

type blockingSource struct {
	stubSource
	inFlight, peak atomic.Int32
}

func (s *blockingSource) Fetch(ctx context.Context, n *query.Node) (Result, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		old := s.peak.Load()
		if cur <= old || s.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return Result{Count: 1}, nil
}

func TestMaxConcurrentBoundsFetches(t *testing.T) {
	children := make([]*query.Node, 12)
	for i := range children {
		children[i] = query.Term(fmt.Sprintf("t%d", i), "")
	}
	src := &blockingSource{}
	estimate(t, query.Or(children...), src, WithMaxConcurrent(3))
	assert.LessOrEqual(t, src.peak.Load(), int32(3))
}

func TestCancelledContextIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flat := query.Flatten(query.Or(query.Term("a", ""), query.Term("b", "")))
	_, err := New().Estimate(ctx, flat, &stubSource{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	errs  int
}

func (o *recordingObserver) ObserveFetch(platform string, err error, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if err != nil {
		o.errs++
	}
}

func TestObserverSeesEveryFetch(t *testing.T) {
	obs := &recordingObserver{}
	src := &stubSource{fail: map[string]error{"b": errors.New("boom")}}
	estimate(t, query.And(query.Term("a", ""), query.Term("b", "")), src, WithObserver(obs))
	assert.Equal(t, 2, obs.calls)
	assert.Equal(t, 1, obs.errs)
}

func TestTablePairs(t *testing.T) {
	table := Table{{Index: 0, Yield: 7}, {Index: 1, Yield: 3}}
	assert.Equal(t, []Pair{{Index: 0, Yield: 7}, {Index: 1, Yield: 3}}, table.Pairs())
}

func BenchmarkEstimateSampled(b *testing.B) {
	results := map[string]Result{}
	children := make([]*query.Node, 30)
	for i := range children {
		name := fmt.Sprintf("t%d", i)
		children[i] = query.Term(name, "")
		ids := make([]int, 200)
		for k := range ids {
			ids[k] = i*50 + k
		}
		results[name] = Result{Count: 1000, Identifiers: dois(ids...)}
	}
	root := query.And(query.Or(children[:15]...), query.Or(children[15:]...))
	flat := query.Flatten(root)
	src := &stubSource{results: results}
	est := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := est.Estimate(context.Background(), flat, src); err != nil {
			b.Fatal(err)
		}
	}
}
