package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/kafka"
)

func completed(platform, query, rng string, latency int64) AnalysisEvent {
	return AnalysisEvent{Type: EventAnalysisCompleted, Platform: platform, Query: query, Range: rng, LatencyMs: latency}
}

func TestAggregatorRecord(t *testing.T) {
	a := NewAggregator()
	a.Record(completed("pubmed", "a AND b", "optimal", 100))
	a.Record(completed("pubmed", "a AND b", "high", 300))
	a.Record(completed("crossref", "c", "low", 200))
	a.Record(AnalysisEvent{Type: EventAnalysisFailed, Platform: "crossref", Query: "d", Error: "boom"})

	s := a.Stats()
	assert.Equal(t, int64(4), s.TotalAnalyses)
	assert.Equal(t, int64(1), s.FailedAnalyses)
	assert.Equal(t, map[string]int64{"optimal": 1, "high": 1, "low": 1}, s.ByRange)
	assert.Equal(t, map[string]int64{"pubmed": 2, "crossref": 2}, s.ByPlatform)
	assert.InDelta(t, 200.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(300), s.P95LatencyMs)
	assert.Equal(t, []QueryCount{{Query: "a AND b", Count: 2}, {Query: "c", Count: 1}}, s.TopQueries)
	assert.Positive(t, s.AnalysesPerMinute)
}

func TestAggregatorEmpty(t *testing.T) {
	s := NewAggregator().Stats()
	assert.Zero(t, s.TotalAnalyses)
	assert.Zero(t, s.AvgLatencyMs)
	assert.Zero(t, s.P95LatencyMs)
	assert.Empty(t, s.TopQueries)
}

func TestAggregatorTopQueriesStable(t *testing.T) {
	a := NewAggregator()
	for i := range 12 {
		a.Track(completed("pubmed", fmt.Sprintf("q%02d", i), "optimal", 1))
	}
	a.Track(completed("pubmed", "q11", "optimal", 1))

	top := a.Stats().TopQueries
	require.Len(t, top, 10)
	assert.Equal(t, QueryCount{Query: "q11", Count: 2}, top[0])
	assert.Equal(t, "q00", top[1].Query)
	assert.Equal(t, "q08", top[9].Query)
}

func TestAggregatorLatencyWindowBounded(t *testing.T) {
	a := NewAggregator()
	for i := range maxLatencies + 50 {
		a.Record(completed("pubmed", "q", "optimal", int64(i)))
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	assert.Len(t, a.latencies, maxLatencies)
	assert.Equal(t, int64(50), a.latencies[0])
}

func TestAggregatorHandle(t *testing.T) {
	a := NewAggregator()
	h := a.Handle()

	data, err := json.Marshal(completed("crossref", "x", "dynamite", 42))
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), kafka.Delivery{Key: []byte("crossref"), Value: data}))
	require.NoError(t, h(context.Background(), kafka.Delivery{Value: []byte("not json")}))

	s := a.Stats()
	assert.Equal(t, int64(1), s.TotalAnalyses)
	assert.Equal(t, map[string]int64{"dynamite": 1}, s.ByRange)
}

func TestAggregatorBoundsDistinctQueries(t *testing.T) {
	a := NewAggregator()
	for range 3 {
		a.Record(completed("pubmed", "popular", "optimal", 1))
	}
	for i := range maxQueries * 2 {
		a.Record(completed("pubmed", fmt.Sprintf("q%d", i), "optimal", 1))
	}

	a.mu.RLock()
	tracked := len(a.queryCounts)
	a.mu.RUnlock()
	assert.Equal(t, maxQueries, tracked)

	top := a.Stats().TopQueries
	require.NotEmpty(t, top)
	assert.Equal(t, QueryCount{Query: "popular", Count: 3}, top[0])
	assert.Equal(t, int64(maxQueries*2+3), a.Stats().TotalAnalyses)
}
