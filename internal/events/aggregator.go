package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/kafka"
)

// Stats summarises every analysis event seen since start.
type Stats struct {
	TotalAnalyses     int64            `json:"total_analyses"`
	FailedAnalyses    int64            `json:"failed_analyses"`
	ByRange           map[string]int64 `json:"by_range"`
	ByPlatform        map[string]int64 `json:"by_platform"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	AnalysesPerMinute float64          `json:"analyses_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

const (
	// maxLatencies bounds the latency window kept for percentiles.
	maxLatencies = 10000
	// maxQueries bounds the distinct queries counted for TopQueries.
	maxQueries = 1000
)

// Aggregator folds analysis events into Stats. Record may be called
// directly or fed from a Kafka consumer through Handle.
type Aggregator struct {
	mu          sync.RWMutex
	total       int64
	failed      int64
	byRange     map[string]int64
	byPlatform  map[string]int64
	latencies   []int64
	latencySum  int64
	queryCounts map[string]int64
	startTime   time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byRange:     make(map[string]int64),
		byPlatform:  make(map[string]int64),
		latencies:   make([]int64, 0, 1024),
		queryCounts: make(map[string]int64),
		startTime:   time.Now(),
		logger:      slog.Default().With("component", "events-aggregator"),
	}
}

// Handle decodes a Kafka message into an AnalysisEvent and records it.
// Undecodable messages are logged and skipped so they are still committed.
func (a *Aggregator) Handle() kafka.Handler {
	return func(ctx context.Context, d kafka.Delivery) error {
		event, err := kafka.Decode[AnalysisEvent](d)
		if err != nil {
			a.logger.Error("failed to decode analysis event", "error", err)
			return nil
		}
		a.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event AnalysisEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byPlatform[event.Platform]++
	if event.Type == EventAnalysisFailed {
		a.failed++
		return
	}
	a.byRange[event.Range]++
	a.countQuery(event.Query)
	a.latencySum += event.LatencyMs
	if len(a.latencies) == maxLatencies {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
}

// countQuery increments the count of q. A new query arriving when the table
// is full replaces the least counted one.
func (a *Aggregator) countQuery(q string) {
	if _, ok := a.queryCounts[q]; !ok && len(a.queryCounts) >= maxQueries {
		var victim string
		lowest := int64(-1)
		for k, n := range a.queryCounts {
			if lowest < 0 || n < lowest || (n == lowest && k < victim) {
				victim, lowest = k, n
			}
		}
		delete(a.queryCounts, victim)
	}
	a.queryCounts[q]++
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalAnalyses:  a.total,
		FailedAnalyses: a.failed,
		ByRange:        copyCounts(a.byRange),
		ByPlatform:     copyCounts(a.byPlatform),
		TopQueries:     topN(a.queryCounts, 10),
	}
	if completed := a.total - a.failed; completed > 0 {
		stats.AvgLatencyMs = float64(a.latencySum) / float64(completed)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P95LatencyMs = percentile(sorted, 95)
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.AnalysesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then by query so the output is stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Track records event in-process, letting the aggregator stand in for the
// Kafka collector when no broker is configured.
func (a *Aggregator) Track(event AnalysisEvent) {
	a.Record(event)
}
