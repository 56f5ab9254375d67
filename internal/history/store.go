// Package history stores completed analyses so they can be listed and
// fetched again by ID.
package history

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListOptions filters List. An empty Platform matches every platform.
type ListOptions struct {
	Platform string
	Limit    int
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Store persists analyses. Get returns an error wrapping
// errors.ErrAnalysisNotFound for unknown IDs; List returns newest first.
type Store interface {
	Save(ctx context.Context, result *analyzer.Result) error
	Get(ctx context.Context, id string) (*analyzer.Result, error)
	List(ctx context.Context, opts ListOptions) ([]analyzer.Summary, error)
}

// Memory is a process-local Store used when Postgres is disabled.
type Memory struct {
	mu       sync.RWMutex
	results  map[string]*analyzer.Result
	capacity int
	order    []string
}

// NewMemory keeps at most capacity analyses, evicting the oldest.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{results: make(map[string]*analyzer.Result), capacity: capacity}
}

func (m *Memory) Save(_ context.Context, result *analyzer.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[result.ID]; !ok {
		m.order = append(m.order, result.ID)
	}
	m.results[result.ID] = result
	for len(m.order) > m.capacity {
		delete(m.results, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*analyzer.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return nil, apperrors.NotFoundf("analysis %s not found", id)
	}
	return r, nil
}

func (m *Memory) List(_ context.Context, opts ListOptions) ([]analyzer.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analyzer.Summary, 0, len(m.results))
	for _, r := range m.results {
		if opts.Platform != "" && r.Platform != opts.Platform {
			continue
		}
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := opts.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
