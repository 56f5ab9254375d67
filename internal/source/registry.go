// Package source implements the yield sources the estimator queries: PubMed
// (exact boolean counts), Crossref (per-term counts plus DOI samples), an
// in-memory fixture source, and a Redis-backed cache in front of any of them.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

// Info describes a registered platform.
type Info struct {
	Name    string `json:"name"`
	Boolean bool   `json:"boolean"`
}

// Registry maps platform names to sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]estimator.Source
}

func NewRegistry(sources ...estimator.Source) *Registry {
	r := &Registry{sources: make(map[string]estimator.Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the source for its platform.
func (r *Registry) Register(s estimator.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[normalizePlatform(s.Platform())] = s
}

// Lookup returns the source for platform. Names are case-insensitive and may
// carry a "colrev." prefix.
func (r *Registry) Lookup(platform string) (estimator.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[normalizePlatform(platform)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedPlatform, platform)
	}
	return s, nil
}

// Platforms lists registered platforms sorted by name.
func (r *Registry) Platforms() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.sources))
	for name, s := range r.sources {
		out = append(out, Info{Name: name, Boolean: s.SupportsBoolean()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalizePlatform(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	return strings.TrimPrefix(p, "colrev.")
}

type invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Invalidate drops cached results for platform, or for every cached
// platform when platform is empty.
func (r *Registry) Invalidate(ctx context.Context, platform string) (int64, error) {
	r.mu.RLock()
	targets := make([]invalidator, 0, len(r.sources))
	for name, s := range r.sources {
		if platform != "" && name != normalizePlatform(platform) {
			continue
		}
		if inv, ok := s.(invalidator); ok {
			targets = append(targets, inv)
		}
	}
	r.mu.RUnlock()

	if platform != "" && len(targets) == 0 {
		if _, err := r.Lookup(platform); err != nil {
			return 0, err
		}
	}
	var total int64
	var errs []error
	for _, inv := range targets {
		n, err := inv.Invalidate(ctx)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
