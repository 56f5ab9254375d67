// Package ratelimit spaces out requests per key. Search platforms publish
// quotas (PubMed E-utilities allow three requests per second without an API
// key), so every platform call waits for its slot keyed by platform; the
// API middleware uses the same limiter keyed by client address.
//
// Each key keeps a theoretical arrival time (GCRA): with limit requests per
// window, requests are spaced window/limit apart and up to limit of them
// may arrive back to back.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Limiter struct {
	window time.Duration

	mu  sync.Mutex
	tat map[string]time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// New returns a Limiter whose limits are counted per window.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		window: window,
		tat:    make(map[string]time.Time),
		stop:   make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow takes a slot for key if one is free now.
func (l *Limiter) Allow(key string, limit int) bool {
	return l.take(key, limit, time.Now()) == 0
}

// Wait blocks until key has a free slot. A limit of zero or less never
// blocks.
func (l *Limiter) Wait(ctx context.Context, key string, limit int) error {
	if limit <= 0 {
		return nil
	}
	for {
		wait := l.take(key, limit, time.Now())
		if wait == 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// take claims a slot and returns 0, or returns how long until one frees up.
func (l *Limiter) take(key string, limit int, now time.Time) time.Duration {
	if limit <= 0 {
		return 0
	}
	interval := l.window / time.Duration(limit)
	burst := l.window - interval

	l.mu.Lock()
	defer l.mu.Unlock()
	tat := l.tat[key]
	if tat.Before(now) {
		tat = now
	}
	if ahead := tat.Sub(now); ahead > burst {
		return ahead - burst
	}
	l.tat[key] = tat.Add(interval)
	return 0
}

func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.tat, key)
	l.mu.Unlock()
}

func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stop) })
}

// sweep drops keys whose schedule is in the past; they are
// indistinguishable from new keys.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, tat := range l.tat {
				if tat.Before(now) {
					delete(l.tat, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
