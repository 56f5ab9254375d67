// Package health reports whether the analyzer's backing services are
// reachable. Required dependencies take the service out of rotation when
// down; optional ones, such as the platform cache, only degrade it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

type Component struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

type Report struct {
	Status     Status               `json:"status"`
	Components map[string]Component `json:"components"`
	CheckedAt  time.Time            `json:"checked_at"`
}

// Ping probes one dependency.
type Ping func(ctx context.Context) error

type probe struct {
	name     string
	ping     Ping
	optional bool
}

// Checker pings registered dependencies in parallel.
type Checker struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
}

func NewChecker() *Checker {
	return &Checker{timeout: 3 * time.Second}
}

// Register adds a dependency. Registering a name again replaces it.
func (c *Checker) Register(name string, ping Ping, optional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := probe{name: name, ping: ping, optional: optional}
	for i := range c.probes {
		if c.probes[i].name == name {
			c.probes[i] = p
			return
		}
	}
	c.probes = append(c.probes, p)
}

// Run pings every dependency, each under the checker's timeout. The overall
// status is down if a required dependency failed, degraded if an optional
// one did.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := append([]probe(nil), c.probes...)
	c.mu.RUnlock()

	results := make([]Component, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.ping(ctx, p)
		}()
	}
	wg.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]Component, len(probes)),
		CheckedAt:  time.Now().UTC(),
	}
	for i, p := range probes {
		report.Components[p.name] = results[i]
		switch {
		case results[i].Status == StatusDown:
			report.Status = StatusDown
		case results[i].Status == StatusDegraded && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) ping(ctx context.Context, p probe) Component {
	failed := StatusDown
	if p.optional {
		failed = StatusDegraded
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	comp := Component{Status: StatusUp, Latency: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		comp.Status, comp.Message = failed, err.Error()
	}
	return comp
}

// LiveHandler answers liveness probes; the process being able to respond is
// enough.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes with the full report, and 503 when a
// required dependency is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
