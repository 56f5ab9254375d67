package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

const PlatformStatic = "static"

// Static serves canned results keyed by the generic rendering of a query.
// It backs offline CLI runs and tests.
type Static struct {
	name    string
	boolean bool

	mu       sync.RWMutex
	fixtures map[string]estimator.Result
}

func NewStatic(name string, boolean bool) *Static {
	if name == "" {
		name = PlatformStatic
	}
	return &Static{name: name, boolean: boolean, fixtures: make(map[string]estimator.Result)}
}

func (s *Static) Platform() string { return s.name }

func (s *Static) SupportsBoolean() bool { return s.boolean }

// Add registers the result returned for node.
func (s *Static) Add(node *query.Node, res estimator.Result) *Static {
	return s.AddText(node.String(query.SyntaxGeneric), res)
}

// AddText registers a result under an already rendered query.
func (s *Static) AddText(rendered string, res estimator.Result) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[strings.TrimSpace(rendered)] = res
	return s
}

func (s *Static) Fetch(ctx context.Context, node *query.Node) (estimator.Result, error) {
	if err := ctx.Err(); err != nil {
		return estimator.Result{}, err
	}
	key := node.String(query.SyntaxGeneric)
	s.mu.RLock()
	res, ok := s.fixtures[key]
	s.mu.RUnlock()
	if !ok {
		return estimator.Result{}, fmt.Errorf("%w: no fixture for %q", apperrors.ErrNoResults, key)
	}
	return res, nil
}

// FixtureFile is the YAML layout read by LoadStatic:
//
//	platform: static
//	boolean: false
//	results:
//	  - query: "crispr[tiab]"
//	    count: 120
//	    dois: ["10.1000/a", "10.1000/b"]
type FixtureFile struct {
	Platform string `yaml:"platform"`
	Boolean  bool   `yaml:"boolean"`
	Results  []struct {
		Query string   `yaml:"query"`
		Count int      `yaml:"count"`
		DOIs  []string `yaml:"dois"`
	} `yaml:"results"`
}

// LoadStatic reads a fixture file. Query strings are parsed and re-rendered
// so that any spelling Parse accepts matches the lookup key.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures %s: %w", path, err)
	}
	return ParseStatic(data)
}

func ParseStatic(data []byte) (*Static, error) {
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing fixtures: %v", apperrors.ErrInvalidInput, err)
	}
	s := NewStatic(f.Platform, f.Boolean)
	for i, r := range f.Results {
		node, err := query.Parse(r.Query)
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		s.Add(node, estimator.Result{Count: r.Count, Identifiers: r.DOIs})
	}
	return s, nil
}
