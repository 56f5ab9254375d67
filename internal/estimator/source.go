// Package estimator computes a yield for every node of a query tree. On
// platforms that execute boolean queries each node is fetched directly; on
// the others only leaves are fetched, together with a bounded sample of
// matching DOIs, and internal nodes are estimated from overlaps between
// their children's samples.
package estimator

import (
	"context"
	"regexp"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
)

// Result is what a Source reports for one query.
type Result struct {
	Count       int      `json:"count"`
	Identifiers []string `json:"identifiers,omitempty"`
}

// Source fetches result counts from one search platform.
type Source interface {
	Platform() string
	// SupportsBoolean reports whether Fetch accepts AND/OR/NOT sub-expressions
	// and returns their exact count.
	SupportsBoolean() bool
	// Fetch returns the count for the rendered node and, on platforms that
	// cannot compose queries, a sample of matching identifiers.
	Fetch(ctx context.Context, node *query.Node) (Result, error)
}

// Record is the yield of the node at Index in the flattened tree.
type Record struct {
	Index       int      `json:"index"`
	Yield       int      `json:"yield"`
	Identifiers []string `json:"identifiers,omitempty"`
}

// Table holds one Record per flattened node, addressed by node index.
type Table []Record

// Yield returns the yield of node i.
func (t Table) Yield(i int) int {
	return t[i].Yield
}

// Root returns the record of the root node.
func (t Table) Root() Record {
	return t[0]
}

var doiPattern = regexp.MustCompile(`(?i)^10\.\d{4,9}/[-._;()/:A-Z0-9]+$`)

// IsDOI reports whether s has the canonical DOI shape.
func IsDOI(s string) bool {
	return doiPattern.MatchString(s)
}

// cleanSample drops malformed and duplicate identifiers and truncates to
// limit, keeping first-seen order.
func cleanSample(ids []string, limit int) []string {
	out := make([]string, 0, min(len(ids), limit))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		if !IsDOI(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Pair is a node index and its yield.
type Pair struct {
	Index int
	Yield int
}

// Pairs returns the (index, yield) pairs of the table in node order.
func (t Table) Pairs() []Pair {
	out := make([]Pair, len(t))
	for i, r := range t {
		out[i] = Pair{Index: r.Index, Yield: r.Yield}
	}
	return out
}
