// Package advisor localizes the part of a query responsible for an
// out-of-range yield and picks a remediation message for it.
package advisor

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
)

// MaxTrail is the number of most recently visited nodes a walk keeps.
const MaxTrail = 3

// Direction is the side of the optimal band the root fell on.
type Direction int

const (
	TooHigh Direction = iota
	TooLow
)

func (d Direction) String() string {
	if d == TooHigh {
		return "too_high"
	}
	return "too_low"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Step is one visited node.
type Step struct {
	Index int
	Node  *query.Node
	Yield int
}

// Trail holds the last MaxTrail steps of a walk, oldest first.
type Trail []Step

// Last returns the most recent step.
func (t Trail) Last() Step {
	return t[len(t)-1]
}

// Count returns how many steps visited a node with operator op.
func (t Trail) Count(op query.Operator) int {
	n := 0
	for _, s := range t {
		if s.Node.Operator == op {
			n++
		}
	}
	return n
}

func (t Trail) push(s Step) Trail {
	t = append(t, s)
	if len(t) > MaxTrail {
		t = append(Trail(nil), t[len(t)-MaxTrail:]...)
	}
	return t
}

// Walk descends from the root until it finds the node responsible for the
// yield being out of range in direction d.
//
// Walking a too-high tree, an AND hands the blame to its largest child and an
// OR to its largest child that is itself too high; an OR without such a
// child is the cause, as is a leaf or a NOT. A too-low walk is the mirror:
// AND and OR swap roles and the smallest child is followed.
func Walk(flat *query.Flattened, table estimator.Table, th classifier.Thresholds, d Direction) Trail {
	var trail Trail
	i := 0
	for steps := 0; steps <= flat.Len(); steps++ {
		node := flat.Nodes[i]
		trail = trail.push(Step{Index: i, Node: node, Yield: table.Yield(i)})

		next, ok := descend(flat, table, th, d, i)
		if !ok {
			return trail
		}
		i = next
	}
	// Unreachable for validated trees: every step moves one level down.
	return trail
}

// descend picks the child to visit after node i, or reports that node i is
// terminal.
func descend(flat *query.Flattened, table estimator.Table, th classifier.Thresholds, d Direction, i int) (int, bool) {
	node := flat.Nodes[i]
	children := flat.ChildIndices(i)
	switch node.Operator {
	case query.OpTerm, query.OpNot:
		return 0, false
	case query.OpAnd:
		if d == TooHigh {
			return pick(children, table, maxYield), true
		}
		return filterPick(children, table, func(y int) bool { return th.Classify(y).TooLow() }, minYield)
	case query.OpOr:
		if d == TooLow {
			return pick(children, table, minYield), true
		}
		return filterPick(children, table, func(y int) bool { return th.Classify(y).TooHigh() }, maxYield)
	default:
		panic(fmt.Sprintf("advisor: unhandled operator %v", node.Operator))
	}
}

type better func(candidate, best int) bool

func maxYield(candidate, best int) bool { return candidate > best }
func minYield(candidate, best int) bool { return candidate < best }

// pick returns the child whose yield is strictly better than all earlier
// ones, so ties go to the first child.
func pick(children []int, table estimator.Table, cmp better) int {
	best := children[0]
	for _, c := range children[1:] {
		if cmp(table.Yield(c), table.Yield(best)) {
			best = c
		}
	}
	return best
}

func filterPick(children []int, table estimator.Table, keep func(int) bool, cmp better) (int, bool) {
	var qualifying []int
	for _, c := range children {
		if keep(table.Yield(c)) {
			qualifying = append(qualifying, c)
		}
	}
	if len(qualifying) == 0 {
		return 0, false
	}
	return pick(qualifying, table, cmp), true
}
