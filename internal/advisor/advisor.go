package advisor

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
)

// Advice is the outcome of diagnosing one analysis. Trail is empty when the
// root yield is optimal.
type Advice struct {
	Range       classifier.Range
	Direction   *Direction
	Trail       Trail
	Suggestions []string
}

// Advisor turns a yield table into suggestions.
type Advisor struct {
	thresholds classifier.Thresholds
	syntax     query.Syntax
}

func New(thresholds classifier.Thresholds, syntax query.Syntax) *Advisor {
	return &Advisor{thresholds: thresholds, syntax: syntax}
}

// CreateSuggestions classifies the root yield and, when it is out of range,
// walks the tree to find the cause. It produces exactly one message set.
func (a *Advisor) CreateSuggestions(flat *query.Flattened, table estimator.Table) Advice {
	r := a.thresholds.Classify(table.Root().Yield)
	advice := Advice{Range: r}

	var header string
	var d Direction
	switch r {
	case classifier.Optimal:
		advice.Suggestions = []string{MsgOK}
		return advice
	case classifier.High:
		header, d = MsgLittleTooHigh, TooHigh
	case classifier.Dynamite:
		header, d = MsgTooHigh, TooHigh
	case classifier.Low:
		header, d = MsgLittleTooLow, TooLow
	case classifier.Restrictive:
		header, d = MsgTooLow, TooLow
	}

	trail := Walk(flat, table, a.thresholds, d)
	advice.Direction = &d
	advice.Trail = trail
	advice.Suggestions = []string{header, a.Render(Select(trail, d), trail)}
	return advice
}

// Select picks the message template for a finished walk.
func Select(trail Trail, d Direction) string {
	last := trail.Last().Node.Operator
	if d == TooHigh {
		switch {
		case last == query.OpOr:
			return MsgTooHighOnlyOr
		case last == query.OpNot || trail.Count(query.OpAnd) > 1:
			return MsgTooHighSoftRestriction
		default:
			return MsgTooHighNoRestriction
		}
	}
	switch {
	case last == query.OpAnd:
		return MsgTooLowOnlyAnd
	case last == query.OpNot || trail.Count(query.OpOr) > 1:
		return MsgTooLowSoftExtension
	default:
		return MsgTooLowNoExtension
	}
}

// Render appends the trail's queries to template, one per line.
func (a *Advisor) Render(template string, trail Trail) string {
	var b strings.Builder
	b.WriteString(template)
	for _, s := range trail {
		b.WriteString("\n  ")
		b.WriteString(s.Node.String(a.syntax))
	}
	return b.String()
}

// Queries returns the rendered queries of the trail.
func (a *Advisor) Queries(trail Trail) []string {
	out := make([]string, len(trail))
	for i, s := range trail {
		out[i] = s.Node.String(a.syntax)
	}
	return out
}
