package advisor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
)

// fixture builds a flattened tree and a table from per-node yields.
func fixture(t *testing.T, root *query.Node, yields map[*query.Node]int) (*query.Flattened, estimator.Table) {
	t.Helper()
	require.NoError(t, query.Validate(root))
	flat := query.Flatten(root)
	table := make(estimator.Table, flat.Len())
	for i, n := range flat.Nodes {
		table[i] = estimator.Record{Index: i, Yield: yields[n]}
	}
	return flat, table
}

func advise(t *testing.T, root *query.Node, yields map[*query.Node]int) Advice {
	t.Helper()
	flat, table := fixture(t, root, yields)
	return New(classifier.Default, query.SyntaxGeneric).CreateSuggestions(flat, table)
}

func trailNodes(tr Trail) []*query.Node {
	out := make([]*query.Node, len(tr))
	for i, s := range tr {
		out[i] = s.Node
	}
	return out
}

func TestOptimalRootNeedsNoWalk(t *testing.T) {
	a, b := query.Term("a", ""), query.Term("b", "")
	root := query.Or(a, b)
	adv := advise(t, root, map[*query.Node]int{root: 800, a: 500, b: 400})

	assert.Equal(t, classifier.Optimal, adv.Range)
	assert.Nil(t, adv.Direction)
	assert.Empty(t, adv.Trail)
	assert.Equal(t, []string{MsgOK}, adv.Suggestions)
}

func TestTooHighAndFollowsLargestChild(t *testing.T) {
	a, b := query.Term("a", ""), query.Term("b", "")
	root := query.And(a, b)
	adv := advise(t, root, map[*query.Node]int{root: 2600, a: 3000, b: 2900})

	assert.Equal(t, classifier.Dynamite, adv.Range)
	require.NotNil(t, adv.Direction)
	assert.Equal(t, TooHigh, *adv.Direction)
	assert.Equal(t, []*query.Node{root, a}, trailNodes(adv.Trail))
	require.Len(t, adv.Suggestions, 2)
	assert.Equal(t, MsgTooHigh, adv.Suggestions[0])
	assert.Equal(t, MsgTooHighNoRestriction+"\n  a AND b\n  a", adv.Suggestions[1])
}

func TestTooHighOrWithoutQualifyingChildIsTerminal(t *testing.T) {
	a, b := query.Term("a", ""), query.Term("b", "")
	root := query.Or(a, b)
	adv := advise(t, root, map[*query.Node]int{root: 2100, a: 1500, b: 1500})

	assert.Equal(t, classifier.High, adv.Range)
	assert.Equal(t, []*query.Node{root}, trailNodes(adv.Trail))
	assert.Equal(t, MsgLittleTooHigh, adv.Suggestions[0])
	assert.Equal(t, MsgTooHighOnlyOr+"\n  a OR b", adv.Suggestions[1])
}

func TestTooHighOrFollowsLargestQualifyingChild(t *testing.T) {
	a, b, c := query.Term("a", ""), query.Term("b", ""), query.Term("c", "")
	root := query.Or(a, b, c)
	adv := advise(t, root, map[*query.Node]int{root: 6000, a: 100, b: 2100, c: 2600})

	assert.Equal(t, []*query.Node{root, c}, trailNodes(adv.Trail))
	assert.True(t, strings.HasPrefix(adv.Suggestions[1], MsgTooHighNoRestriction))
}

func TestTooHighNestedAndsSuggestSoftRestriction(t *testing.T) {
	x, y, z := query.Term("x", ""), query.Term("y", ""), query.Term("z", "")
	inner := query.And(x, y)
	root := query.And(inner, z)
	adv := advise(t, root, map[*query.Node]int{root: 2600, inner: 3000, z: 2800, x: 5000, y: 4000})

	assert.Equal(t, []*query.Node{root, inner, x}, trailNodes(adv.Trail))
	assert.Equal(t, 2, adv.Trail.Count(query.OpAnd))
	assert.Equal(t, MsgTooHighSoftRestriction, Select(adv.Trail, TooHigh))
}

func TestTooHighStopsAtNot(t *testing.T) {
	a := query.Term("a", "")
	not := query.Not(a)
	root := query.And(not)
	adv := advise(t, root, map[*query.Node]int{root: 3000, not: 3000, a: 10})

	assert.Equal(t, []*query.Node{root, not}, trailNodes(adv.Trail))
	assert.Equal(t, MsgTooHighSoftRestriction, Select(adv.Trail, TooHigh))
}

func TestTooLowAndFollowsSmallestQualifyingChild(t *testing.T) {
	a, b, c := query.Term("a", ""), query.Term("b", ""), query.Term("c", "")
	root := query.And(a, b, c)
	adv := advise(t, root, map[*query.Node]int{root: 20, a: 100, b: 30, c: 900})

	assert.Equal(t, classifier.Restrictive, adv.Range)
	require.NotNil(t, adv.Direction)
	assert.Equal(t, TooLow, *adv.Direction)
	assert.Equal(t, []*query.Node{root, b}, trailNodes(adv.Trail))
	assert.Equal(t, MsgTooLow, adv.Suggestions[0])
	assert.Equal(t, MsgTooLowNoExtension+"\n  a AND b AND c\n  b", adv.Suggestions[1])
}

func TestTooLowAndWithoutQualifyingChildIsTerminal(t *testing.T) {
	a, b := query.Term("a", ""), query.Term("b", "")
	root := query.And(a, b)
	adv := advise(t, root, map[*query.Node]int{root: 120, a: 500, b: 600})

	assert.Equal(t, classifier.Low, adv.Range)
	assert.Equal(t, []*query.Node{root}, trailNodes(adv.Trail))
	assert.Equal(t, MsgLittleTooLow, adv.Suggestions[0])
	assert.Equal(t, MsgTooLowOnlyAnd+"\n  a AND b", adv.Suggestions[1])
}

func TestTooLowOrFollowsSmallestChild(t *testing.T) {
	a, b, c := query.Term("a", ""), query.Term("b", ""), query.Term("c", "")
	inner := query.Or(a, b)
	root := query.Or(inner, c)
	adv := advise(t, root, map[*query.Node]int{root: 100, inner: 25, c: 90, a: 10, b: 20})

	assert.Equal(t, []*query.Node{root, inner, a}, trailNodes(adv.Trail))
	assert.Equal(t, MsgTooLowSoftExtension, Select(adv.Trail, TooLow))
}

func TestTooLowStopsAtNot(t *testing.T) {
	a, b := query.Term("a", ""), query.Term("b", "")
	not := query.Not(b)
	root := query.Or(a, not)
	adv := advise(t, root, map[*query.Node]int{root: 40, a: 40, not: 0, b: 5})

	assert.Equal(t, []*query.Node{root, not}, trailNodes(adv.Trail))
	assert.Equal(t, MsgTooLowSoftExtension, Select(adv.Trail, TooLow))
}

func TestTiesGoToFirstChild(t *testing.T) {
	a, b := query.Term("a", ""), query.Term("b", "")
	root := query.And(a, b)
	adv := advise(t, root, map[*query.Node]int{root: 2600, a: 3000, b: 3000})
	assert.Same(t, a, adv.Trail.Last().Node)

	root = query.Or(a, b)
	adv = advise(t, root, map[*query.Node]int{root: 10, a: 5, b: 5})
	assert.Same(t, a, adv.Trail.Last().Node)
}

func TestTrailKeepsLastThreeSteps(t *testing.T) {
	leaf := query.Term("x", "")
	n4 := query.And(leaf)
	n3 := query.And(n4)
	n2 := query.And(n3)
	root := query.And(n2)
	yields := map[*query.Node]int{root: 3000, n2: 3000, n3: 3000, n4: 3000, leaf: 3000}

	flat, table := fixture(t, root, yields)
	trail := Walk(flat, table, classifier.Default, TooHigh)

	require.Len(t, trail, MaxTrail)
	assert.Equal(t, []*query.Node{n3, n4, leaf}, trailNodes(trail))
	assert.Equal(t, []int{2, 3, 4}, []int{trail[0].Index, trail[1].Index, trail[2].Index})
}

func TestWalkTerminatesWithinDepth(t *testing.T) {
	root := query.MustParse("(a OR (b AND (c OR d))) AND (e OR f) NOT g")
	flat := query.Flatten(root)
	table := make(estimator.Table, flat.Len())
	for i := range table {
		table[i] = estimator.Record{Index: i, Yield: 3000 - i*100}
	}
	for _, d := range []Direction{TooHigh, TooLow} {
		trail := Walk(flat, table, classifier.Default, d)
		assert.NotEmpty(t, trail)
		assert.LessOrEqual(t, len(trail), MaxTrail)
		assert.True(t, trail.Last().Node.IsLeaf() || trail.Last().Node.Operator != query.OpAnd || d == TooLow)
	}
}

func TestSelectBranches(t *testing.T) {
	and, or, not, leaf := query.And(query.Term("a", "")), query.Or(query.Term("a", "")), query.Not(query.Term("a", "")), query.Term("a", "")
	tests := []struct {
		name  string
		trail Trail
		d     Direction
		want  string
	}{
		{"high last or", Trail{{Node: and}, {Node: or}}, TooHigh, MsgTooHighOnlyOr},
		{"high last not", Trail{{Node: or}, {Node: not}}, TooHigh, MsgTooHighSoftRestriction},
		{"high two ands", Trail{{Node: and}, {Node: and}, {Node: leaf}}, TooHigh, MsgTooHighSoftRestriction},
		{"high one and", Trail{{Node: and}, {Node: leaf}}, TooHigh, MsgTooHighNoRestriction},
		{"high leaf only", Trail{{Node: leaf}}, TooHigh, MsgTooHighNoRestriction},
		{"low last and", Trail{{Node: or}, {Node: and}}, TooLow, MsgTooLowOnlyAnd},
		{"low last not", Trail{{Node: and}, {Node: not}}, TooLow, MsgTooLowSoftExtension},
		{"low two ors", Trail{{Node: or}, {Node: or}, {Node: leaf}}, TooLow, MsgTooLowSoftExtension},
		{"low one or", Trail{{Node: or}, {Node: leaf}}, TooLow, MsgTooLowNoExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.trail, tt.d))
		})
	}
}

func TestRenderUsesSyntax(t *testing.T) {
	leaf := query.Term("cancer", query.FieldTitle)
	a := New(classifier.Default, query.SyntaxWoS)
	trail := Trail{{Node: leaf}}
	assert.Equal(t, "tpl\n  TI=cancer", a.Render("tpl", trail))
	assert.Equal(t, []string{"TI=cancer"}, a.Queries(trail))
}

func TestDirectionText(t *testing.T) {
	data, err := json.Marshal(map[string]Direction{"d": TooLow})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"too_low"}`, string(data))
	assert.Equal(t, "too_high", TooHigh.String())
}
