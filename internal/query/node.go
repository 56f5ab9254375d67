// Package query defines the boolean literature-search query tree: leaf search
// terms combined with AND, OR and NOT. Trees are immutable after construction
// and identified by node instance, not by structure, so two identical leaves
// are two distinct nodes.
package query

// Operator is the kind of a query node.
type Operator int

const (
	OpTerm Operator = iota
	OpAnd
	OpOr
	OpNot
)

func (o Operator) String() string {
	switch o {
	case OpTerm:
		return "TERM"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpNot:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// ParseOperator maps an operator keyword to its Operator. An empty string or
// "TERM" yields OpTerm.
func ParseOperator(s string) (Operator, bool) {
	switch s {
	case "", "TERM", "term":
		return OpTerm, true
	case "AND", "and":
		return OpAnd, true
	case "OR", "or":
		return OpOr, true
	case "NOT", "not":
		return OpNot, true
	default:
		return OpTerm, false
	}
}

// Search field codes understood by the renderers.
const (
	FieldAll      = "all"
	FieldTitle    = "ti"
	FieldAbstract = "ab"
	FieldTiAb     = "tiab"
	FieldAuthor   = "au"
	FieldMeSH     = "mh"
)

// Node is one vertex of a query tree. Leaves carry Term and SearchField;
// internal nodes carry Children. A NOT node's children are the operands it
// excludes from its parent's result set.
type Node struct {
	Operator    Operator
	Children    []*Node
	Term        string
	SearchField string
}

// Term returns a leaf node.
func Term(text, field string) *Node {
	return &Node{Operator: OpTerm, Term: text, SearchField: field}
}

func And(children ...*Node) *Node {
	return &Node{Operator: OpAnd, Children: children}
}

func Or(children ...*Node) *Node {
	return &Node{Operator: OpOr, Children: children}
}

func Not(children ...*Node) *Node {
	return &Node{Operator: OpNot, Children: children}
}

// IsLeaf reports whether n is a search term.
func (n *Node) IsLeaf() bool {
	return n.Operator == OpTerm
}

// Count returns the number of distinct node instances reachable from n.
func (n *Node) Count() int {
	return len(Flatten(n).Nodes)
}

// Depth returns the number of nodes on the longest root-to-leaf path.
func (n *Node) Depth() int {
	type item struct {
		node  *Node
		depth int
	}
	maxDepth := 0
	stack := []item{{n, 1}}
	seen := make(map[*Node]struct{})
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[it.node]; ok {
			continue
		}
		seen[it.node] = struct{}{}
		if it.depth > maxDepth {
			maxDepth = it.depth
		}
		for _, c := range it.node.Children {
			stack = append(stack, item{c, it.depth + 1})
		}
	}
	return maxDepth
}
