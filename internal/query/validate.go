package query

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

// Validate checks the structural invariants of a tree before it is
// flattened: no cycles, leaves have a term and no children, internal nodes
// have at least one child. The same instance appearing under two parents is
// tolerated; Flatten visits it once.
func Validate(root *Node) error {
	if root == nil {
		return apperrors.Invalidf("query is empty")
	}
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[*Node]int)
	type frame struct {
		node *Node
		next int
	}
	stack := []frame{{node: root}}
	state[root] = onPath
	if err := checkNode(root); err != nil {
		return err
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.node.Children) {
			state[top.node] = done
			stack = stack[:len(stack)-1]
			continue
		}
		child := top.node.Children[top.next]
		top.next++
		if child == nil {
			return apperrors.Invalidf("%s node has a nil child", top.node.Operator)
		}
		switch state[child] {
		case onPath:
			return apperrors.Invalidf("query tree contains a cycle at %s node", child.Operator)
		case done:
			continue
		}
		if err := checkNode(child); err != nil {
			return err
		}
		state[child] = onPath
		stack = append(stack, frame{node: child})
	}
	return nil
}

func checkNode(n *Node) error {
	switch n.Operator {
	case OpTerm:
		if len(n.Children) > 0 {
			return apperrors.Invalidf("search term %q has %d children", n.Term, len(n.Children))
		}
		if isBlankTerm(n.Term) {
			return apperrors.Invalidf("search term is empty")
		}
	case OpAnd, OpOr, OpNot:
		if len(n.Children) == 0 {
			return apperrors.Invalidf("%s node has no children", n.Operator)
		}
	default:
		return apperrors.Invalidf("unknown operator %d", int(n.Operator))
	}
	return nil
}

// isBlankTerm reports whether term has no content once whitespace and the
// phrase quotes around it are removed.
func isBlankTerm(term string) bool {
	return strings.Trim(term, "\" \t\r\n") == ""
}
