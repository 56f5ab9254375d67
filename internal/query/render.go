package query

import (
	"fmt"
	"strings"
)

// Syntax selects the platform dialect used when rendering a tree to text.
type Syntax string

const (
	SyntaxGeneric  Syntax = "generic"
	SyntaxPubMed   Syntax = "pubmed"
	SyntaxWoS      Syntax = "wos"
	SyntaxCrossref Syntax = "crossref"
)

// ParseSyntax returns the Syntax named by s.
func ParseSyntax(s string) (Syntax, error) {
	switch Syntax(strings.ToLower(strings.TrimSpace(s))) {
	case SyntaxGeneric, "":
		return SyntaxGeneric, nil
	case SyntaxPubMed:
		return SyntaxPubMed, nil
	case SyntaxWoS:
		return SyntaxWoS, nil
	case SyntaxCrossref:
		return SyntaxCrossref, nil
	default:
		return "", fmt.Errorf("unknown query syntax %q", s)
	}
}

var wosFields = map[string]string{
	FieldAll:      "ALL=",
	FieldTitle:    "TI=",
	FieldAbstract: "AB=",
	FieldTiAb:     "TS=",
	FieldAuthor:   "AU=",
}

// String renders the subtree rooted at n. Internal children are
// parenthesised; NOT children are appended to their parent as "... NOT x",
// the form PubMed and Web of Science evaluate left to right.
func (n *Node) String(syntax Syntax) string {
	var b strings.Builder
	n.render(&b, syntax)
	return b.String()
}

func (n *Node) render(b *strings.Builder, syntax Syntax) {
	switch n.Operator {
	case OpTerm:
		b.WriteString(renderTerm(n, syntax))
	case OpNot:
		b.WriteString("NOT ")
		renderExcluded(b, n, syntax)
	case OpAnd, OpOr:
		sep := " " + n.Operator.String() + " "
		written := 0
		for _, c := range n.Children {
			if c.Operator == OpNot {
				continue
			}
			if written > 0 {
				b.WriteString(sep)
			}
			renderOperand(b, c, syntax)
			written++
		}
		for _, c := range n.Children {
			if c.Operator != OpNot {
				continue
			}
			if written > 0 {
				b.WriteString(" ")
			}
			c.render(b, syntax)
			written++
		}
	}
}

// renderExcluded writes the operand of a NOT node; several operands are
// excluded as one OR group.
func renderExcluded(b *strings.Builder, n *Node, syntax Syntax) {
	if len(n.Children) == 1 {
		renderOperand(b, n.Children[0], syntax)
		return
	}
	b.WriteString("(")
	for i, c := range n.Children {
		if i > 0 {
			b.WriteString(" OR ")
		}
		renderOperand(b, c, syntax)
	}
	b.WriteString(")")
}

func renderOperand(b *strings.Builder, n *Node, syntax Syntax) {
	if n.IsLeaf() {
		n.render(b, syntax)
		return
	}
	b.WriteString("(")
	n.render(b, syntax)
	b.WriteString(")")
}

func renderTerm(n *Node, syntax Syntax) string {
	term := quoteIfPhrase(strings.TrimSpace(n.Term))
	field := strings.ToLower(strings.TrimSpace(n.SearchField))
	switch syntax {
	case SyntaxCrossref:
		return strings.Trim(term, `"`)
	case SyntaxWoS:
		if prefix, ok := wosFields[field]; ok {
			return prefix + term
		}
		return term
	default:
		if field == "" {
			return term
		}
		return term + "[" + field + "]"
	}
}

func quoteIfPhrase(term string) string {
	if strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) && len(term) > 1 {
		return term
	}
	if strings.ContainsAny(term, " \t") {
		return `"` + term + `"`
	}
	return term
}
