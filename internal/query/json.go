package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

type wireNode struct {
	Operator string  `json:"operator,omitempty"`
	Term     string  `json:"term,omitempty"`
	Field    string  `json:"field,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// MarshalJSON encodes leaves as {"term","field"} and internal nodes as
// {"operator","children"}.
func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireNode{Term: n.Term, Field: n.SearchField, Children: n.Children}
	if !n.IsLeaf() {
		w.Operator = n.Operator.String()
	}
	return json.Marshal(w)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op, ok := ParseOperator(w.Operator)
	if !ok {
		return fmt.Errorf("unknown operator %q", w.Operator)
	}
	*n = Node{Operator: op, Children: w.Children, Term: w.Term, SearchField: w.Field}
	return nil
}

// DecodeJSON unmarshals and validates a tree. Documents nested deeper than
// the parser accepts are rejected before decoding.
func DecodeJSON(data []byte) (*Node, error) {
	if err := checkNesting(data); err != nil {
		return nil, err
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, apperrors.Invalidf("decoding query tree: %v", err)
	}
	if err := Validate(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// checkNesting walks the token stream and fails once objects and arrays are
// nested beyond what a query tree of maxDepth levels needs.
func checkNesting(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return apperrors.Invalidf("decoding query tree: %v", err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > 2*maxDepth+1 {
				return apperrors.Invalidf("query tree nested too deeply at offset %d", dec.InputOffset())
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
