package query

import (
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind  tokenKind
	text  string
	field string
	pos   int
}

// Parse builds a query tree from its textual form. Operators are AND, OR and
// NOT in any case; juxtaposed terms are joined with AND. NOT binds tightest
// and may be used as a prefix ("NOT x") or between operands ("a NOT b",
// meaning a AND NOT b). AND binds tighter than OR. Terms may carry a PubMed
// field tag ("cancer[ti]") or a Web of Science prefix ("TI=cancer"); phrases
// are double-quoted.
func Parse(text string) (*Node, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, apperrors.Invalidf("query is empty")
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, apperrors.Invalidf("unexpected %q at position %d", tok.text, tok.pos)
	}
	return root, nil
}

// MustParse is Parse for tests and fixtures; it panics on error.
func MustParse(text string) *Node {
	n, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return n
}

// maxDepth bounds nesting of groups and prefix NOTs so that hostile input
// is rejected before it exhausts the goroutine stack.
const maxDepth = 256

type parser struct {
	tokens []token
	pos    int
	depth  int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (*Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*Node{first}
	for p.peek().kind == tokOr {
		p.next()
		child, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return first, nil
	}
	return Or(children...), nil
}

func (p *parser) parseAnd() (*Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []*Node{first}
	for {
		switch p.peek().kind {
		case tokAnd:
			p.next()
			child, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		case tokNot:
			p.next()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			children = append(children, Not(operand))
		case tokWord, tokLParen:
			child, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		default:
			if len(children) == 1 {
				return first, nil
			}
			return And(children...), nil
		}
	}
}

func (p *parser) parseUnary() (*Node, error) {
	tok := p.next()
	if tok.kind == tokNot || tok.kind == tokLParen {
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return nil, apperrors.Invalidf("query nested too deeply at position %d", tok.pos)
		}
	}
	switch tok.kind {
	case tokNot:
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not(operand), nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, apperrors.Invalidf("missing closing parenthesis for group at position %d", tok.pos)
		}
		return inner, nil
	case tokWord:
		return Term(tok.text, tok.field), nil
	case tokEOF:
		return nil, apperrors.Invalidf("unexpected end of query")
	default:
		return nil, apperrors.Invalidf("unexpected %q at position %d", tok.text, tok.pos)
	}
}

func lex(text string) ([]token, error) {
	var tokens []token
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '"':
			start := i
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end == len(runes) {
				return nil, apperrors.Invalidf("unterminated phrase at position %d", start)
			}
			phrase := string(runes[start : end+1])
			i = end + 1
			field, next, err := lexFieldTag(runes, i)
			if err != nil {
				return nil, err
			}
			i = next
			tokens = append(tokens, token{kind: tokWord, text: phrase, field: field, pos: start})
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '(' && runes[i] != ')' && runes[i] != '[' {
				i++
			}
			word := string(runes[start:i])
			field, next, err := lexFieldTag(runes, i)
			if err != nil {
				return nil, err
			}
			i = next
			if field == "" {
				switch strings.ToUpper(word) {
				case "AND":
					tokens = append(tokens, token{kind: tokAnd, text: word, pos: start})
					continue
				case "OR":
					tokens = append(tokens, token{kind: tokOr, text: word, pos: start})
					continue
				case "NOT":
					tokens = append(tokens, token{kind: tokNot, text: word, pos: start})
					continue
				}
			}
			if field == "" {
				word, field = splitWoSPrefix(word)
			}
			if word == "" {
				return nil, apperrors.Invalidf("empty search term at position %d", start)
			}
			tokens = append(tokens, token{kind: tokWord, text: word, field: field, pos: start})
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

// lexFieldTag reads an optional "[field]" suffix starting at i.
func lexFieldTag(runes []rune, i int) (string, int, error) {
	if i >= len(runes) || runes[i] != '[' {
		return "", i, nil
	}
	end := i + 1
	for end < len(runes) && runes[end] != ']' {
		end++
	}
	if end == len(runes) {
		return "", i, apperrors.Invalidf("unterminated field tag at position %d", i)
	}
	return strings.ToLower(strings.TrimSpace(string(runes[i+1 : end]))), end + 1, nil
}

func splitWoSPrefix(word string) (string, string) {
	idx := strings.Index(word, "=")
	if idx <= 0 {
		return word, ""
	}
	prefix := strings.ToUpper(word[:idx+1])
	for field, p := range wosFields {
		if p == prefix {
			return word[idx+1:], field
		}
	}
	return word, ""
}
