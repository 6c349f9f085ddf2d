package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	errEmptyFormula    = errors.New("formula is empty")
	errUnexpectedToken = errors.New("unexpected token")
	errUnexpectedEnd   = errors.New("unexpected end of formula")
	errUnterminatedRef = errors.New("unterminated metric reference")
	errEmptyRef        = errors.New("empty metric reference")
	errBadNumber       = errors.New("invalid numeric literal")
	errMissingParen    = errors.New("missing closing parenthesis")
	errTrailingInput   = errors.New("unexpected input after expression")
)

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenRef
	tokenOp
	tokenLeftParen
	tokenRightParen
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse compiles a formula into an expression tree. The grammar is numeric
// literals, {metric_name} references, binary + - * / with the usual
// precedence and left associativity, and parentheses.
func Parse(src string) (Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	if len(tokens) == 1 {
		return nil, errEmptyFormula
	}

	p := &parser{tokens: tokens}

	expr, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("%w: %q at position %d", errTrailingInput, p.peek().text, p.peek().pos)
	}

	return expr, nil
}

func tokenize(src string) ([]token, error) {
	tokens := make([]token, 0, 8)
	runes := []rune(src)

	i := 0
	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '{':
			end := i + 1
			for end < len(runes) && runes[end] != '}' {
				end++
			}

			if end == len(runes) {
				return nil, fmt.Errorf("%w at position %d", errUnterminatedRef, i)
			}

			name := strings.TrimSpace(string(runes[i+1 : end]))
			if name == "" {
				return nil, fmt.Errorf("%w at position %d", errEmptyRef, i)
			}

			tokens = append(tokens, token{kind: tokenRef, text: name, pos: i})
			i = end + 1

		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokenOp, text: string(r), pos: i})
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokenLeftParen, text: "(", pos: i})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokenRightParen, text: ")", pos: i})
			i++

		case unicode.IsDigit(r) || r == '.':
			end := i
			for end < len(runes) && (unicode.IsDigit(runes[end]) || runes[end] == '.') {
				end++
			}

			text := string(runes[i:end])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("%w: %q at position %d", errBadNumber, text, i)
			}

			tokens = append(tokens, token{kind: tokenNumber, text: text, pos: i})
			i = end

		default:
			return nil, fmt.Errorf("%w: %q at position %d", errUnexpectedToken, string(r), i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: len(runes)})

	return tokens, nil
}

type parser struct {
	tokens []token
	next   int
}

func (p *parser) peek() token {
	return p.tokens[p.next]
}

func (p *parser) advance() token {
	tok := p.tokens[p.next]
	if tok.kind != tokenEOF {
		p.next++
	}

	return tok
}

func precedence(op string) int {
	switch op {
	case "*", "/":
		return 2
	case "+", "-":
		return 1
	default:
		return 0
	}
}

// parseBinary is precedence climbing: consume operators at or above minPrec,
// recursing with a higher floor for the right side to keep left associativity.
func (p *parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOp {
			break
		}

		prec := precedence(tok.text)
		if prec < minPrec {
			break
		}

		p.advance()

		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}

		left = &Binary{Op: Op(tok.text[0]), Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.advance()

	switch tok.kind {
	case tokenNumber:
		value, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q at position %d", errBadNumber, tok.text, tok.pos)
		}

		return &Literal{Value: value}, nil

	case tokenRef:
		return &Ref{Metric: tok.text}, nil

	case tokenLeftParen:
		expr, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}

		if closing := p.advance(); closing.kind != tokenRightParen {
			return nil, fmt.Errorf("%w at position %d", errMissingParen, tok.pos)
		}

		return expr, nil

	case tokenEOF:
		return nil, errUnexpectedEnd

	default:
		return nil, fmt.Errorf("%w: %q at position %d", errUnexpectedToken, tok.text, tok.pos)
	}
}
