package lang

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/solatis/matchbox/internal/types"
)

/*
 * Pratt-style parser for ATC rule text.
 *
 * Grammar:
 *
 *   expression   := term ( logical_op term )*
 *   term         := predicate | "!"? "(" expression ")"
 *   predicate    := lhs binary_op rhs
 *   lhs          := transform_func | ident
 *   transform_fn := ident "(" lhs ")"
 *   rhs          := str_lit | rawstr_lit | ip_lit | int_lit
 *
 * "&&" binds tighter than "||"; both are left-associative. "!" applies to a
 * parenthesised expression only. Regex literals on the RHS of "~" are
 * compiled here so a compile failure carries the literal's source location.
 */

const (
	precOr  = 1
	precAnd = 2
)

type parser struct {
	lx  *lexer
	tok token
}

// Parse parses rule text into an expression tree. The returned error is
// always a *ParseError with caret rendering.
func Parse(src string) (Expression, error) {
	if !utf8.ValidString(src) {
		return nil, &ParseError{
			Line:   1,
			Col:    1,
			Span:   1,
			Source: sourceLine(src, 0),
			Reason: "rule text is not valid UTF-8",
		}
	}

	p := &parser{lx: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	expr, err := p.parseExpression(precOr)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorAt(p.tok, "expected '&&', '||', or end of input")
	}
	return expr, nil
}

func (p *parser) advance() *ParseError {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorAt(tok token, reason string) *ParseError {
	return newParseError(p.lx.src, tok.offset, tok.line, tok.col, tok.length, reason)
}

func (p *parser) parseExpression(minPrec int) (Expression, *ParseError) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		var prec int
		switch p.tok.kind {
		case tokAndAnd:
			prec = precAnd
		case tokOrOr:
			prec = precOr
		default:
			return left, nil
		}
		if prec < minPrec {
			return left, nil
		}

		op := p.tok.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		if op == tokAndAnd {
			left = &And{Left: left, Right: right}
		} else {
			left = &Or{Left: left, Right: right}
		}
	}
}

func (p *parser) parseTerm() (Expression, *ParseError) {
	switch p.tok.kind {
	case tokBang:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokLParen {
			return nil, p.errorAt(p.tok, "expected '(' after '!'")
		}
		inner, err := p.parseParenthesised()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	case tokLParen:
		return p.parseParenthesised()
	case tokIdent:
		return p.parsePredicate()
	default:
		return nil, p.errorAt(p.tok, "expected predicate or '('")
	}
}

func (p *parser) parseParenthesised() (Expression, *ParseError) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	expr, err := p.parseExpression(precOr)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokRParen {
		return nil, p.errorAt(p.tok, "expected ')'")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *parser) parsePredicate() (Expression, *ParseError) {
	lhs, err := p.parseLHS()
	if err != nil {
		return nil, err
	}

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	rhs, err := p.parseRHS(op)
	if err != nil {
		return nil, err
	}

	return &Predicate{LHS: lhs, Op: op, RHS: rhs}, nil
}

// parseLHS parses an identifier or a nested transform call around one.
// Transforms are recorded innermost first.
func (p *parser) parseLHS() (LHS, *ParseError) {
	if p.tok.kind != tokIdent {
		return LHS{}, p.errorAt(p.tok, "expected field or transform function")
	}
	name := p.tok
	if err := p.advance(); err != nil {
		return LHS{}, err
	}

	if p.tok.kind != tokLParen {
		return LHS{Field: name.text}, nil
	}

	var transform Transform
	switch name.text {
	case "lower":
		transform = TransformLower
	case "any":
		transform = TransformAny
	default:
		return LHS{}, p.errorAt(name, "unknown transformation function: "+name.text)
	}

	if err := p.advance(); err != nil { // consume '('
		return LHS{}, err
	}
	inner, perr := p.parseLHS()
	if perr != nil {
		return LHS{}, perr
	}
	if p.tok.kind != tokRParen {
		return LHS{}, p.errorAt(p.tok, "expected ')'")
	}
	if err := p.advance(); err != nil {
		return LHS{}, err
	}

	inner.Transforms = append(inner.Transforms, transform)
	return inner, nil
}

func (p *parser) parseOperator() (BinaryOperator, *ParseError) {
	var op BinaryOperator
	switch p.tok.kind {
	case tokEquals:
		op = OpEquals
	case tokNotEquals:
		op = OpNotEquals
	case tokTilde:
		op = OpRegex
	case tokPrefixOp:
		op = OpPrefix
	case tokPostfixOp:
		op = OpPostfix
	case tokGreater:
		op = OpGreater
	case tokGreaterEq:
		op = OpGreaterOrEqual
	case tokLess:
		op = OpLess
	case tokLessEq:
		op = OpLessOrEqual
	case tokIdent:
		switch p.tok.text {
		case "in":
			op = OpIn
		case "contains":
			op = OpContains
		case "not":
			if err := p.advance(); err != nil {
				return 0, err
			}
			if p.tok.kind != tokIdent || p.tok.text != "in" {
				return 0, p.errorAt(p.tok, "expected 'in' after 'not'")
			}
			op = OpNotIn
		default:
			return 0, p.errorAt(p.tok, "expected binary operator")
		}
	default:
		return 0, p.errorAt(p.tok, "expected binary operator")
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return op, nil
}

func (p *parser) parseRHS(op BinaryOperator) (types.Value, *ParseError) {
	tok := p.tok
	var v types.Value

	switch tok.kind {
	case tokString, tokRawString:
		if op == OpRegex {
			re, err := regexp.Compile(tok.text)
			if err != nil {
				return types.Value{}, p.errorAt(tok, err.Error())
			}
			v = types.RegexValue(re)
		} else {
			v = types.StringValue(tok.text)
		}
	case tokInt:
		n, err := parseInt(tok.text)
		if err != nil {
			return types.Value{}, p.errorAt(tok, "invalid integer literal")
		}
		v = types.IntValue(n)
	case tokIPv4, tokIPv6:
		val, err := types.ParseAddrValue(tok.text)
		if err != nil {
			return types.Value{}, p.errorAt(tok, "invalid IP literal: "+err.Error())
		}
		v = val
	case tokIPv4Cidr, tokIPv6Cidr:
		val, err := types.ParseCidrValue(tok.text)
		if err != nil {
			return types.Value{}, p.errorAt(tok, "invalid CIDR literal: "+err.Error())
		}
		v = val
	default:
		return types.Value{}, p.errorAt(tok, "expected literal value")
	}

	if op == OpRegex && v.Type != types.TypeRegex {
		return types.Value{}, p.errorAt(tok, "regex operator can only be used with String operands")
	}

	if err := p.advance(); err != nil {
		return types.Value{}, err
	}
	return v, nil
}

// parseInt decodes decimal, 0x hexadecimal, and 0-prefixed octal integers
// with an optional leading minus. The sign is kept with the digits so the
// full int64 range parses, minimum included.
func parseInt(text string) (int64, error) {
	sign := ""
	s := text
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}

	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return strconv.ParseInt(sign+s[2:], 16, 64)
	case len(s) > 1 && s[0] == '0':
		return strconv.ParseInt(sign+s[1:], 8, 64)
	default:
		return strconv.ParseInt(sign+s, 10, 64)
	}
}
