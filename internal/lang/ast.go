// Package lang implements the ATC rule language: lexer, Pratt parser,
// abstract syntax tree, and the schema-aware semantic binder.
package lang

import (
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Abstract syntax tree for ATC expressions.
 *
 * The tree is a closed tagged variant: And, Or, Not, and Predicate. The
 * evaluator and the prefilter both walk it with a type switch; predicates
 * stay introspectable structs rather than closures so the prefilter can
 * read operators and literals back out.
 *
 * Every node renders back to canonical text via String(); parser tests
 * compare rendered output to assert precedence and literal round-trips.
 */

// Expression is one node of the parsed rule tree.
type Expression interface {
	// String renders the node as canonical, fully parenthesised ATC text.
	String() string

	expr()
}

// And matches when both children match.
type And struct {
	Left, Right Expression
}

// Or matches when either child matches.
type Or struct {
	Left, Right Expression
}

// Not inverts its child. Match metadata produced inside a negated subtree
// is discarded.
type Not struct {
	Inner Expression
}

// Predicate compares one field (optionally transformed) against a literal.
type Predicate struct {
	LHS LHS
	Op  BinaryOperator
	RHS types.Value
}

func (*And) expr()       {}
func (*Or) expr()        {}
func (*Not) expr()       {}
func (*Predicate) expr() {}

func (e *And) String() string {
	return "(" + e.Left.String() + " && " + e.Right.String() + ")"
}

func (e *Or) String() string {
	return "(" + e.Left.String() + " || " + e.Right.String() + ")"
}

func (e *Not) String() string {
	return "!" + e.Inner.String()
}

func (p *Predicate) String() string {
	return "(" + p.LHS.String() + " " + p.Op.String() + " " + p.RHS.String() + ")"
}

// LHS is a field reference with zero or more transform calls around it,
// innermost first.
type LHS struct {
	Field      string
	Transforms []Transform
}

// String renders the reference with transforms applied outermost last, so
// Transforms [any, lower] renders as lower(any(field)).
func (l LHS) String() string {
	s := l.Field
	for _, t := range l.Transforms {
		s = t.String() + "(" + s + ")"
	}
	return s
}

// HasTransform reports whether t appears anywhere in the transform chain.
func (l LHS) HasTransform(t Transform) bool {
	for _, lt := range l.Transforms {
		if lt == t {
			return true
		}
	}
	return false
}

// Transform is a pre-declared function applied to the LHS of a predicate.
type Transform int

const (
	// TransformLower lowercases each string value before comparison.
	TransformLower Transform = iota
	// TransformAny forces existential quantification over the value list.
	TransformAny
)

func (t Transform) String() string {
	switch t {
	case TransformLower:
		return "lower"
	case TransformAny:
		return "any"
	default:
		return "transform?"
	}
}

// BinaryOperator is the comparison a predicate applies.
type BinaryOperator int

const (
	OpEquals         BinaryOperator = iota // ==
	OpNotEquals                            // !=
	OpRegex                                // ~
	OpPrefix                               // ^=
	OpPostfix                              // =^
	OpGreater                              // >
	OpGreaterOrEqual                       // >=
	OpLess                                 // <
	OpLessOrEqual                          // <=
	OpIn                                   // in
	OpNotIn                                // not in
	OpContains                             // contains
)

func (op BinaryOperator) String() string {
	switch op {
	case OpEquals:
		return "=="
	case OpNotEquals:
		return "!="
	case OpRegex:
		return "~"
	case OpPrefix:
		return "^="
	case OpPostfix:
		return "=^"
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpContains:
		return "contains"
	default:
		return "op?"
	}
}

// Negative reports whether the operator carries universal quantification
// over multi-valued fields: the predicate holds only if it holds for every
// value. Positive operators are existential.
func (op BinaryOperator) Negative() bool {
	return op == OpNotEquals || op == OpNotIn
}
