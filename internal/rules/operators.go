package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/matchbox/internal/lang"
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Operator comparison logic.
 *
 * compare applies one bound predicate operator to a context value and the
 * rule literal. The binder has already established type safety, so the
 * payload accesses here cannot mismatch; an impossible combination returns
 * false rather than panicking.
 *
 * Why function-based: twelve operators through one switch beat twelve
 * single-method types with near-identical bodies, and keep the evaluator's
 * hot loop free of interface dispatch.
 */

// compare applies op to a single context value against the rule literal.
func compare(op lang.BinaryOperator, lhs, rhs types.Value) bool {
	switch op {
	case lang.OpEquals:
		return lhs.Equal(rhs)
	case lang.OpNotEquals:
		return !lhs.Equal(rhs)
	case lang.OpRegex:
		return rhs.Re.MatchString(lhs.Str)
	case lang.OpPrefix:
		return strings.HasPrefix(lhs.Str, rhs.Str)
	case lang.OpPostfix:
		return strings.HasSuffix(lhs.Str, rhs.Str)
	case lang.OpContains:
		return strings.Contains(lhs.Str, rhs.Str)
	case lang.OpGreater:
		return lhs.Int > rhs.Int
	case lang.OpGreaterOrEqual:
		return lhs.Int >= rhs.Int
	case lang.OpLess:
		return lhs.Int < rhs.Int
	case lang.OpLessOrEqual:
		return lhs.Int <= rhs.Int
	case lang.OpIn:
		return rhs.Cidr.Contains(lhs.Addr)
	case lang.OpNotIn:
		return !rhs.Cidr.Contains(lhs.Addr)
	default:
		return false
	}
}

// recordMatch stores match metadata for a value that satisfied p: the RHS
// literal for equality and affix operators, the full match text plus
// captures for regex. Other operators record nothing.
func recordMatch(p *lang.Predicate, lhs types.Value, m *Match) {
	switch p.Op {
	case lang.OpEquals, lang.OpPrefix, lang.OpPostfix:
		m.Matches[p.LHS.Field] = p.RHS
	case lang.OpRegex:
		recordCaptures(p, lhs, m)
	}
}

// recordCaptures re-runs the match to pull submatch positions; captures are
// keyed by group name and by stringified 1-based index. Group 0 becomes the
// recorded matched value, not a capture.
func recordCaptures(p *lang.Predicate, lhs types.Value, m *Match) {
	re := p.RHS.Re
	idx := re.FindStringSubmatchIndex(lhs.Str)
	if idx == nil {
		return
	}

	m.Matches[p.LHS.Field] = types.StringValue(lhs.Str[idx[0]:idx[1]])

	names := re.SubexpNames()
	for i := 1; i*2+1 < len(idx); i++ {
		lo, hi := idx[i*2], idx[i*2+1]
		if lo < 0 {
			continue
		}
		group := lhs.Str[lo:hi]
		m.Captures[strconv.Itoa(i)] = group
		if i < len(names) && names[i] != "" {
			m.Captures[names[i]] = group
		}
	}
}
