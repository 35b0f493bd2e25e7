package rules

import (
	"strings"

	"github.com/solatis/matchbox/internal/lang"
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Expression evaluation.
 *
 * A post-order walk over the bound AST with short-circuiting And/Or. For a
 * predicate, the context's value list for the field is scanned under the
 * operator's quantifier:
 *
 *   - positive operators are existential: the first satisfying value wins
 *     and is recorded into the Match;
 *   - negative operators (!=, not in) are universal: every value must
 *     satisfy, and a missing field holds vacuously;
 *   - the any() transform forces existential quantification for every
 *     operator.
 *
 * Match metadata produced inside a Not subtree is evaluated into a scratch
 * Match and discarded. The left branch of an Or is also evaluated into a
 * scratch Match, which is merged only when that branch holds.
 */

// evaluate walks expr against ctx, recording match metadata into m.
func evaluate(expr lang.Expression, ctx *Context, m *Match) bool {
	switch n := expr.(type) {
	case *lang.And:
		return evaluate(n.Left, ctx, m) && evaluate(n.Right, ctx, m)
	case *lang.Or:
		left := newMatch()
		if evaluate(n.Left, ctx, left) {
			for k, v := range left.Matches {
				m.Matches[k] = v
			}
			for k, v := range left.Captures {
				m.Captures[k] = v
			}
			return true
		}
		return evaluate(n.Right, ctx, m)
	case *lang.Not:
		return !evaluate(n.Inner, ctx, newMatch())
	case *lang.Predicate:
		return evalPredicate(n, ctx, m)
	default:
		return false
	}
}

func evalPredicate(p *lang.Predicate, ctx *Context, m *Match) bool {
	values := ctx.ValuesOf(p.LHS.Field)

	lower := p.LHS.HasTransform(lang.TransformLower)
	existential := !p.Op.Negative() || p.LHS.HasTransform(lang.TransformAny)

	if len(values) == 0 {
		// Missing field: positive predicates fail, universal negatives
		// hold vacuously.
		return !existential
	}

	for _, v := range values {
		if lower {
			v = types.StringValue(strings.ToLower(v.Str))
		}
		ok := compare(p.Op, v, p.RHS)
		if existential && ok {
			recordMatch(p, v, m)
			return true
		}
		if !existential && !ok {
			return false
		}
	}

	// Existential scan found nothing; universal scan rejected nothing.
	return !existential
}
