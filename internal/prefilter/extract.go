// Package prefilter derives mandatory literal string prefixes from bound
// expressions and indexes them in a radix trie, so non-candidate matchers
// can be skipped before full evaluation.
package prefilter

import (
	"regexp/syntax"
	"sort"

	"github.com/solatis/matchbox/internal/lang"
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Prefix extraction.
 *
 * A matcher's PrefixSet is either unbounded (no prefix guarantee, the
 * matcher is always a candidate) or a finite set of byte strings such that
 * the matcher can only match when the observed value of the prefilter
 * field starts with at least one member.
 *
 * The walk produces only positive evidence:
 *
 *   field ^= "L"  and  field == "L"   =>  {L}
 *   field ~ re                        =>  literal prefixes of re, when the
 *                                         compiled form mandates them
 *   And(l, r)                         =>  prefix-aware intersection
 *   Or(l, r)                          =>  union, unbounded-absorbing
 *   Not(_), other fields, other ops   =>  unbounded
 *
 * Soundness beats tightness: whenever extraction is unsure it yields
 * unbounded, which only costs evaluation time, never correctness.
 */

// PrefixSet is the prefix guarantee derived for one matcher.
type PrefixSet struct {
	// Unbounded marks a matcher with no prefix guarantee; it is always a
	// candidate and never enters the trie.
	Unbounded bool

	// Prefixes is sorted, duplicate-free, and non-empty for finite sets.
	Prefixes []string
}

func unboundedSet() PrefixSet {
	return PrefixSet{Unbounded: true}
}

// Extract walks the bound expression and returns the PrefixSet for the
// nominated prefilter field.
func Extract(expr lang.Expression, field string) PrefixSet {
	ps := extract(expr, field)
	if ps.Unbounded {
		return ps
	}
	// An empty-string prefix guarantees nothing.
	for _, p := range ps.Prefixes {
		if p == "" {
			return unboundedSet()
		}
	}
	return ps
}

func extract(expr lang.Expression, field string) PrefixSet {
	switch n := expr.(type) {
	case *lang.And:
		return intersect(extract(n.Left, field), extract(n.Right, field))
	case *lang.Or:
		return union(extract(n.Left, field), extract(n.Right, field))
	case *lang.Not:
		return unboundedSet()
	case *lang.Predicate:
		return extractPredicate(n, field)
	default:
		return unboundedSet()
	}
}

func extractPredicate(p *lang.Predicate, field string) PrefixSet {
	if p.LHS.Field != field {
		return unboundedSet()
	}
	// lower() rewrites the observed bytes, so the literal is no longer a
	// prefix of the raw value. any() preserves bytes and stays usable.
	if p.LHS.HasTransform(lang.TransformLower) {
		return unboundedSet()
	}

	switch p.Op {
	case lang.OpPrefix, lang.OpEquals:
		return PrefixSet{Prefixes: []string{p.RHS.Str}}
	case lang.OpRegex:
		return regexPrefixes(p.RHS.Re.String())
	default:
		return unboundedSet()
	}
}

// intersect narrows two sets under And semantics: an unbounded side defers
// to the other, and two finite sets keep the longer of every
// prefix-compatible pair. Incompatible finite sets degrade to unbounded:
// with a multi-valued prefilter field both conjuncts can still hold
// through different values, so skipping such a matcher would over-filter.
func intersect(a, b PrefixSet) PrefixSet {
	if a.Unbounded {
		return b
	}
	if b.Unbounded {
		return a
	}

	var out []string
	for _, x := range a.Prefixes {
		for _, y := range b.Prefixes {
			switch {
			case len(x) >= len(y) && x[:len(y)] == y:
				out = append(out, x)
			case len(y) > len(x) && y[:len(x)] == x:
				out = append(out, y)
			}
		}
	}
	if len(out) == 0 {
		return unboundedSet()
	}
	return finite(out)
}

// union merges two sets under Or semantics; either side being unbounded, or
// the merged set outgrowing MaxPrefixesPerMatcher, absorbs to unbounded.
func union(a, b PrefixSet) PrefixSet {
	if a.Unbounded || b.Unbounded {
		return unboundedSet()
	}
	merged := finite(append(append([]string{}, a.Prefixes...), b.Prefixes...))
	if len(merged.Prefixes) > types.MaxPrefixesPerMatcher {
		return unboundedSet()
	}
	return merged
}

func finite(prefixes []string) PrefixSet {
	sort.Strings(prefixes)
	out := prefixes[:0]
	for i, p := range prefixes {
		if i == 0 || p != prefixes[i-1] {
			out = append(out, p)
		}
	}
	return PrefixSet{Prefixes: out}
}

// regexPrefixes extracts mandatory literal prefixes from a pattern by
// walking its parsed syntax tree. Only anchored concatenations of literals
// yield prefixes; alternations union their branches.
func regexPrefixes(pattern string) PrefixSet {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return unboundedSet()
	}
	return prefixesOf(re)
}

func prefixesOf(re *syntax.Regexp) PrefixSet {
	switch re.Op {
	case syntax.OpCapture:
		return prefixesOf(re.Sub[0])

	case syntax.OpAlternate:
		out := PrefixSet{Prefixes: nil}
		for _, sub := range re.Sub {
			branch := prefixesOf(sub)
			if branch.Unbounded {
				return unboundedSet()
			}
			out = union(out, branch)
			if out.Unbounded {
				return out
			}
		}
		return out

	case syntax.OpConcat:
		if len(re.Sub) == 0 || !anchored(re.Sub[0]) {
			return unboundedSet()
		}
		var prefix []byte
		for _, sub := range re.Sub[1:] {
			for sub.Op == syntax.OpCapture {
				sub = sub.Sub[0]
			}
			if sub.Op == syntax.OpLiteral && sub.Flags&syntax.FoldCase == 0 {
				prefix = append(prefix, string(sub.Rune)...)
				continue
			}
			break
		}
		if len(prefix) == 0 {
			return unboundedSet()
		}
		return PrefixSet{Prefixes: []string{string(prefix)}}

	default:
		return unboundedSet()
	}
}

func anchored(re *syntax.Regexp) bool {
	return re.Op == syntax.OpBeginText || re.Op == syntax.OpBeginLine
}
