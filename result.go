package matchbox

import (
	"github.com/google/uuid"

	"github.com/solatis/matchbox/internal/types"
)

// Result is the outcome of the last successful Execute on a context. It is
// overwritten by the next successful Execute and cleared by Reset.
type Result struct {
	ctx *Context
}

// Result returns the last match, or nil when no Execute has succeeded since
// the context was created or last reset. A failed Execute leaves the
// previous result in place.
func (c *Context) Result() *Result {
	if c.c.Result == nil {
		return nil
	}
	return &Result{ctx: c}
}

// UUID returns the id of the matched rule.
func (r *Result) UUID() uuid.UUID {
	return r.ctx.c.Result.UUID
}

// MatchedValue returns the value that decided the match for the given
// field: the rule's literal for ==, ^= and =^ predicates, the full match
// text for ~. Non-string literals are returned in their ATC rendering. The
// second return is false when the winning path recorded no value for that
// field; predicates with other operators record nothing.
func (r *Result) MatchedValue(field string) (string, bool) {
	v, ok := r.ctx.c.Result.Matches[field]
	if !ok {
		return "", false
	}
	if v.Type != types.TypeString {
		return v.String(), true
	}
	return v.Str, true
}

// Captures returns regex captures keyed by group name and by stringified
// 1-based group index. The map is owned by the context and valid until the
// next Execute or Reset.
func (r *Result) Captures() map[string]string {
	return r.ctx.c.Result.Captures
}
