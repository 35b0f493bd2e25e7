package rules

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/solatis/matchbox/internal/lang"
	"github.com/solatis/matchbox/internal/prefilter"
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Router index.
 *
 * Matchers live in two indexes: a slice ordered by (priority desc, uuid
 * asc) for deterministic iteration, and a uuid map for O(1) lookup on
 * removal and for duplicate detection. The union of referenced fields is reference-counted
 * so removing a matcher restores the exact prior field set.
 *
 * Failed AddMatcher calls install nothing: parse and bind complete before
 * any index is touched, so partial state cannot leak.
 *
 * Concurrency follows the multiple-readers-or-one-writer contract with an
 * internal RWMutex; Execute mutates only the caller-owned context.
 */

// Matcher is one installed (priority, uuid, expression) rule.
type Matcher struct {
	Priority   uint64
	UUID       uuid.UUID
	Expression lang.Expression
	Fields     map[string]struct{}
	Prefixes   prefilter.PrefixSet
}

// Router owns a schema reference and a prioritised set of matchers.
type Router struct {
	mu        sync.RWMutex
	schema    *types.Schema
	matchers  []*Matcher
	byUUID    map[uuid.UUID]*Matcher
	fieldRefs map[string]int
	pf        *prefilter.Index
}

// NewRouter creates an empty router over schema. The schema must be fully
// populated and is treated as read-only from here on.
func NewRouter(schema *types.Schema) *Router {
	return &Router{
		schema:    schema,
		byUUID:    make(map[uuid.UUID]*Matcher),
		fieldRefs: make(map[string]int),
	}
}

// Schema returns the schema the router was built from.
func (r *Router) Schema() *types.Schema {
	return r.schema
}

// Validate parses and binds atc against schema and returns the referenced
// fields in lexical order, without installing anything.
func Validate(schema *types.Schema, atc string) ([]string, error) {
	expr, err := lang.Parse(atc)
	if err != nil {
		return nil, err
	}
	fields, err := lang.Validate(expr, schema)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// AddMatcher parses, binds, and installs atc under (priority, id).
// Priorities need not be unique; installing an id that already exists
// fails with ErrDuplicateUUID and leaves the router unchanged.
func (r *Router) AddMatcher(priority uint64, id uuid.UUID, atc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byUUID[id]; dup {
		return types.ErrDuplicateUUID
	}

	expr, err := lang.Parse(atc)
	if err != nil {
		return err
	}
	fields, err := lang.Validate(expr, r.schema)
	if err != nil {
		return err
	}

	m := &Matcher{
		Priority:   priority,
		UUID:       id,
		Expression: expr,
		Fields:     fields,
		Prefixes:   prefilter.PrefixSet{Unbounded: true},
	}
	if r.pf != nil {
		// Re-adding an id goes through RemoveMatcher first (the duplicate
		// check above enforces it), so no stale trie entry can exist here.
		m.Prefixes = prefilter.Extract(expr, r.pf.Field())
		r.pf.Insert(id, m.Prefixes)
	}

	i := sort.Search(len(r.matchers), func(i int) bool {
		return !matcherBefore(r.matchers[i], m)
	})
	r.matchers = append(r.matchers, nil)
	copy(r.matchers[i+1:], r.matchers[i:])
	r.matchers[i] = m

	r.byUUID[id] = m
	for f := range fields {
		r.fieldRefs[f]++
	}
	return nil
}

// RemoveMatcher uninstalls the matcher under (priority, id) and reports
// whether a removal occurred.
func (r *Router) RemoveMatcher(priority uint64, id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byUUID[id]
	if !ok || m.Priority != priority {
		return false
	}

	for i, cand := range r.matchers {
		if cand == m {
			r.matchers = append(r.matchers[:i], r.matchers[i+1:]...)
			break
		}
	}
	delete(r.byUUID, id)

	for f := range m.Fields {
		if r.fieldRefs[f]--; r.fieldRefs[f] == 0 {
			delete(r.fieldRefs, f)
		}
	}
	if r.pf != nil {
		r.pf.Remove(id, m.Prefixes)
	}
	return true
}

// matcherBefore orders matchers by priority descending, then uuid
// ascending on the 16-byte form, which keeps tie-breaking stable.
func matcherBefore(a, b *Matcher) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return bytes.Compare(a.UUID[:], b.UUID[:]) < 0
}

// EnablePrefilter nominates a String field for prefix-based candidate
// elimination and (re)derives the prefix sets of installed matchers.
func (r *Router) EnablePrefilter(field string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	typ, ok := r.schema.TypeOf(field)
	if !ok {
		return &types.UnknownFieldError{Field: field}
	}
	if typ != types.TypeString {
		return types.ErrTypeMismatch
	}

	r.pf = prefilter.New(field)
	for _, m := range r.matchers {
		m.Prefixes = prefilter.Extract(m.Expression, field)
		r.pf.Insert(m.UUID, m.Prefixes)
	}
	return nil
}

// Execute walks matchers in descending priority against ctx and records
// the first match into ctx.Result. The context must be bound to the same
// schema instance the router was built from.
func (r *Router) Execute(ctx *Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ctx.schema != r.schema {
		return false
	}

	var candidates map[uuid.UUID]struct{}
	if r.pf != nil {
		values := ctx.ValuesOf(r.pf.Field())
		strs := make([]string, 0, len(values))
		for _, v := range values {
			if v.Type == types.TypeString {
				strs = append(strs, v.Str)
			}
		}
		candidates = r.pf.Candidates(strs)
	}

	for _, m := range r.matchers {
		if r.pf != nil && !m.Prefixes.Unbounded {
			if _, ok := candidates[m.UUID]; !ok {
				continue
			}
		}
		match := newMatch()
		if evaluate(m.Expression, ctx, match) {
			match.UUID = m.UUID
			ctx.Result = match
			return true
		}
	}
	return false
}

// Fields returns the union of fields referenced by installed matchers, in
// lexical order.
func (r *Router) Fields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.fieldRefs))
	for f := range r.fieldRefs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FieldsWithIndex returns each referenced field mapped to its position in
// the Fields ordering, for index-addressed value pushes on the hot path.
func (r *Router) FieldsWithIndex() map[string]int {
	fields := r.Fields()
	out := make(map[string]int, len(fields))
	for i, f := range fields {
		out[f] = i
	}
	return out
}

// MatcherCount returns the number of installed matchers.
func (r *Router) MatcherCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matchers)
}
