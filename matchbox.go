// Package matchbox is a rule-matching engine for request dispatch. Rules
// are written in the ATC predicate language, validated against a field
// schema, and installed into a router under a (priority, uuid) key; per
// request, a context carries the observed field values and the router
// returns the highest-priority matching rule together with the value
// that produced the match and any regex captures.
package matchbox

import (
	"github.com/google/uuid"

	"github.com/solatis/matchbox/internal/rules"
	"github.com/solatis/matchbox/internal/types"
)

// FieldType indicates the declared data type of a schema field. The
// numeric values are shared with the embedding ABI.
type FieldType int

const (
	String FieldType = iota
	IpCidr
	IpAddr
	Int
	Regex
)

// Schema holds the names and types of fields available to routers and
// contexts. Populate it fully before handing it to NewRouter or
// NewContext; it is read-only afterwards and may be shared freely.
type Schema struct {
	s *types.Schema
}

// NewSchema creates a new empty Schema.
func NewSchema() *Schema {
	return &Schema{s: types.NewSchema()}
}

// AddField declares a field and its associated type. A trailing `.*`
// segment declares a wildcard: `http.headers.*` answers lookups for any
// `http.headers.x` not declared exactly.
func (s *Schema) AddField(field string, typ FieldType) {
	s.s.AddField(field, types.Type(typ))
}

// Router holds the installed matcher rules for one schema.
type Router struct {
	r *rules.Router
}

// NewRouter creates an empty Router over the given Schema.
func NewRouter(s *Schema) *Router {
	if s == nil {
		return nil
	}
	return &Router{r: rules.NewRouter(s.s)}
}

// AddMatcher parses a new ATC rule and installs it under the given
// priority and id. Parse, bind, and duplicate-uuid failures leave the
// router unchanged.
func (r *Router) AddMatcher(priority uint64, id uuid.UUID, atc string) error {
	return r.r.AddMatcher(priority, id, atc)
}

// RemoveMatcher uninstalls the rule under (priority, id), reporting
// whether a removal occurred.
func (r *Router) RemoveMatcher(priority uint64, id uuid.UUID) bool {
	return r.r.RemoveMatcher(priority, id)
}

// Execute evaluates the installed rules against ctx in descending
// priority order. On a match it fills the context's result slot and
// returns true. The context must have been created from the same Schema
// instance as the router.
func (r *Router) Execute(ctx *Context) bool {
	return r.r.Execute(ctx.c)
}

// Fields returns the union of fields referenced by installed rules, in
// lexical order.
func (r *Router) Fields() []string {
	return r.r.Fields()
}

// FieldsWithIndex maps each referenced field to its position in the
// Fields ordering, for index-addressed value pushes on the hot path.
func (r *Router) FieldsWithIndex() map[string]int {
	return r.r.FieldsWithIndex()
}

// EnablePrefilter nominates a String field (typically the URL path) for
// prefix-based candidate elimination. Matching results are identical with
// and without a prefilter; only evaluation cost changes.
func (r *Router) EnablePrefilter(field string) error {
	return r.r.EnablePrefilter(field)
}

// Validate parses and type-checks atc against the schema and returns the
// fields the expression references, without installing anything.
func Validate(s *Schema, atc string) ([]string, error) {
	return rules.Validate(s.s, atc)
}
