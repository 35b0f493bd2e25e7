// Package rules implements the matchbox router: matcher storage, the
// per-request evaluation context, and expression evaluation.
package rules

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Evaluation context and match result.
 *
 * A Context is the per-request value bag: field -> list of typed values
 * (repeated headers produce multiple values under one field). It is owned
 * by exactly one evaluator at a time and reused across requests via Reset,
 * which truncates value lists without releasing their backing arrays.
 *
 * The Match slot is overwritten by each successful Execute and records,
 * per field matched on the winning path by ==, ^=, =^ or ~, the value that
 * decided the match (the rule literal, or the regex match text) plus any
 * regex captures.
 */

// Match is the outcome of a successful router execution.
type Match struct {
	UUID uuid.UUID

	// Matches maps field name to the value that produced the match: the
	// RHS literal for ==, ^= and =^, the full match text for ~.
	Matches map[string]types.Value

	// Captures holds regex captures by group name and by stringified
	// 1-based group index.
	Captures map[string]string
}

func newMatch() *Match {
	return &Match{
		Matches:  make(map[string]types.Value),
		Captures: make(map[string]string),
	}
}

// Context is a per-request bag of field values plus a result slot.
type Context struct {
	schema *types.Schema
	values map[string][]types.Value
	fields []string // optional index-addressing table

	// Result holds the outcome of the last successful Execute, nil before
	// the first success and after Reset.
	Result *Match
}

// NewContext creates a context bound to schema. The context must not
// outlive the schema and may only execute against routers built from the
// same schema instance.
func NewContext(schema *types.Schema) *Context {
	return &Context{
		schema: schema,
		values: make(map[string][]types.Value),
	}
}

// Schema returns the schema the context is bound to.
func (c *Context) Schema() *types.Schema {
	return c.schema
}

// SetFieldTable installs the field list that AddValueByIndex addresses
// into. Callers obtain it from Router.Fields.
func (c *Context) SetFieldTable(fields []string) {
	c.fields = fields
}

// AddValue appends value under field. The value tag must equal the field's
// declared type; String payloads are validated as UTF-8, with embedded NUL
// allowed.
func (c *Context) AddValue(field string, v types.Value) error {
	typ, ok := c.schema.TypeOf(field)
	if !ok {
		return &types.UnknownFieldError{Field: field}
	}
	if v.Type == types.TypeRegex {
		return fmt.Errorf("Regex values cannot be provided in a context")
	}
	if v.Type != typ {
		return fmt.Errorf("value type %s does not match field type %s", v.Type, typ)
	}
	if v.Type == types.TypeString {
		if err := types.ValidateUTF8([]byte(v.Str)); err != nil {
			return err
		}
	}

	c.values[field] = append(c.values[field], v)
	return nil
}

// AddValueByIndex appends value under the field at position index of the
// installed field table.
func (c *Context) AddValueByIndex(index int, v types.Value) error {
	if index < 0 || index >= len(c.fields) {
		return fmt.Errorf("field index %d out of range", index)
	}
	return c.AddValue(c.fields[index], v)
}

// ValuesOf returns the value list for field, nil when absent.
func (c *Context) ValuesOf(field string) []types.Value {
	return c.values[field]
}

// Reset clears all values and the result while keeping allocations for
// reuse across requests. The schema binding is preserved.
func (c *Context) Reset() {
	for k, vs := range c.values {
		c.values[k] = vs[:0]
	}
	c.Result = nil
}
