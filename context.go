package matchbox

import (
	"github.com/solatis/matchbox/internal/rules"
	"github.com/solatis/matchbox/internal/types"
)

// Value is a typed request value to be pushed into a Context. Values are
// built through the typed constructors; the zero Value is a String.
type Value struct {
	v types.Value
}

// StringValue wraps raw bytes as a String value. UTF-8 validity is checked
// when the value is added to a context; embedded NUL bytes are allowed.
func StringValue(b []byte) Value {
	return Value{v: types.StringValue(string(b))}
}

// IntValue wraps a 64-bit signed integer.
func IntValue(i int64) Value {
	return Value{v: types.IntValue(i)}
}

// IPAddrValue parses s as an IPv4 or IPv6 address.
func IPAddrValue(s string) (Value, error) {
	v, err := types.ParseAddrValue(s)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// IPCidrValue parses s in addr/prefix_len form.
func IPCidrValue(s string) (Value, error) {
	v, err := types.ParseCidrValue(s)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// Context is a per-request bag of field values plus a slot for the match
// result. A context is owned by one evaluator at a time and reused across
// requests via Reset.
type Context struct {
	c *rules.Context
}

// NewContext creates a context bound to the given Schema. The schema-equal
// invariant with the executing router is checked by Execute.
func NewContext(s *Schema) *Context {
	return &Context{c: rules.NewContext(s.s)}
}

// NewRouterContext creates a context bound to the router's schema with the
// router's field table installed, enabling AddValueByIndex.
func NewRouterContext(r *Router) *Context {
	ctx := &Context{c: rules.NewContext(r.r.Schema())}
	ctx.c.SetFieldTable(r.Fields())
	return ctx
}

// AddValue appends a value under field. The value's type must match the
// field's declared type; String payloads must be valid UTF-8.
func (c *Context) AddValue(field string, v Value) error {
	return c.c.AddValue(field, v.v)
}

// AddValueByIndex appends a value under the field at the given position of
// the router field table; see NewRouterContext and FieldsWithIndex.
func (c *Context) AddValueByIndex(index int, v Value) error {
	return c.c.AddValueByIndex(index, v.v)
}

// Reset clears all values and the result, keeping allocations and the
// schema binding so the context can serve the next request.
func (c *Context) Reset() {
	c.c.Reset()
}
