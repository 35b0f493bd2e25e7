package lang

import (
	"github.com/solatis/matchbox/internal/types"
)

/*
 * Semantic binder.
 *
 * Resolves every LHS field against the schema (wildcard fallback included),
 * applies transform typing, and checks each (lhs_type, op, rhs_type) triple.
 * No evaluation happens here; a bound expression is guaranteed to execute
 * without runtime type errors.
 *
 * Error texts are part of the contract: ErrTypeMismatch, ErrInNotInIPOnly,
 * and UnknownFieldError render the exact strings embedders match on.
 */

// Validate binds expr against schema and returns the set of referenced
// fields. The expression is unchanged; regex literals were already compiled
// by the parser.
func Validate(expr Expression, schema *types.Schema) (map[string]struct{}, error) {
	fields := make(map[string]struct{})
	if err := validate(expr, schema, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func validate(expr Expression, schema *types.Schema, fields map[string]struct{}) error {
	switch n := expr.(type) {
	case *And:
		if err := validate(n.Left, schema, fields); err != nil {
			return err
		}
		return validate(n.Right, schema, fields)
	case *Or:
		if err := validate(n.Left, schema, fields); err != nil {
			return err
		}
		return validate(n.Right, schema, fields)
	case *Not:
		return validate(n.Inner, schema, fields)
	case *Predicate:
		return validatePredicate(n, schema, fields)
	default:
		return types.ErrTypeMismatch
	}
}

func validatePredicate(p *Predicate, schema *types.Schema, fields map[string]struct{}) error {
	lhsType, ok := schema.TypeOf(p.LHS.Field)
	if !ok {
		return &types.UnknownFieldError{Field: p.LHS.Field}
	}

	// Transform typing: lower is String -> String; any aggregates over the
	// value list and leaves the element type unchanged.
	for _, t := range p.LHS.Transforms {
		switch t {
		case TransformLower:
			if lhsType != types.TypeString {
				return types.ErrTypeMismatch
			}
		case TransformAny:
		}
	}

	if err := checkOperandTypes(lhsType, p.Op, p.RHS.Type); err != nil {
		return err
	}

	fields[p.LHS.Field] = struct{}{}
	return nil
}

// checkOperandTypes enforces the operator typing table.
func checkOperandTypes(lhs types.Type, op BinaryOperator, rhs types.Type) error {
	switch op {
	case OpIn, OpNotIn:
		if lhs == types.TypeIpAddr && rhs == types.TypeIpCidr {
			return nil
		}
		return types.ErrInNotInIPOnly
	case OpEquals, OpNotEquals:
		if lhs == rhs && (lhs == types.TypeString || lhs == types.TypeInt || lhs == types.TypeIpAddr) {
			return nil
		}
	case OpRegex:
		if lhs == types.TypeString && rhs == types.TypeRegex {
			return nil
		}
	case OpPrefix, OpPostfix, OpContains:
		if lhs == types.TypeString && rhs == types.TypeString {
			return nil
		}
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		if lhs == types.TypeInt && rhs == types.TypeInt {
			return nil
		}
	}
	return types.ErrTypeMismatch
}
