package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for matchbox operations. The literal texts of
// ErrTypeMismatch and ErrInNotInIPOnly are part of the validation contract;
// embedders match on them.
var (
	// ErrTypeMismatch indicates a predicate whose LHS field type and RHS
	// literal type cannot be combined under the requested operator.
	ErrTypeMismatch = errors.New("Type mismatch between the LHS and RHS values of predicate")

	// ErrInNotInIPOnly indicates `in`/`not in` applied to anything other
	// than an IpAddr field against an IpCidr literal.
	ErrInNotInIPOnly = errors.New("In/NotIn operators only supports IP in CIDR")

	// ErrDuplicateUUID indicates AddMatcher with a UUID already installed.
	ErrDuplicateUUID = errors.New("UUID already exists")
)

// UnknownFieldError marks a reference to a field the schema does not declare,
// after wildcard fallback.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("Unknown field: %s", e.Field)
}

// ValidateUTF8 checks that b is well-formed UTF-8. Embedded NUL bytes are
// allowed. On failure the error text mirrors the conventional
// "invalid utf-8 sequence of N bytes from index K" rendering, with a
// dedicated message for a sequence truncated at the end of input.
func ValidateUTF8(b []byte) error {
	i := 0
	for i < len(b) {
		c := b[i]
		if c < 0x80 {
			i++
			continue
		}

		var size int
		var min, max rune
		switch {
		case c&0xE0 == 0xC0:
			size, min, max = 2, 0x80, 0x7FF
		case c&0xF0 == 0xE0:
			size, min, max = 3, 0x800, 0xFFFF
		case c&0xF8 == 0xF0:
			size, min, max = 4, 0x10000, 0x10FFFF
		default:
			// Stray continuation byte or invalid lead (0xF8..0xFF).
			return invalidSequence(1, i)
		}

		if i+size > len(b) {
			// Valid lead but the input ends mid-sequence.
			for j := i + 1; j < len(b); j++ {
				if b[j]&0xC0 != 0x80 {
					return invalidSequence(j-i, i)
				}
			}
			return fmt.Errorf("incomplete utf-8 byte sequence from index %d", i)
		}

		r := rune(c & (0xFF >> (size + 1)))
		for j := 1; j < size; j++ {
			cc := b[i+j]
			if cc&0xC0 != 0x80 {
				return invalidSequence(j, i)
			}
			r = r<<6 | rune(cc&0x3F)
		}

		// Overlong encodings and surrogate halves are rejected with the
		// lead byte reported as the invalid unit.
		if r < min || r > max || (r >= 0xD800 && r <= 0xDFFF) {
			return invalidSequence(1, i)
		}
		i += size
	}
	return nil
}

func invalidSequence(n, idx int) error {
	return fmt.Errorf("invalid utf-8 sequence of %d bytes from index %d", n, idx)
}
