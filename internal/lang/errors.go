package lang

import (
	"fmt"
	"strings"
)

/*
 * Source-located parse errors.
 *
 * The rendered layout is part of the engine contract: control planes parse
 * the caret frame out of returned error text, so Error() must produce it
 * byte-for-byte:
 *
 *  --> <line>:<col>
 *   |
 * <line> | <source-line>
 *   |  <caret-underline>
 *   |
 *   = <reason>
 *
 * Regex compile failures reuse the same frame with the compiler's own
 * message as the reason, the caret pointing at the regex literal.
 */

// ParseError is a syntactic or literal-level failure with caret rendering.
type ParseError struct {
	Line   int    // 1-based source line
	Col    int    // 1-based byte column
	Span   int    // length of the offending span in bytes, minimum 1
	Source string // full line of source text the error occurred on
	Reason string // human-readable cause, including expected symbols
}

// newParseError builds a ParseError from an offset/span into src.
func newParseError(src string, offset, line, col, length int, reason string) *ParseError {
	lineText := sourceLine(src, offset)
	if length < 1 {
		length = 1
	}
	return &ParseError{
		Line:   line,
		Col:    col,
		Span:   length,
		Source: lineText,
		Reason: reason,
	}
}

// sourceLine extracts the line containing offset, without its terminator.
func sourceLine(src string, offset int) string {
	if offset > len(src) {
		offset = len(src)
	}
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := strings.IndexByte(src[start:], '\n')
	if end < 0 {
		return src[start:]
	}
	return src[start : start+end]
}

// Error renders the caret frame. The layout is normative; see the package
// comment above.
func (e *ParseError) Error() string {
	ln := fmt.Sprintf("%d", e.Line)
	pad := strings.Repeat(" ", len(ln))

	span := e.Span
	if span < 1 {
		span = 1
	}
	// The caret may not run past the end of the source line.
	if avail := len(e.Source) - (e.Col - 1); span > avail {
		span = avail
		if span < 1 {
			span = 1
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, " --> %d:%d\n", e.Line, e.Col)
	fmt.Fprintf(&b, "%s |\n", pad)
	fmt.Fprintf(&b, "%s | %s\n", ln, e.Source)
	fmt.Fprintf(&b, "%s | %s%s\n", pad, strings.Repeat(" ", e.Col-1), strings.Repeat("^", span))
	fmt.Fprintf(&b, "%s |\n", pad)
	fmt.Fprintf(&b, "%s = %s", pad, e.Reason)
	return b.String()
}
