package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Error is the error type raised by schema construction: an invalid
// content expression, an unresolved node/mark reference, or a
// duplicate declaration (spec.md §4.2.4, §7 SchemaError). It is always
// fatal at construction and is never caught internally.
type Error struct {
	Message        string
	Expression     string
	TokenIndex     int
	Context        []string // up to 3 tokens around TokenIndex
	AvailableTypes []string // up to 5 node-type names, sorted
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("schema: ")
	b.WriteString(e.Message)
	if e.Expression != "" {
		fmt.Fprintf(&b, " (expr %q, token %d", e.Expression, e.TokenIndex)
		if len(e.Context) > 0 {
			fmt.Fprintf(&b, ", near %q", strings.Join(e.Context, " "))
		}
		b.WriteString(")")
	}
	if len(e.AvailableTypes) > 0 {
		fmt.Fprintf(&b, "; available types: %s", strings.Join(e.AvailableTypes, ", "))
	}
	return b.String()
}

// newExprError builds an Error pinned to a token position within a
// tokenized expression, including a 3-token context window and up to 5
// available node-type names (spec.md §4.2.4).
func newExprError(message, expression string, toks []token, pos int, available map[string]struct{}) *Error {
	ctx := contextWindow(toks, pos)
	names := make([]string, 0, len(available))
	for n := range available {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) > 5 {
		names = names[:5]
	}
	return &Error{
		Message:        message,
		Expression:     expression,
		TokenIndex:     pos,
		Context:        ctx,
		AvailableTypes: names,
	}
}

// contextWindow returns up to 3 tokens centered on pos: the token
// before, the token at pos, and the token after, skipping any that
// fall outside the token stream.
func contextWindow(toks []token, pos int) []string {
	lo := pos - 1
	if lo < 0 {
		lo = 0
	}
	hi := pos + 1
	if hi > len(toks)-1 {
		hi = len(toks) - 1
	}
	var out []string
	for i := lo; i <= hi && i < len(toks); i++ {
		out = append(out, toks[i].text)
	}
	return out
}
