package schema

import (
	"strconv"
	"strings"
	"sync"
)

// matchCache is the process-wide intern table for compiled
// ContentMatch DFAs, keyed by node type name plus the canonical
// rendering of its *resolved* content expression (groups already
// expanded to concrete node types). Two Schema instances that declare
// the same node type with a textually identical content expression —
// and whose groups resolve it the same way — share the compiled
// ContentMatch rather than each paying Thompson construction and
// subset construction again (SPEC_FULL.md SUPPLEMENTED FEATURES,
// "Content expression caching keyed by schema fingerprint", grounded on
// `original_source/crates/model/src/content.rs`'s interned
// ContentMatch table).
//
// Keying on the resolved AST rather than the raw expression string
// guards against two schemas using the same raw text ("a b+") for a
// group reference that expands differently depending on each schema's
// own group membership; the cache can never hand back a DFA compiled
// against the wrong group expansion.
var (
	matchCacheMu sync.Mutex
	matchCache   = map[string]*ContentMatch{}
)

// internContentMatch returns the cached ContentMatch for (nodeType,
// resolved), compiling and storing it on first use.
func internContentMatch(nodeType string, resolved Expr) *ContentMatch {
	key := nodeType + "\x00" + renderExpr(resolved)

	matchCacheMu.Lock()
	defer matchCacheMu.Unlock()
	if cm, ok := matchCache[key]; ok {
		return cm
	}
	cm := buildDFA(buildNFA(resolved))
	matchCache[key] = cm
	return cm
}

// renderExpr produces a canonical, unambiguous string form of a
// resolved content-expression AST (Name/Seq/Choice/Repeat only — groups
// are already expanded by resolveNames, and the internal
// starExpr/optExpr desugaring markers never reach here) for use as a
// cache key.
func renderExpr(e Expr) string {
	var b strings.Builder
	renderExprInto(&b, e)
	return b.String()
}

func renderExprInto(b *strings.Builder, e Expr) {
	switch v := e.(type) {
	case Name:
		b.WriteByte('N')
		b.WriteString(v.Value)
	case Seq:
		b.WriteByte('(')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte('.')
			}
			renderExprInto(b, it)
		}
		b.WriteByte(')')
	case Choice:
		b.WriteByte('[')
		for i, alt := range v.Alts {
			if i > 0 {
				b.WriteByte('|')
			}
			renderExprInto(b, alt)
		}
		b.WriteByte(']')
	case Repeat:
		b.WriteByte('{')
		renderExprInto(b, v.Item)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(v.Min))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(v.Max))
		b.WriteByte('}')
	default:
		b.WriteByte('?')
	}
}
