// Package codec provides the canonical JSON serialization shared by
// the step log and transaction metadata (spec.md §4.5, §4.6): two
// structurally equal values must always serialize to the same bytes,
// independent of struct field order or map iteration order.
package codec

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Canonical marshals v to JSON, then canonicalizes it per RFC 8785
// (JSON Canonicalization Scheme) so the result is deterministic across
// processes and Go versions.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
