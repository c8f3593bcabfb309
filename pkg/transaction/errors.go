package transaction

import "errors"

// ErrAlreadyCommitted is returned by Commit when called on a
// Transaction that has already been committed (spec.md §4.6: "A
// transaction may be committed at most once; calling commit twice is
// an error").
var ErrAlreadyCommitted = errors.New("transaction: already committed")
