// Package transaction implements the ordered, composable unit of
// document mutation (spec.md §4.6): a Transaction accumulates Steps
// without applying them, then Commit runs them against a Draft opened
// on its base pool, producing a new Pool and an accumulated Patch log
// or aborting atomically on the first failing Step.
package transaction

import (
	"log/slog"
	"sync/atomic"

	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
	"github.com/moduforge-go/core/pkg/schema"
	"github.com/moduforge-go/core/pkg/step"
)

// Provenance meta keys a dispatching runtime is expected to set before
// submitting a Transaction, mirroring the convention
// `runtime.rs`'s transaction dispatch path follows (always stamping a
// timestamp and an origin ahead of every dispatch): MetaTime holds a
// Unix-millisecond model.Int, MetaOrigin a model.String naming the
// caller that produced the transaction (a command name, a plugin key
// id, "remote", etc). The core itself never reads or requires these —
// it only documents them — so append-transaction hooks that want to
// rely on "every transaction has a time and an origin" can, as long as
// every dispatch path in the embedding application honors the
// convention; Transaction.Meta/GetMeta carry them like any other
// out-of-band annotation (spec.md §4.6 meta, §3 SUPPLEMENTED FEATURES
// "Transaction setTime/provenance metadata convention").
const (
	MetaTime   = "time"
	MetaOrigin = "origin"
)

// idCounter is the process-global monotonic source of Transaction ids
// (spec.md §3 Transaction.id: "u64"), mirroring the identifier
// service's lock-free counter design (spec.md §4.1) at the
// transaction layer.
var idCounter uint64

// NextID returns the next process-unique transaction id. Exposed so
// the state reducer (which owns Transaction construction via
// State.Tr) does not need its own counter.
func NextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// Transaction is an ordered list of Steps plus out-of-band metadata
// and stored marks; Commit applies all steps in order against a Draft
// (spec.md §3 Transaction, §4.6).
type Transaction struct {
	id       uint64
	schema   *schema.Schema
	baseDoc  *model.Pool
	draft    *draft.Draft
	steps    []step.Step
	meta     map[string]model.Value
	stored   []model.Mark
	hasStoredMarks bool
	committed bool
	doc      *model.Pool
	patches  []patch.Patch
}

// New opens a Transaction over pool, compiled against sc (sc may be
// nil for schema-less use, in which case Step.Apply skips content
// validation). id is normally obtained from NextID; a reducer that
// re-derives a transaction (e.g. an append-transaction hook building a
// follow-up) may supply its own.
func New(pool *model.Pool, sc *schema.Schema, id uint64) *Transaction {
	return &Transaction{
		id:      id,
		schema:  sc,
		baseDoc: pool,
		draft:   draft.Open(pool),
		meta:    make(map[string]model.Value),
		doc:     pool,
	}
}

// ID returns the transaction's process-unique id.
func (t *Transaction) ID() uint64 { return t.id }

// BaseDoc returns the pool the transaction was opened against.
func (t *Transaction) BaseDoc() *model.Pool { return t.baseDoc }

// Step pushes a step onto the ordered list; it does not apply it yet
// (spec.md §4.6 step). Returns the receiver for chaining.
func (t *Transaction) Step(s step.Step) *Transaction {
	t.steps = append(t.steps, s)
	return t
}

// Steps returns the accumulated steps, in order. Callers must not
// mutate the returned slice.
func (t *Transaction) Steps() []step.Step { return t.steps }

// Meta sets an out-of-band annotation (spec.md §4.6 meta). Returns the
// receiver for chaining.
func (t *Transaction) Meta(key string, value model.Value) *Transaction {
	t.meta[key] = value
	return t
}

// GetMeta returns the value stored under key, and whether it is
// present (spec.md §4.6 get_meta).
func (t *Transaction) GetMeta(key string) (model.Value, bool) {
	v, ok := t.meta[key]
	return v, ok
}

// SetProvenance stamps the MetaTime/MetaOrigin convention: unixMillis
// as a model.Int under MetaTime, origin as a model.String under
// MetaOrigin. It is a convenience wrapper over Meta for dispatching
// runtimes that follow the convention documented above it; the core
// never calls this itself. Returns the receiver for chaining.
func (t *Transaction) SetProvenance(unixMillis int64, origin string) *Transaction {
	t.Meta(MetaTime, model.Int(unixMillis))
	t.Meta(MetaOrigin, model.String(origin))
	return t
}

// MetaKeys returns every meta key currently set, in unspecified order.
func (t *Transaction) MetaKeys() []string {
	out := make([]string, 0, len(t.meta))
	for k := range t.meta {
		out = append(out, k)
	}
	return out
}

// StoredMarks overrides the stored-mark set for downstream consumers
// (spec.md §4.6 stored_marks). Returns the receiver for chaining.
func (t *Transaction) StoredMarks(marks []model.Mark) *Transaction {
	t.stored = append([]model.Mark{}, marks...)
	t.hasStoredMarks = true
	return t
}

// GetStoredMarks returns the transaction's stored marks, and whether
// StoredMarks was ever called.
func (t *Transaction) GetStoredMarks() ([]model.Mark, bool) {
	return t.stored, t.hasStoredMarks
}

// Doc returns the pool as of the last commit; before commit, it is
// the base pool (spec.md §4.6 doc).
func (t *Transaction) Doc() *model.Pool { return t.doc }

// Committed reports whether Commit has already run (successfully or
// not) on this transaction.
func (t *Transaction) Committed() bool { return t.committed }

// Patches returns the patches accumulated by the last successful
// Commit. Empty before commit or after a failed commit.
func (t *Transaction) Patches() []patch.Patch { return t.patches }

// Commit applies each step to the draft in order; on the first
// step-level failure the transaction is aborted and the draft
// discarded, leaving Doc() equal to BaseDoc() (spec.md §4.6 commit,
// §8 "Transaction atomicity"). A transaction may be committed at most
// once.
func (t *Transaction) Commit() error {
	if t.committed {
		return ErrAlreadyCommitted
	}
	t.committed = true

	for i, s := range t.steps {
		if err := s.Apply(t.draft, t.schema); err != nil {
			slog.Warn("transaction: step failed, aborting commit",
				"transaction_id", t.id, "step_index", i, "step_name", s.Name(), "error", err)
			return err
		}
	}

	pool, patches, err := t.draft.Commit()
	if err != nil {
		slog.Warn("transaction: draft commit failed", "transaction_id", t.id, "error", err)
		return err
	}
	t.doc = pool
	t.patches = patches
	return nil
}
