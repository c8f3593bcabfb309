package state

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/transaction"
)

// PluginError wraps an error raised by a plugin's filter or
// append-transaction hook, or by a StateField, surfaced as transaction
// failure (spec.md §7 PluginError).
type PluginError struct {
	PluginID string
	Hook     string
	Err      error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("state: plugin %q %s: %v", e.PluginID, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// seenEntry tracks, per plugin index, the state as of the last time
// its append_transaction hook ran and how many transactions it has
// already been offered — the `seen` table of spec.md §4.7.3's pseudocode.
type seenEntry struct {
	state *State
	n     int
}

// Apply filters root, applies it, then iterates plugin
// append-transaction hooks to a fixed point (spec.md §4.7). It returns
// the resulting State (unchanged from the receiver if root was
// rejected by a filter) and the full ordered list of transactions that
// were actually applied, including root and any appended ones.
//
// If any plugin's filter rejects root, Apply returns (s, []*transaction.Transaction{root}, nil):
// the original State and the single filtered transaction, never a
// partially mutated State (spec.md §7 "User-visible behavior").
//
// An error from a plugin hook or state field aborts the whole call;
// the state computed before the failing hook is discarded and s
// remains the last known-good value a caller should keep using
// (spec.md §7 "Errors from plugin hooks abort the fixed-point loop").
func (s *State) Apply(ctx context.Context, root *transaction.Transaction) (*State, []*transaction.Transaction, error) {
	provider := s.config.Observability
	var endSpan func(int, error)
	if provider != nil {
		ctx, endSpan = provider.StartApplySpan(ctx, root.ID())
	}

	result, trs, err := s.apply(ctx, root)
	if endSpan != nil {
		n := 0
		if trs != nil {
			n = len(trs)
		}
		endSpan(n, err)
	}
	return result, trs, err
}

func (s *State) apply(ctx context.Context, root *transaction.Transaction) (*State, []*transaction.Transaction, error) {
	ok, err := s.filterTransaction(ctx, root, -1)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		slog.Debug("state: transaction rejected by filter", "transaction_id", root.ID())
		return s, []*transaction.Transaction{root}, nil
	}

	current, err := s.applyInner(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	trs := []*transaction.Transaction{root}
	plugins := s.config.Plugins()
	seen := make([]*seenEntry, len(plugins))

	for {
		haveNew := false
		for i, p := range plugins {
			if p.AppendTransaction == nil {
				continue
			}
			n := 0
			oldState := s
			if seen[i] != nil {
				n = seen[i].n
				oldState = seen[i].state
			}
			if n >= len(trs) {
				continue
			}

			tr, err := p.AppendTransaction(ctx, trs[n:], oldState, current)
			if provider != nil {
				provider.RecordHookInvocation(ctx, p.Key.ID, "append_transaction", err)
			}
			if err != nil {
				slog.Warn("state: plugin append_transaction hook failed", "plugin_id", p.Key.ID, "error", err)
				return nil, nil, &PluginError{PluginID: p.Key.ID, Hook: "append_transaction", Err: err}
			}

			if tr != nil {
				accept, ferr := current.filterTransaction(ctx, tr, i)
				if ferr != nil {
					return nil, nil, ferr
				}
				if accept {
					tr.Meta("appendedTransaction", rootMarker(root))
					if seen[i] == nil {
						seen[i] = &seenEntry{state: current, n: len(trs)}
					}
					current, err = current.applyInner(ctx, tr)
					if err != nil {
						return nil, nil, err
					}
					trs = append(trs, tr)
					haveNew = true
				}
			}
			seen[i] = &seenEntry{state: current, n: len(trs)}
		}
		if !haveNew {
			return current, trs, nil
		}
	}
}

// rootMarker produces the AttributeValue stored under the
// "appendedTransaction" meta key: the originating transaction's id,
// since a model.Value cannot hold a *transaction.Transaction directly
// (spec.md §4.7.3 pseudocode: `tr'.meta["appendedTransaction"] :=
// root_tr`).
func rootMarker(root *transaction.Transaction) model.Value {
	return model.Int(int64(root.ID()))
}

// filterTransaction runs every plugin's optional filter hook against
// tr and s in priority order, skipping the plugin at index ignore if
// ignore >= 0 (spec.md §4.7.2). It returns false on the first
// rejection.
func (s *State) filterTransaction(ctx context.Context, tr *transaction.Transaction, ignore int) (bool, error) {
	provider := s.config.Observability
	for i, p := range s.config.Plugins() {
		if i == ignore || p.Filter == nil {
			continue
		}
		ok, err := p.Filter(ctx, tr, s)
		if provider != nil {
			provider.RecordHookInvocation(ctx, p.Key.ID, "filter", err)
		}
		if err != nil {
			slog.Warn("state: plugin filter hook failed", "plugin_id", p.Key.ID, "error", err)
			return false, &PluginError{PluginID: p.Key.ID, Hook: "filter", Err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// applyInner builds a new State sharing config but swapping pool for
// tr.Doc(), then invokes every plugin's state field in priority order
// (spec.md §4.7.3 apply_inner). tr is committed here if it has not
// already been (a root transaction submitted via State.Apply is
// expected to arrive uncommitted; an appended transaction built
// internally by this package follows the same contract).
func (s *State) applyInner(ctx context.Context, tr *transaction.Transaction) (*State, error) {
	if !tr.Committed() {
		if err := tr.Commit(); err != nil {
			return nil, err
		}
	}

	provider := s.config.Observability
	if provider != nil {
		for _, st := range tr.Steps() {
			provider.RecordStepApplied(ctx, st.Name())
		}
	}

	next := &State{
		config:    s.config,
		resources: make(map[string]Resource, len(s.resources)),
		pool:      tr.Doc(),
		version:   nextVersion(),
	}
	for _, p := range s.config.Plugins() {
		if p.StateField == nil {
			continue
		}
		old := s.resources[p.Key.ID]
		r, err := p.StateField.Apply(ctx, tr, old, s, next)
		if err != nil {
			slog.Warn("state: plugin state field apply failed", "plugin_id", p.Key.ID, "error", err)
			return nil, &PluginError{PluginID: p.Key.ID, Hook: "state_field.apply", Err: err}
		}
		next.resources[p.Key.ID] = r
	}
	return next, nil
}
