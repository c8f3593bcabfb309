package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/moduforge-go/core/pkg/codec"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/step"
	"github.com/moduforge-go/core/pkg/transaction"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasmPlugin hosts a Plugin's filter and append-transaction hooks as a
// sandboxed WASM guest module (SPEC_FULL.md DOMAIN STACK item 5): the
// guest receives the candidate transaction and pool as canonical JCS
// bytes on stdin and returns its decision as JSON on stdout, the same
// stdin/stdout bridging the teacher's WASI sandbox uses for untrusted
// pack execution, deny-by-default (no filesystem, no network, no
// ambient authority).
type WasmPlugin struct {
	key      Key
	priority int32

	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// NewWasmPlugin compiles wasmBytes once and returns a WasmPlugin ready
// to be turned into a Plugin via Plugin(). The guest module must
// export "_start" and communicate purely over stdin/stdout; it gets no
// other host capability.
func NewWasmPlugin(ctx context.Context, key Key, priority int32, wasmBytes []byte) (*WasmPlugin, error) {
	r := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("state: wasm plugin %q: instantiate wasi: %w", key.ID, err)
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("state: wasm plugin %q: compile: %w", key.ID, err)
	}

	return &WasmPlugin{key: key, priority: priority, runtime: r, compiled: compiled}, nil
}

// Close shuts down the plugin's wazero runtime.
func (w *WasmPlugin) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

// Plugin returns the Plugin value the state reducer consults: its
// Filter and AppendTransaction hooks delegate to the WASM guest.
func (w *WasmPlugin) Plugin() *Plugin {
	return &Plugin{
		Key:               w.key,
		Priority:          w.priority,
		Filter:            w.filter,
		AppendTransaction: w.appendTransaction,
	}
}

// wasmFilterRequest is the JCS-encoded stdin payload for a filter
// hook invocation.
type wasmFilterRequest struct {
	TransactionID uint64                  `json:"transaction_id"`
	Meta          map[string]model.Value  `json:"meta"`
	Pool          []model.Node            `json:"pool"`
	RootID        ids.NodeId              `json:"root_id"`
}

type wasmFilterResponse struct {
	Accept bool `json:"accept"`
}

func (w *WasmPlugin) filter(ctx context.Context, tr *transaction.Transaction, st *State) (bool, error) {
	meta := make(map[string]model.Value, len(tr.MetaKeys()))
	for _, k := range tr.MetaKeys() {
		v, _ := tr.GetMeta(k)
		meta[k] = v
	}
	req := wasmFilterRequest{
		TransactionID: tr.ID(),
		Meta:          meta,
		Pool:          flattenPool(st.Pool()),
		RootID:        st.Pool().RootID(),
	}
	input, err := codec.Canonical(req)
	if err != nil {
		return false, fmt.Errorf("state: wasm plugin %q: encode filter request: %w", w.key.ID, err)
	}

	out, err := w.run(ctx, input)
	if err != nil {
		return false, err
	}
	var resp wasmFilterResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return false, fmt.Errorf("state: wasm plugin %q: decode filter response: %w", w.key.ID, err)
	}
	return resp.Accept, nil
}

// wasmStepDirective is the limited vocabulary of steps a WASM guest
// may contribute via an append-transaction descriptor: an attribute
// merge or a mark mutation, the two mutation kinds expressible without
// the guest needing to allocate fresh node ids itself.
type wasmStepDirective struct {
	Kind   string                  `json:"kind"` // "attr" | "add_mark" | "remove_mark"
	NodeID ids.NodeId              `json:"id"`
	Values map[string]model.Value  `json:"values,omitempty"`
	Marks  []model.Mark            `json:"marks,omitempty"`
}

type wasmAppendResponse struct {
	Append bool                `json:"append"`
	Meta   map[string]model.Value `json:"meta,omitempty"`
	Steps  []wasmStepDirective `json:"steps,omitempty"`
}

func (w *WasmPlugin) appendTransaction(ctx context.Context, trs []*transaction.Transaction, oldState, newState *State) (*transaction.Transaction, error) {
	txnIDs := make([]uint64, len(trs))
	for i, tr := range trs {
		txnIDs[i] = tr.ID()
	}
	req := struct {
		TransactionIDs []uint64     `json:"transaction_ids"`
		Pool           []model.Node `json:"pool"`
		RootID         ids.NodeId   `json:"root_id"`
	}{TransactionIDs: txnIDs, Pool: flattenPool(newState.Pool()), RootID: newState.Pool().RootID()}
	input, err := codec.Canonical(req)
	if err != nil {
		return nil, fmt.Errorf("state: wasm plugin %q: encode append request: %w", w.key.ID, err)
	}

	out, err := w.run(ctx, input)
	if err != nil {
		return nil, err
	}
	var resp wasmAppendResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("state: wasm plugin %q: decode append response: %w", w.key.ID, err)
	}
	if !resp.Append {
		return nil, nil
	}

	tr := newState.Tr()
	for _, d := range resp.Steps {
		switch d.Kind {
		case "attr":
			tr.Step(step.AttrStep{NodeID: d.NodeID, Values: d.Values})
		case "add_mark":
			tr.Step(step.AddMarkStep{NodeID: d.NodeID, Marks: d.Marks})
		case "remove_mark":
			tr.Step(step.RemoveMarkStep{NodeID: d.NodeID, MarkTypes: markTypesOf(d.Marks)})
		default:
			return nil, fmt.Errorf("state: wasm plugin %q: unknown step directive %q", w.key.ID, d.Kind)
		}
	}
	for k, v := range resp.Meta {
		tr.Meta(k, v)
	}
	return tr, nil
}

func markTypesOf(marks []model.Mark) []string {
	out := make([]string, len(marks))
	for i, m := range marks {
		out[i] = m.Type
	}
	return out
}

func flattenPool(p *model.Pool) []model.Node {
	nodeIDs := p.NodeIDs()
	out := make([]model.Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		n, _ := p.Node(id)
		out = append(out, n)
	}
	return out
}

// run instantiates a fresh module from the pre-compiled code with
// input wired to stdin and captures stdout, mirroring the teacher's
// WASISandbox.Run: no filesystem, no network, no environment leaked
// to the guest.
func (w *WasmPlugin) run(ctx context.Context, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, modCfg)
	if err != nil {
		return nil, fmt.Errorf("state: wasm plugin %q: instantiate: %w", w.key.ID, err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return nil, fmt.Errorf("state: wasm plugin %q: guest stderr: %s", w.key.ID, stderr.String())
	}
	return stdout.Bytes(), nil
}
