// Package history implements the finite ring buffer of past published
// States a host uses for undo/redo/jump (spec.md §2 item 14, §4.8). It
// only ever holds references to States the state reducer already
// produced; it never re-runs plugins to reconstruct one.
package history

import (
	"log/slog"

	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/state"
)

// Entry is one ring slot: the published State plus a human-readable
// description and arbitrary metadata (spec.md §3 HistoryEntry).
type Entry struct {
	State       *state.State
	Description string
	Meta        map[string]model.Value
}

// Manager is a fixed-capacity ring buffer of Entry values with a
// cursor marking "present" (spec.md §3 History manager, §4.8).
// Entries past the cursor represent undone states still available for
// redo, until the next Insert discards them.
type Manager struct {
	entries []Entry
	cursor  int // index of the present entry within entries; -1 if empty
	maxLen  int
}

// New creates a Manager with room for at most maxLen entries. maxLen
// must be at least 1.
func New(maxLen int) *Manager {
	if maxLen < 1 {
		maxLen = 1
	}
	return &Manager{cursor: -1, maxLen: maxLen}
}

// Len reports the number of entries currently held.
func (m *Manager) Len() int { return len(m.entries) }

// Cursor returns the index of the present entry, or -1 if the manager
// is empty.
func (m *Manager) Cursor() int { return m.cursor }

// Current returns the entry at the cursor, if any.
func (m *Manager) Current() (Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return Entry{}, false
	}
	return m.entries[m.cursor], true
}

// Insert truncates anything past the cursor and appends e, evicting
// the oldest entry once the ring is at capacity (spec.md §4.8
// "insert(entry) truncates anything past the cursor and appends,
// evicting the oldest when full").
func (m *Manager) Insert(e Entry) {
	if dropped := len(m.entries) - (m.cursor + 1); dropped > 0 {
		slog.Debug("history: truncating redo entries", "dropped", dropped, "description", e.Description)
	}
	m.entries = m.entries[:m.cursor+1]
	m.entries = append(m.entries, e)
	if len(m.entries) > m.maxLen {
		evicted := len(m.entries) - m.maxLen
		slog.Debug("history: evicting oldest entries", "count", evicted, "max_len", m.maxLen)
		m.entries = m.entries[evicted:]
	}
	m.cursor = len(m.entries) - 1
}

// Jump moves the cursor by n entries (negative moves toward the past,
// positive toward entries already undone) and returns the entry
// landed on (spec.md §4.8 jump). No clamping is done: ok is
// false if the manager is empty or the requested move would leave the
// valid range entirely (the cursor is left unchanged in that case).
func (m *Manager) Jump(n int) (Entry, bool) {
	if len(m.entries) == 0 {
		return Entry{}, false
	}
	target := m.cursor + n
	if target < 0 || target >= len(m.entries) {
		return Entry{}, false
	}
	m.cursor = target
	return m.entries[m.cursor], true
}

// Undo moves the cursor back one entry (spec.md §8 scenario 5).
func (m *Manager) Undo() (Entry, bool) { return m.Jump(-1) }

// Redo moves the cursor forward one entry.
func (m *Manager) Redo() (Entry, bool) { return m.Jump(1) }

// CanUndo reports whether Undo would succeed.
func (m *Manager) CanUndo() bool { return m.cursor > 0 }

// CanRedo reports whether Redo would succeed.
func (m *Manager) CanRedo() bool { return m.cursor >= 0 && m.cursor < len(m.entries)-1 }
