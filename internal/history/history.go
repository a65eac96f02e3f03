// Package history answers questions about past state values.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/types"
)

// Entry is one recorded value.
type Entry struct {
	Ts  time.Time `json:"ts"`
	Val float64   `json:"val"`
}

// Querier is implemented by the in-memory history and the TimescaleDB engine.
type Querier interface {
	// NewestBetween returns the most recent entry with from <= ts <= to, or
	// nil when there is none.
	NewestBetween(ctx context.Context, id string, from, to time.Time) (*Entry, error)
	// Latest returns up to n entries, newest first.
	Latest(ctx context.Context, id string, n int) ([]Entry, error)
}

// Memory keeps the most recent numeric values of every state in a ring
// per id. It is registered as a state recorder, so a value is queryable as
// soon as the write that produced it returns.
type Memory struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

type ring struct {
	entries []Entry
	next    int
	full    bool
}

// NewMemory keeps up to size entries per state.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1000
	}
	return &Memory{size: size, rings: make(map[string]*ring)}
}

// Record implements state.Recorder. Non-numeric values are ignored.
func (m *Memory) Record(st types.State) {
	v, ok := types.Float(st.Val)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rings[st.ID]
	if !ok {
		r = &ring{entries: make([]Entry, m.size)}
		m.rings[st.ID] = r
	}
	r.entries[r.next] = Entry{Ts: st.Ts, Val: v}
	r.next = (r.next + 1) % m.size
	if r.next == 0 {
		r.full = true
	}
}

// newestFirst walks the ring from the most recent entry backwards.
func (m *Memory) newestFirst(id string, fn func(Entry) bool) {
	r, ok := m.rings[id]
	if !ok {
		return
	}
	n := r.next
	if r.full {
		n = m.size
	}
	for i := 1; i <= n; i++ {
		idx := (r.next - i + m.size) % m.size
		if !fn(r.entries[idx]) {
			return
		}
	}
}

func (m *Memory) NewestBetween(_ context.Context, id string, from, to time.Time) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Entry
	m.newestFirst(id, func(e Entry) bool {
		if !e.Ts.Before(from) && !e.Ts.After(to) {
			found = &e
			return false
		}
		return true
	})
	return found, nil
}

func (m *Memory) Latest(_ context.Context, id string, n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, n)
	m.newestFirst(id, func(e Entry) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, e)
		return true
	})
	return out, nil
}
