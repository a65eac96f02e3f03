package state

import (
	"context"
	"sort"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/patrickmn/go-cache"
)

// MemoryBackend keeps states in process memory. Values are lost on restart.
type MemoryBackend struct {
	c *cache.Cache
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{c: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryBackend) Get(_ context.Context, id string) (*types.State, error) {
	v, found := m.c.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	st := v.(types.State)
	return &st, nil
}

func (m *MemoryBackend) Put(_ context.Context, st types.State) error {
	m.c.Set(st.ID, st, cache.NoExpiration)
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]types.State, error) {
	items := m.c.Items()
	out := make([]types.State, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(types.State))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryBackend) Close() error {
	m.c.Flush()
	return nil
}
