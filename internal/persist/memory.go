package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/worldhaven/server/internal/world"
)

// MemStore is an in-memory world.Store. Records pass through a JSON
// round-trip on save and load, so it exercises the same field-name
// stability the Postgres store relies on. Used by tests and available as a
// storage-engine-neutral fallback.
type MemStore struct {
	mu      sync.Mutex
	worlds  map[uuid.UUID][]byte
	players map[uuid.UUID][]byte

	// Optional fault injection for failure-path tests.
	FailSaveWorld   error
	FailDeleteWorld error
	FailSavePlayer  error
}

func NewMemStore() *MemStore {
	return &MemStore{
		worlds:  make(map[uuid.UUID][]byte),
		players: make(map[uuid.UUID][]byte),
	}
}

func (m *MemStore) Worlds(_ context.Context) ([]*world.World, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*world.World, 0, len(m.worlds))
	for id, raw := range m.worlds {
		w := &world.World{}
		if err := json.Unmarshal(raw, w); err != nil {
			return nil, fmt.Errorf("decode world %s: %w", id, err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (m *MemStore) Players(_ context.Context) ([]*world.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*world.Player, 0, len(m.players))
	for id, raw := range m.players {
		p := &world.Player{}
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", id, err)
		}
		if p.Locations == nil {
			p.Locations = make(map[string]world.Location)
		}
		if p.Snapshots == nil {
			p.Snapshots = make(map[string]*world.Snapshot)
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemStore) SaveWorld(_ context.Context, w *world.World) error {
	if m.FailSaveWorld != nil {
		return m.FailSaveWorld
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worlds[w.ID] = raw
	return nil
}

func (m *MemStore) DeleteWorld(_ context.Context, id uuid.UUID) error {
	if m.FailDeleteWorld != nil {
		return m.FailDeleteWorld
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.worlds, id)
	return nil
}

func (m *MemStore) SavePlayer(_ context.Context, p *world.Player) error {
	if m.FailSavePlayer != nil {
		return m.FailSavePlayer
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = raw
	return nil
}

// WorldCount reports stored worlds (test observation point).
func (m *MemStore) WorldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.worlds)
}
