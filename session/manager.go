package session

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Manager hands out one machine per session id, rehydrating from the store
// when a client returns after a restart and falling back to backend history
// replay when the store has nothing.
type Manager struct {
	mu       sync.Mutex
	machines map[string]*Machine
	store    Store
	backend  Backend
	opts     Options
}

func NewManager(store Store, backend Backend, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	return &Manager{
		machines: make(map[string]*Machine),
		store:    store,
		backend:  backend,
		opts:     opts,
	}
}

// Acquire returns the machine for id, minting a fresh session when the id is
// absent or not UUID-shaped. The returned machine is always initialized and
// its identity persisted.
func (mg *Manager) Acquire(ctx context.Context, id string) (*Machine, error) {
	if ValidID(id) {
		mg.mu.Lock()
		if m, ok := mg.machines[id]; ok {
			mg.mu.Unlock()
			return m, nil
		}
		mg.mu.Unlock()

		st, err := mg.store.Load(ctx, id)
		switch {
		case err == nil:
			return mg.remember(Restore(st, mg.backend, mg.opts)), nil
		case errors.Is(err, ErrNotFound):
			m := NewMachine(mg.backend, mg.opts)
			if err := m.Initialize(ctx, id); err != nil {
				return nil, err
			}
			return mg.persistAndRemember(ctx, m), nil
		default:
			return nil, err
		}
	}

	m := NewMachine(mg.backend, mg.opts)
	if err := m.Initialize(ctx, ""); err != nil {
		return nil, err
	}
	return mg.persistAndRemember(ctx, m), nil
}

// Persist writes the machine's current state through the store. Store
// failures are logged, not surfaced: persistence is an optimization, the
// backend history remains the source of truth.
func (mg *Manager) Persist(ctx context.Context, m *Machine) {
	st := m.Snapshot()
	if err := mg.store.Save(ctx, st); err != nil {
		mg.opts.Logger.Printf("persist session %s: %v", st.SessionID, err)
	}
}

// Forget drops the cached machine and its persisted state.
func (mg *Manager) Forget(ctx context.Context, id string) {
	mg.mu.Lock()
	delete(mg.machines, id)
	mg.mu.Unlock()
	if err := mg.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		mg.opts.Logger.Printf("forget session %s: %v", id, err)
	}
}

// Count reports how many machines are live in this process.
func (mg *Manager) Count() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.machines)
}

func (mg *Manager) remember(m *Machine) *Machine {
	id := m.Snapshot().SessionID
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if existing, ok := mg.machines[id]; ok {
		return existing
	}
	mg.machines[id] = m
	return m
}

func (mg *Manager) persistAndRemember(ctx context.Context, m *Machine) *Machine {
	m = mg.remember(m)
	mg.Persist(ctx, m)
	return m
}
