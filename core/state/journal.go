package state

import "fmt"

type journalEntry struct {
	key      string
	prev     []byte
	hadDirty bool
}

// Snapshot returns an identifier for the current overlay revision.
func (m *Manager) Snapshot() int {
	if m == nil {
		return 0
	}
	return len(m.journal)
}

// RevertToSnapshot undoes every write recorded after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if m == nil {
		return
	}
	if id < 0 || id > len(m.journal) {
		panic(fmt.Sprintf("state: invalid snapshot id %d (journal length %d)", id, len(m.journal)))
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadDirty {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Atomic runs fn and reverts every write it made when it returns an error.
func (m *Manager) Atomic(fn func() error) error {
	snap := m.Snapshot()
	if err := fn(); err != nil {
		m.RevertToSnapshot(snap)
		return err
	}
	return nil
}
