package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"liquidstake/storage"
)

// Manager is the journaled key-value view every module reads and writes
// through. Mutations stay in an in-memory overlay until Commit flushes them to
// the backing database as one atomic batch; Snapshot/RevertToSnapshot undo
// overlay writes so an operation can be rolled back as a unit.
//
// Values are RLP encoded. Keys are stored verbatim so that modules can walk a
// key prefix with KVIterate.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string][]byte)}
}

var errNilManager = errors.New("state: manager unavailable")

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	if value, ok := m.dirty[string(key)]; ok {
		if value == nil {
			return nil, false, nil
		}
		return value, true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) write(key []byte, value []byte) {
	k := string(key)
	prev, had := m.dirty[k]
	m.journal = append(m.journal, journalEntry{key: k, prev: prev, hadDirty: had})
	m.dirty[k] = value
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil {
		return errNilManager
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(key, encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil {
		return false, errNilManager
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.read(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes the key. Deleting an absent key is a no-op.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil {
		return errNilManager
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(key, nil)
	return nil
}

// KVIterate visits every live key under prefix in ascending byte order,
// merging uncommitted writes with the committed database view. The callback
// receives the raw RLP payload; use DecodeValue to decode it. Returning false
// stops the walk.
//
// The callback must not mutate state under the same prefix; collect the keys
// first and mutate afterwards.
func (m *Manager) KVIterate(prefix []byte, fn func(key, raw []byte) bool) error {
	if m == nil {
		return errNilManager
	}
	merged := make(map[string][]byte)
	if err := m.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	for k, v := range m.dirty {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			return nil
		}
	}
	return nil
}

// DecodeValue decodes a raw payload handed out by KVIterate.
func DecodeValue(raw []byte, out interface{}) error {
	return rlp.DecodeBytes(raw, out)
}

// Commit flushes every pending write to the database atomically and clears the
// journal. Outstanding snapshot identifiers become invalid.
func (m *Manager) Commit() error {
	if m == nil {
		return errNilManager
	}
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		if v := m.dirty[k]; v == nil {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), v)
		}
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string][]byte)
	m.journal = m.journal[:0]
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.dirty = make(map[string][]byte)
	m.journal = m.journal[:0]
}

// Pending reports the number of keys with uncommitted writes.
func (m *Manager) Pending() int {
	if m == nil {
		return 0
	}
	return len(m.dirty)
}
