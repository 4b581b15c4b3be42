package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// This allows the pool to run on any database backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// Iterate visits every key starting with prefix in ascending byte order.
	// Returning false from fn stops the iteration early.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
	// Write applies all puts and deletes in the batch atomically.
	Write(batch *Batch) error
	Close() error
}

// BatchOp is a single mutation recorded in a Batch. A nil Value marks a delete.
type BatchOp struct {
	Key   []byte
	Value []byte
}

// Batch collects mutations that are applied together by Database.Write.
type Batch struct {
	ops []BatchOp
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Put records a write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, BatchOp{Key: append([]byte(nil), key...), Value: append([]byte{}, value...)})
}

// Delete records a removal.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, BatchOp{Key: append([]byte(nil), key...)})
}

// Len returns the number of recorded mutations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Ops exposes the recorded mutations in insertion order.
func (b *Batch) Ops() []BatchOp {
	if b == nil {
		return nil
	}
	return b.ops
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	db.mu.RLock()
	keys := make([]string, 0)
	for k := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), db.data[k]...)
	}
	db.mu.RUnlock()

	for i, k := range keys {
		if !fn([]byte(k), values[i]) {
			return nil
		}
	}
	return nil
}

func (db *MemDB) Write(batch *Batch) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range batch.Ops() {
		if op.Value == nil {
			delete(db.data, string(op.Key))
			continue
		}
		db.data[string(op.Key)] = append([]byte(nil), op.Value...)
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	// Nothing to close for an in-memory database.
	return nil
}
