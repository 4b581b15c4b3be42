package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBadger  = "badger"
)

// Open selects a backend by name and opens it under dataDir.
func Open(backend, dataDir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return NewMemDB(), nil
	case "", BackendLevelDB:
		return NewLevelDB(filepath.Join(dataDir, "state"))
	case BackendBadger:
		return NewBadgerDB(filepath.Join(dataDir, "badger"))
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
