package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the expected on-disk schema layout for the pool
// state. Increment this constant whenever breaking changes are made to the
// stored structure.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")
	codeVersionKey  = []byte("state/code-version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records the provided schema version in state. Callers should
// invoke this after performing any required migrations.
func (m *Manager) SetStateVersion(version uint32) error {
	if m == nil {
		return errNilManager
	}
	return m.KVPut(stateVersionKey, uint64(version))
}

// StateVersion returns the stored schema version and a boolean indicating
// whether the value was present.
func (m *Manager) StateVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, errNilManager
	}
	var stored uint64
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion writes the current schema version on an empty database
// and rejects databases written by an incompatible schema.
func (m *Manager) EnsureStateVersion() error {
	stored, ok, err := m.StateVersion()
	if err != nil {
		return err
	}
	if !ok {
		return m.SetStateVersion(StateVersion)
	}
	if stored != StateVersion {
		return fmt.Errorf("%w: stored %d, binary %d", ErrStateVersionMismatch, stored, StateVersion)
	}
	return nil
}

// CodeVersion returns the binary version that last ran against this state.
func (m *Manager) CodeVersion() (string, error) {
	var stored string
	if _, err := m.KVGet(codeVersionKey, &stored); err != nil {
		return "", err
	}
	return stored, nil
}

// SetCodeVersion records the binary version running against this state.
func (m *Manager) SetCodeVersion(version string) error {
	return m.KVPut(codeVersionKey, version)
}
