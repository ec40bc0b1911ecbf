package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the on-disk record layout. Increment it whenever a
// stored record changes shape.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records the provided schema version in state.
func (m *Manager) SetStateVersion(version uint32) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.KVPut(stateVersionKey, uint64(version))
}

// StateVersion returns the stored schema version and a boolean indicating
// whether the value was present.
func (m *Manager) StateVersion() (uint32, bool, error) {
	if err := m.ready(); err != nil {
		return 0, false, err
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

// EnsureStateVersion stamps an empty store with StateVersion and rejects a
// store written by a different layout unless allowMigrate is set.
func (m *Manager) EnsureStateVersion(allowMigrate bool) error {
	version, ok, err := m.StateVersion()
	if err != nil {
		return err
	}
	if !ok {
		return m.SetStateVersion(StateVersion)
	}
	if version == StateVersion || allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
}

// LastTimestamp returns the timestamp of the last committed operation.
func (m *Manager) LastTimestamp() (uint64, error) {
	var ts uint64
	if _, err := m.KVGet(runtimeLastTimestampKey, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// SetLastTimestamp records the timestamp of the operation being committed.
func (m *Manager) SetLastTimestamp(ts uint64) error {
	return m.KVPut(runtimeLastTimestampKey, ts)
}
