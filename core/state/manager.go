package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"kalelend/storage"
)

// Store is the key-value surface the manager reads and writes. Callers hand
// in a storage.Journal so that a failed operation can be discarded as a whole.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Manager encodes platform records as RLP under keccak-hashed keys.
type Manager struct {
	store Store
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) ready() error {
	if m == nil || m.store == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return nil
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if err := m.ready(); err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return m.store.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if err := m.ready(); err != nil {
		return false, err
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.store.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes key. Deleting a missing key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if err := m.ready(); err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.store.Delete(kvKey(key))
}
