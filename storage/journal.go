package storage

import (
	"errors"
	"sort"
)

var errJournalClosed = errors.New("storage: journal already committed or discarded")

// Journal buffers writes on top of a Database. Reads observe the buffered
// writes first. Nothing reaches the underlying database until Commit, which
// flushes every change in a single batch. Discard drops the buffer.
//
// A Journal is not safe for concurrent use; callers serialise access.
type Journal struct {
	base   Database
	dirty  map[string][]byte
	gone   map[string]struct{}
	closed bool
}

// NewJournal starts an empty journal over base.
func NewJournal(base Database) *Journal {
	return &Journal{
		base:  base,
		dirty: make(map[string][]byte),
		gone:  make(map[string]struct{}),
	}
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	k := string(key)
	if value, ok := j.dirty[k]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := j.gone[k]; ok {
		return nil, ErrNotFound
	}
	return j.base.Get(key)
}

func (j *Journal) Has(key []byte) (bool, error) {
	k := string(key)
	if _, ok := j.dirty[k]; ok {
		return true, nil
	}
	if _, ok := j.gone[k]; ok {
		return false, nil
	}
	return j.base.Has(key)
}

func (j *Journal) Put(key []byte, value []byte) error {
	if j.closed {
		return errJournalClosed
	}
	k := string(key)
	delete(j.gone, k)
	j.dirty[k] = append([]byte(nil), value...)
	return nil
}

func (j *Journal) Delete(key []byte) error {
	if j.closed {
		return errJournalClosed
	}
	k := string(key)
	delete(j.dirty, k)
	j.gone[k] = struct{}{}
	return nil
}

// Pending reports how many keys carry uncommitted changes.
func (j *Journal) Pending() int {
	return len(j.dirty) + len(j.gone)
}

// Commit writes the buffered changes to the underlying database atomically
// and closes the journal.
func (j *Journal) Commit() error {
	if j.closed {
		return errJournalClosed
	}
	j.closed = true
	if j.Pending() == 0 {
		return nil
	}
	batch := j.base.NewBatch()
	for _, k := range sortedKeys(j.dirty) {
		batch.Put([]byte(k), j.dirty[k])
	}
	for k := range j.gone {
		batch.Delete([]byte(k))
	}
	return batch.Write()
}

// Discard drops every buffered change and closes the journal.
func (j *Journal) Discard() {
	j.closed = true
	j.dirty = make(map[string][]byte)
	j.gone = make(map[string]struct{})
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
