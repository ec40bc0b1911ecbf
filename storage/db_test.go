package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	disk, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	mem, err := NewMemLevelDB()
	require.NoError(t, err)
	bolted, err := NewBoltDB(filepath.Join(t.TempDir(), "kalelend.bolt"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		disk.Close()
		mem.Close()
		bolted.Close()
	})
	return map[string]Database{
		"memdb":    NewMemDB(),
		"leveldb":  disk,
		"memlevel": mem,
		"bolt":     bolted,
	}
}

func TestDatabaseRoundTrip(t *testing.T) {
	for name, db := range backends(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)

			ok, err := db.Has([]byte("k"))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Delete([]byte("k")))
			ok, err = db.Has([]byte("k"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestBatchAppliesAllWrites(t *testing.T) {
	for name, db := range backends(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("stale"), []byte("x")))

			batch := db.NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("stale"))
			require.Equal(t, 3, batch.Len())

			_, err := db.Get([]byte("a"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, batch.Write())
			for key, want := range map[string]string{"a": "1", "b": "2"} {
				got, err := db.Get([]byte(key))
				require.NoError(t, err)
				require.Equal(t, want, string(got))
			}
			ok, err := db.Has([]byte("stale"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestBoltDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalelend.bolt")
	db, err := NewBoltDB(path, nil)
	require.NoError(t, err)
	batch := db.NewBatch()
	batch.Put([]byte("platform"), []byte("state"))
	require.NoError(t, batch.Write())
	db.Close()

	db, err = NewBoltDB(path, nil)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get([]byte("platform"))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), got)
}
