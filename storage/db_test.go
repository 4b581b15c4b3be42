package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	level, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	badgerDB, err := NewBadgerDB("")
	require.NoError(t, err)
	dbs := map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"badger":  badgerDB,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	})
	return dbs
}

func TestDatabaseGetPutDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)

			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDatabaseIteratePrefixOrdered(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
			require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
			require.NoError(t, db.Put([]byte("b/1"), []byte("other")))

			var keys []string
			require.NoError(t, db.Iterate([]byte("a/"), func(key, _ []byte) bool {
				keys = append(keys, string(key))
				return true
			}))
			require.Equal(t, []string{"a/1", "a/2"}, keys)

			var first []string
			require.NoError(t, db.Iterate([]byte("a/"), func(key, _ []byte) bool {
				first = append(first, string(key))
				return false
			}))
			require.Equal(t, []string{"a/1"}, first)
		})
	}
}

func TestDatabaseWriteBatch(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("gone"), []byte("x")))
			batch := NewBatch()
			batch.Put([]byte("kept"), []byte("y"))
			batch.Delete([]byte("gone"))
			require.Equal(t, 2, batch.Len())
			require.NoError(t, db.Write(batch))

			got, err := db.Get([]byte("kept"))
			require.NoError(t, err)
			require.Equal(t, []byte("y"), got)
			_, err = db.Get([]byte("gone"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	require.NoError(t, db1.Close())

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("rocks", t.TempDir())
	require.Error(t, err)
}
