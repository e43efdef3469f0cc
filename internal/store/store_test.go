package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/vaulterr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func randKey(t *testing.T) ids.Key {
	t.Helper()
	d, err := ids.RandomDataID()
	require.NoError(t, err)
	return ids.Key{Data: d, Tag: ids.ChunkImmutable}
}

func TestGetMissingIsNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.Get(randKey(t))
	require.ErrorIs(t, err, vaulterr.ErrNotFound)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	st := openTestStore(t)
	key := randKey(t)
	e := entry.New()
	e.Size = 42

	require.NoError(t, st.Put(key, e))
	got, err := st.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.Size)
	require.Equal(t, int64(1), got.RefCount)
}

func TestDeleteAbsentKeyIsNoOp(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Delete(randKey(t)))
}

func TestMutateCreatesOnAbsent(t *testing.T) {
	st := openTestStore(t)
	key := randKey(t)

	next, err := st.Mutate(key, func(current *entry.Entry) (*entry.Entry, error) {
		require.Nil(t, current)
		return entry.New(), nil
	})
	require.NoError(t, err)
	require.NotNil(t, next)

	got, err := st.Get(key)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.RefCount)
}

func TestMutateErrorLeavesStoreUntouched(t *testing.T) {
	st := openTestStore(t)
	key := randKey(t)
	require.NoError(t, st.Put(key, entry.New()))

	_, err := st.Mutate(key, func(current *entry.Entry) (*entry.Entry, error) {
		return nil, vaulterr.ErrUniqueDataClash
	})
	require.ErrorIs(t, err, vaulterr.ErrUniqueDataClash)

	got, err := st.Get(key)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.RefCount)
}

func TestMutateDeletesOnNilReturn(t *testing.T) {
	st := openTestStore(t)
	key := randKey(t)
	require.NoError(t, st.Put(key, entry.New()))

	_, err := st.Mutate(key, func(current *entry.Entry) (*entry.Entry, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = st.Get(key)
	require.ErrorIs(t, err, vaulterr.ErrNotFound)
}

func TestKeysListsEveryStoredKey(t *testing.T) {
	st := openTestStore(t)
	k1, k2 := randKey(t), randKey(t)
	require.NoError(t, st.Put(k1, entry.New()))
	require.NoError(t, st.Put(k2, entry.New()))

	keys, err := st.Keys()
	require.NoError(t, err)
	require.ElementsMatch(t, []ids.Key{k1, k2}, keys)
}
