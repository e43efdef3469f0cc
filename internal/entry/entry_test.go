package entry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/ids"
)

func randHolder(t *testing.T) ids.HolderID {
	t.Helper()
	h, err := ids.RandomHolderID()
	require.NoError(t, err)
	return h
}

func TestNewHasRefCountOne(t *testing.T) {
	e := New()
	require.Equal(t, int64(1), e.RefCount)
	require.Empty(t, e.OnlineHolders)
	require.Empty(t, e.OfflineHolders)
}

func TestCloneIsDeep(t *testing.T) {
	e := New()
	h := randHolder(t)
	e.OnlineHolders[h] = true

	c := e.Clone()
	delete(c.OnlineHolders, h)

	require.True(t, e.OnlineHolders[h])
	require.False(t, c.OnlineHolders[h])
}

func TestCloneNil(t *testing.T) {
	var e *Entry
	require.Nil(t, e.Clone())
}

func TestValidRejectsOverlap(t *testing.T) {
	e := New()
	h := randHolder(t)
	e.OnlineHolders[h] = true
	e.OfflineHolders[h] = true
	require.False(t, e.Valid(4))
}

func TestValidRejectsOversizedHolderSet(t *testing.T) {
	e := New()
	for i := 0; i < 5; i++ {
		e.OnlineHolders[randHolder(t)] = true
	}
	require.False(t, e.Valid(4))
}

func TestValidRejectsNonPositiveRefCount(t *testing.T) {
	e := New()
	e.RefCount = 0
	require.False(t, e.Valid(4))
}

func TestValidAccepts(t *testing.T) {
	e := New()
	e.OnlineHolders[randHolder(t)] = true
	e.OfflineHolders[randHolder(t)] = true
	require.True(t, e.Valid(4))
}

func TestOnlineSlice(t *testing.T) {
	e := New()
	h1, h2 := randHolder(t), randHolder(t)
	e.OnlineHolders[h1] = true
	e.OnlineHolders[h2] = true
	e.OfflineHolders[randHolder(t)] = true

	slice := e.OnlineSlice()
	require.Len(t, slice, 2)
	require.ElementsMatch(t, []ids.HolderID{h1, h2}, slice)
}
