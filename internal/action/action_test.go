package action

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/vaulterr"
)

func randHolder(t *testing.T) ids.HolderID {
	t.Helper()
	h, err := ids.RandomHolderID()
	require.NoError(t, err)
	return h
}

func TestApplyPutOnAbsentCreates(t *testing.T) {
	next, hook, err := Apply(ids.ChunkImmutable, nil, Action{Kind: KindPut})
	require.NoError(t, err)
	require.Equal(t, int64(1), next.RefCount)
	require.Equal(t, PostHook{}, hook)
}

func TestApplyPutOnExistingIncrementsRefCount(t *testing.T) {
	e := entry.New()
	next, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindPut})
	require.NoError(t, err)
	require.Equal(t, int64(2), next.RefCount)
	require.Equal(t, int64(1), e.RefCount, "original entry must not be mutated")
}

func TestApplyPutOnUniqueTagClashes(t *testing.T) {
	e := entry.New()
	_, _, err := Apply(ids.SignKeyMaid, e, Action{Kind: KindPut})
	require.ErrorIs(t, err, vaulterr.ErrUniqueDataClash)
}

func TestApplyAddHolderOnAbsentCreates(t *testing.T) {
	h := randHolder(t)
	next, _, err := Apply(ids.ChunkImmutable, nil, Action{Kind: KindAddHolder, Payload: Payload{Holder: h, Size: 10}})
	require.NoError(t, err)
	require.True(t, next.OnlineHolders[h])
	require.Equal(t, uint64(10), next.Size)
}

func TestApplyAddHolderSizeMismatchIsCorrupt(t *testing.T) {
	e := entry.New()
	e.Size = 10
	_, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindAddHolder, Payload: Payload{Holder: randHolder(t), Size: 99}})
	require.ErrorIs(t, err, vaulterr.ErrStoreCorrupt)
}

func TestApplyAddHolderMovesFromOffline(t *testing.T) {
	e := entry.New()
	h := randHolder(t)
	e.OfflineHolders[h] = true
	next, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindAddHolder, Payload: Payload{Holder: h}})
	require.NoError(t, err)
	require.True(t, next.OnlineHolders[h])
	require.False(t, next.OfflineHolders[h])
}

func TestApplyRemoveHolderDropsEmptyZeroRefEntry(t *testing.T) {
	e := entry.New()
	e.RefCount = 0
	h := randHolder(t)
	e.OnlineHolders[h] = true
	next, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindRemoveHolder, Payload: Payload{Holder: h}})
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestApplyRemoveHolderKeepsEntryWithPositiveRefCount(t *testing.T) {
	e := entry.New()
	h := randHolder(t)
	e.OnlineHolders[h] = true
	next, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindRemoveHolder, Payload: Payload{Holder: h}})
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Empty(t, next.OnlineHolders)
}

func TestApplyDeleteDecrementsRefCount(t *testing.T) {
	e := entry.New()
	e.RefCount = 2
	next, hook, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindDelete})
	require.NoError(t, err)
	require.Equal(t, int64(1), next.RefCount)
	require.Empty(t, hook.DeleteOnHolders)
}

func TestApplyDeleteToZeroEmitsHolderDeleteHook(t *testing.T) {
	e := entry.New()
	h := randHolder(t)
	e.OnlineHolders[h] = true
	next, hook, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindDelete})
	require.NoError(t, err)
	require.Nil(t, next)
	require.ElementsMatch(t, []ids.HolderID{h}, hook.DeleteOnHolders)
}

func TestApplyDeleteToZeroEmitsHookForOfflineHoldersToo(t *testing.T) {
	e := entry.New()
	online := randHolder(t)
	offline := randHolder(t)
	e.OnlineHolders[online] = true
	e.OfflineHolders[offline] = true
	next, hook, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindDelete})
	require.NoError(t, err)
	require.Nil(t, next)
	require.ElementsMatch(t, []ids.HolderID{online, offline}, hook.DeleteOnHolders)
}

func TestApplyNodeDownMovesHolderOffline(t *testing.T) {
	e := entry.New()
	h := randHolder(t)
	e.OnlineHolders[h] = true
	next, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindNodeDown, Payload: Payload{Holder: h}})
	require.NoError(t, err)
	require.False(t, next.OnlineHolders[h])
	require.True(t, next.OfflineHolders[h])
}

func TestApplyNodeUpMovesHolderOnline(t *testing.T) {
	e := entry.New()
	h := randHolder(t)
	e.OfflineHolders[h] = true
	next, _, err := Apply(ids.ChunkImmutable, e, Action{Kind: KindNodeUp, Payload: Payload{Holder: h}})
	require.NoError(t, err)
	require.True(t, next.OnlineHolders[h])
	require.False(t, next.OfflineHolders[h])
}

func TestApplyOnAbsentEntryIsNoOpExceptPutAndAddHolder(t *testing.T) {
	for _, kind := range []Kind{KindDelete, KindRemoveHolder, KindNodeDown, KindNodeUp} {
		next, hook, err := Apply(ids.ChunkImmutable, nil, Action{Kind: kind, Payload: Payload{Holder: randHolder(t)}})
		require.NoError(t, err)
		require.Nil(t, next)
		require.Equal(t, PostHook{}, hook)
	}
}
