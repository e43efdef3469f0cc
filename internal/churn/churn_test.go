package churn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/store"
)

func randHolder(t *testing.T) ids.HolderID {
	t.Helper()
	h, err := ids.RandomHolderID()
	require.NoError(t, err)
	return h
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// stubSnapshot reports a fixed responsibility answer regardless of key.
type stubSnapshot struct{ responsible bool }

func (s stubSnapshot) ClosestTo(ids.DataID, int) bool { return s.responsible }
func (s stubSnapshot) ChooseClosest(candidates []ids.HolderID, _ ids.DataID) (ids.HolderID, bool) {
	if len(candidates) == 0 {
		return ids.HolderID{}, false
	}
	return candidates[0], true
}
func (s stubSnapshot) GroupMembers(ids.DataID, int) []ids.HolderID { return nil }

func TestOnRoutingMatrixChangedReportsPerKeyResponsibility(t *testing.T) {
	self := randHolder(t)
	collab, err := routing.NewRingCollaborator(self, 3, 3, 8, nil)
	require.NoError(t, err)

	st := openTestStore(t)
	key := ids.Key{Data: func() ids.DataID { d, _ := ids.RandomDataID(); return d }(), Tag: ids.ChunkImmutable}
	require.NoError(t, st.Put(key, entry.New()))

	h := New(collab, st)

	results, err := h.OnRoutingMatrixChanged(stubSnapshot{responsible: false})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, key, results[0].Key)
	require.False(t, results[0].StillResponsible)

	results, err = h.OnRoutingMatrixChanged(stubSnapshot{responsible: true})
	require.NoError(t, err)
	require.True(t, results[0].StillResponsible)
}

func TestSnapshotReflectsLastChange(t *testing.T) {
	self := randHolder(t)
	collab, err := routing.NewRingCollaborator(self, 3, 3, 8, nil)
	require.NoError(t, err)
	st := openTestStore(t)
	h := New(collab, st)

	next := stubSnapshot{responsible: true}
	_, err = h.OnRoutingMatrixChanged(next)
	require.NoError(t, err)
	require.Equal(t, next, h.Snapshot())
}
