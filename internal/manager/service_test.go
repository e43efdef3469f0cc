package manager

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/config"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/store"
)

func newTestCollaborator(self, peer ids.HolderID) (*routing.RingCollaborator, error) {
	return routing.NewRingCollaborator(self, 3, 3, 8, []routing.Peer{{ID: peer, Addr: "peer:1"}})
}

// recordingDispatcher fakes the Dispatcher Facade for unit tests: it
// just remembers what was sent instead of touching the network.
type recordingDispatcher struct {
	mu       sync.Mutex
	putSent  []ids.HolderID
	deletes  []ids.HolderID
	getSent  []ids.HolderID
	challenges []ids.HolderID
	syncSent []ids.HolderID
}

func (d *recordingDispatcher) SendPutRequest(_ context.Context, dest ids.HolderID, _ ids.Key, _ []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.putSent = append(d.putSent, dest)
	return nil
}
func (d *recordingDispatcher) SendPutResponse(context.Context, ids.HolderID, ids.MessageID, uint64) error {
	return nil
}
func (d *recordingDispatcher) SendPutFailure(context.Context, ids.HolderID, ids.MessageID, string) error {
	return nil
}
func (d *recordingDispatcher) SendGetRequest(_ context.Context, dest ids.HolderID, _ ids.Key, _ ids.MessageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getSent = append(d.getSent, dest)
	return nil
}
func (d *recordingDispatcher) SendIntegrityCheck(_ context.Context, dest ids.HolderID, _ ids.Key, _ ids.MessageID, _ []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.challenges = append(d.challenges, dest)
	return nil
}
func (d *recordingDispatcher) SendGetResponseSuccess(context.Context, ids.HolderID, ids.MessageID, []byte) error {
	return nil
}
func (d *recordingDispatcher) SendGetResponseFailure(context.Context, ids.HolderID, ids.MessageID) error {
	return nil
}
func (d *recordingDispatcher) SendDeleteRequest(_ context.Context, dest ids.HolderID, _ ids.Key) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes = append(d.deletes, dest)
	return nil
}
func (d *recordingDispatcher) SendFalseDataNotification(context.Context, ids.HolderID, ids.Key) error {
	return nil
}
func (d *recordingDispatcher) SendPutToCache(context.Context, ids.Key, []byte) error { return nil }
func (d *recordingDispatcher) SendSync(_ context.Context, dest ids.HolderID, _ action.Kind, _ ids.Key, _ action.Payload, _ ids.HolderID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncSent = append(d.syncSent, dest)
	return nil
}

func randHolder(t *testing.T) ids.HolderID {
	t.Helper()
	h, err := ids.RandomHolderID()
	require.NoError(t, err)
	return h
}

func randData(t *testing.T) ids.DataID {
	t.Helper()
	d, err := ids.RandomDataID()
	require.NoError(t, err)
	return d
}

func newTestService(t *testing.T) (*Service, *recordingDispatcher, ids.HolderID) {
	t.Helper()
	self := randHolder(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	peer := randHolder(t)
	collab, err := newTestCollaborator(self, peer)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.SyncQuorum = 1 // single-node test cluster resolves on first proposal
	cfg.GetDeadline = 200 * time.Millisecond

	disp := &recordingDispatcher{}
	svc := New(self, cfg, st, collab, disp, nil, zerolog.Nop())
	return svc, disp, peer
}

func TestHandlePutRequestFromOriginDispatchesAndResolves(t *testing.T) {
	svc, disp, _ := newTestService(t)
	key := ids.Key{Data: randData(t), Tag: ids.ChunkImmutable}

	cost, err := svc.HandlePutRequestFromOrigin(context.Background(), key, []byte("hello"), ids.HolderID{})
	require.NoError(t, err)
	require.Greater(t, cost, uint64(0))

	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Len(t, disp.putSent, 1)

	e, err := svc.store.Get(key)
	require.NoError(t, err)
	require.Equal(t, int64(1), e.RefCount)
}

func TestHandlePutResponseAddsHolder(t *testing.T) {
	svc, _, _ := newTestService(t)
	key := ids.Key{Data: randData(t), Tag: ids.ChunkImmutable}
	holder := randHolder(t)

	_, putErr := svc.HandlePutRequestFromOrigin(context.Background(), key, []byte("x"), ids.HolderID{})
	require.NoError(t, putErr)

	require.NoError(t, svc.HandlePutResponseFromStorageGroup(context.Background(), key, holder, 1))

	e, err := svc.store.Get(key)
	require.NoError(t, err)
	require.True(t, e.OnlineHolders[holder])
}

func TestHandleDeleteRequestDropsEntryAtZeroRefCount(t *testing.T) {
	svc, disp, _ := newTestService(t)
	key := ids.Key{Data: randData(t), Tag: ids.ChunkImmutable}
	holder := randHolder(t)

	_, err := svc.HandlePutRequestFromOrigin(context.Background(), key, []byte("x"), ids.HolderID{})
	require.NoError(t, err)
	require.NoError(t, svc.HandlePutResponseFromStorageGroup(context.Background(), key, holder, 1))

	require.NoError(t, svc.HandleDeleteRequestFromOrigin(context.Background(), key))

	_, err = svc.store.Get(key)
	require.Error(t, err)

	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Contains(t, disp.deletes, holder)
}

func TestHandleGetRequestDispatchesToSourceAndChallengesOthers(t *testing.T) {
	svc, disp, _ := newTestService(t)
	key := ids.Key{Data: randData(t), Tag: ids.ChunkImmutable}
	h1, h2 := randHolder(t), randHolder(t)

	_, err := svc.HandlePutRequestFromOrigin(context.Background(), key, []byte("x"), ids.HolderID{})
	require.NoError(t, err)
	require.NoError(t, svc.HandlePutResponseFromStorageGroup(context.Background(), key, h1, 1))
	require.NoError(t, svc.HandlePutResponseFromStorageGroup(context.Background(), key, h2, 1))

	msgID, err := svc.HandleGetRequestFromClient(context.Background(), key, randHolder(t))
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Len(t, disp.getSent, 1)
	require.Len(t, disp.challenges, 1)
	require.NotEqual(t, disp.getSent[0], disp.challenges[0])
}

func TestValidateSenderRejectsWrongRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.ValidateSender(EventPutRequestFromOrigin, randHolder(t), RoleHolder)
	require.Error(t, err)
}

func TestValidateSenderPassesWhenDisabled(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.cfg.EnforceSenderValidation = false
	err := svc.ValidateSender(EventPutRequestFromOrigin, randHolder(t), RoleHolder)
	require.NoError(t, err)
}
