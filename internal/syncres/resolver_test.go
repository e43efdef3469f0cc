package syncres

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/ids"
)

type countingDispatcher struct {
	mu    sync.Mutex
	sends int
}

func (d *countingDispatcher) SendPutRequest(context.Context, ids.HolderID, ids.Key, []byte) error { return nil }
func (d *countingDispatcher) SendPutResponse(context.Context, ids.HolderID, ids.MessageID, uint64) error {
	return nil
}
func (d *countingDispatcher) SendPutFailure(context.Context, ids.HolderID, ids.MessageID, string) error {
	return nil
}
func (d *countingDispatcher) SendGetRequest(context.Context, ids.HolderID, ids.Key, ids.MessageID) error {
	return nil
}
func (d *countingDispatcher) SendIntegrityCheck(context.Context, ids.HolderID, ids.Key, ids.MessageID, []byte) error {
	return nil
}
func (d *countingDispatcher) SendGetResponseSuccess(context.Context, ids.HolderID, ids.MessageID, []byte) error {
	return nil
}
func (d *countingDispatcher) SendGetResponseFailure(context.Context, ids.HolderID, ids.MessageID) error {
	return nil
}
func (d *countingDispatcher) SendDeleteRequest(context.Context, ids.HolderID, ids.Key) error { return nil }
func (d *countingDispatcher) SendFalseDataNotification(context.Context, ids.HolderID, ids.Key) error {
	return nil
}
func (d *countingDispatcher) SendPutToCache(context.Context, ids.Key, []byte) error { return nil }
func (d *countingDispatcher) SendSync(context.Context, ids.HolderID, action.Kind, ids.Key, action.Payload, ids.HolderID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends++
	return nil
}

func randHolder(t *testing.T) ids.HolderID {
	t.Helper()
	h, err := ids.RandomHolderID()
	require.NoError(t, err)
	return h
}

func randKey(t *testing.T) ids.Key {
	t.Helper()
	d, err := ids.RandomDataID()
	require.NoError(t, err)
	return ids.Key{Data: d, Tag: ids.ChunkImmutable}
}

func TestSubmitResolvesAtQuorum(t *testing.T) {
	self := randHolder(t)
	disp := &countingDispatcher{}
	r := New(action.KindPut, self, Config{Quorum: 2}, disp, zerolog.Nop())
	key := randKey(t)
	payload := action.Payload{}

	outcome, resolved := r.Submit(key, payload, nil)
	require.Equal(t, Pending, outcome)
	require.Nil(t, resolved)

	outcome, resolved = r.AddProposal(key, payload, randHolder(t))
	require.Equal(t, Resolved, outcome)
	require.NotNil(t, resolved)
	require.Equal(t, key, resolved.Key)
}

func TestDuplicateProposerIsIgnored(t *testing.T) {
	self := randHolder(t)
	disp := &countingDispatcher{}
	r := New(action.KindPut, self, Config{Quorum: 3}, disp, zerolog.Nop())
	key := randKey(t)
	payload := action.Payload{}

	proposer := randHolder(t)
	outcome, _ := r.AddProposal(key, payload, proposer)
	require.Equal(t, Pending, outcome)

	outcome, _ = r.AddProposal(key, payload, proposer)
	require.Equal(t, Duplicate, outcome)
}

func TestDistinctPayloadsTrackSeparateQuorums(t *testing.T) {
	self := randHolder(t)
	disp := &countingDispatcher{}
	r := New(action.KindAddHolder, self, Config{Quorum: 2}, disp, zerolog.Nop())
	key := randKey(t)

	h1, h2 := randHolder(t), randHolder(t)
	payloadA := action.Payload{Holder: h1}
	payloadB := action.Payload{Holder: h2}

	outcome, _ := r.AddProposal(key, payloadA, randHolder(t))
	require.Equal(t, Pending, outcome)
	outcome, _ = r.AddProposal(key, payloadB, randHolder(t))
	require.Equal(t, Pending, outcome)

	require.Equal(t, 1, r.PendingKeys(), "both payload groups share one pending key entry")
}

func TestEvictionDropsOldestKeyWhenOverCapacity(t *testing.T) {
	self := randHolder(t)
	disp := &countingDispatcher{}
	r := New(action.KindPut, self, Config{Quorum: 5, MaxPendingKeys: 1}, disp, zerolog.Nop())

	k1 := randKey(t)
	k2 := randKey(t)
	r.AddProposal(k1, action.Payload{}, randHolder(t))
	r.AddProposal(k2, action.Payload{}, randHolder(t))

	require.Equal(t, 1, r.PendingKeys())
}
