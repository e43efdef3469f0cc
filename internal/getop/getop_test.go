package getop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/safevault/vault/internal/ids"
)

func randHolder(t *testing.T) ids.HolderID {
	t.Helper()
	h, err := ids.RandomHolderID()
	require.NoError(t, err)
	return h
}

func TestNewExpectedCountIsSourcePlusChallenges(t *testing.T) {
	source := randHolder(t)
	challenges := []ids.HolderID{randHolder(t), randHolder(t)}
	op := New(ids.Key{}, randHolder(t), "msg1", source, challenges, nil, time.Now().Add(time.Second))
	require.Equal(t, 3, op.ExpectedCount())
}

func TestFinalizesOnceAllResponsesArrive(t *testing.T) {
	source := randHolder(t)
	c1 := randHolder(t)
	op := New(ids.Key{}, randHolder(t), "msg1", source, []ids.HolderID{c1}, nil, time.Now().Add(time.Second))

	require.False(t, op.RecordContentResponse([]byte("data"), true))
	ready := op.RecordChallengeResponse(c1, []byte("scalar"))
	require.True(t, ready)

	content, ok, challenges, alreadyDone := op.TryFinalize(false)
	require.False(t, alreadyDone)
	require.True(t, ok)
	require.Equal(t, []byte("data"), content)
	require.True(t, challenges[c1].Arrived)
}

func TestTryFinalizeIsExactlyOnce(t *testing.T) {
	op := New(ids.Key{}, randHolder(t), "msg1", randHolder(t), nil, nil, time.Now().Add(time.Second))
	op.RecordContentResponse([]byte("x"), true)

	_, _, _, alreadyDone := op.TryFinalize(false)
	require.False(t, alreadyDone)

	_, _, _, alreadyDone = op.TryFinalize(false)
	require.True(t, alreadyDone)
}

func TestChallengeResponseIgnoredForUnknownHolder(t *testing.T) {
	op := New(ids.Key{}, randHolder(t), "msg1", randHolder(t), []ids.HolderID{randHolder(t)}, nil, time.Now().Add(time.Second))
	ready := op.RecordChallengeResponse(randHolder(t), []byte("scalar"))
	require.False(t, ready)
}

func TestTryFinalizeTimeoutSetsTimeoutState(t *testing.T) {
	op := New(ids.Key{}, randHolder(t), "msg1", randHolder(t), nil, nil, time.Now())
	_, _, _, alreadyDone := op.TryFinalize(true)
	require.False(t, alreadyDone)
	require.Equal(t, CompletedTimeout, op.State())
}

func TestDuplicateChallengeResponseIgnored(t *testing.T) {
	c1 := randHolder(t)
	op := New(ids.Key{}, randHolder(t), "msg1", randHolder(t), []ids.HolderID{c1}, nil, time.Now().Add(time.Second))
	require.False(t, op.RecordChallengeResponse(c1, []byte("a")))
	require.False(t, op.RecordChallengeResponse(c1, []byte("b")))
	require.Equal(t, 1, op.CalledCount())
}
