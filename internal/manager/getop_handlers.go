package manager

import (
	"context"
	"errors"
	"time"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/getop"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/vaulterr"
)

// handleGet is the shared entry point for a Get issued either by an
// external client or by an auxiliary manager forwarding on a client's
// behalf: look up the entry, pick a read source and challenge set via
// the Placement Engine, dispatch the content request and every
// integrity check, and register the aggregation timer. A Get for a key
// absent from the store is logged and dropped: it returns an empty
// message id and no error.
func (s *Service) handleGet(ctx context.Context, key ids.Key, requestor ids.HolderID) (ids.MessageID, error) {
	e, err := s.store.Get(key)
	if errors.Is(err, vaulterr.ErrNotFound) {
		s.log.Warn().Str("key", key.String()).Msg("get for unknown key dropped")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	source, challengeSet, ok := s.placement.ChooseReadSource(e.OnlineHolders, key.Data)
	if !ok {
		return "", vaulterr.ErrNoHolders
	}

	msgID := ids.NewMessageID()
	nonces := make(map[ids.HolderID][]byte, len(challengeSet))
	for _, h := range challengeSet {
		nonce, err := getop.NewNonce()
		if err != nil {
			return "", err
		}
		nonces[h] = nonce
	}

	deadline := s.cfg.GetDeadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	op := getop.New(key, requestor, msgID, source, challengeSet, nonces, time.Now().Add(deadline))

	s.opsMu.Lock()
	s.ops[msgID] = op
	s.opsMu.Unlock()

	if s.metrics != nil {
		s.metrics.GetOpsInFlight.Inc()
	}
	s.timers.Register(msgID, op.ExpectedCount(), deadline, func(remaining int) {
		s.onGetTimerEvent(msgID, remaining)
	})

	if err := s.disp.SendGetRequest(ctx, source, key, msgID); err != nil {
		s.log.Warn().Err(err).Str("holder", source.String()).Msg("get request dispatch failed")
	}
	for holder, nonce := range nonces {
		if err := s.disp.SendIntegrityCheck(ctx, holder, key, msgID, nonce); err != nil {
			s.log.Warn().Err(err).Str("holder", holder.String()).Msg("integrity check dispatch failed")
		}
	}
	return msgID, nil
}

// HandleGetRequestFromClient issues a Get on behalf of an external
// reader.
func (s *Service) HandleGetRequestFromClient(ctx context.Context, key ids.Key, requestor ids.HolderID) (ids.MessageID, error) {
	return s.handleGet(ctx, key, requestor)
}

// HandleGetRequestFromAuxiliary issues a Get relayed by another
// manager acting on a client's behalf; identical machinery to the
// direct-client path, requestor is the auxiliary's own id so the
// eventual response routes back to it.
func (s *Service) HandleGetRequestFromAuxiliary(ctx context.Context, key ids.Key, requestor ids.HolderID) (ids.MessageID, error) {
	return s.handleGet(ctx, key, requestor)
}

// HandleGetResponseFromHolder aggregates one holder's reply, whether
// it is the content source's payload or a challenged holder's
// reported scalar — the taxonomy names both as "GetResponseFromHolder"
// since a holder cannot be both for the same operation.
func (s *Service) HandleGetResponseFromHolder(ctx context.Context, msgID ids.MessageID, holder ids.HolderID, content []byte, reportedScalar []byte) {
	s.opsMu.Lock()
	op, ok := s.ops[msgID]
	s.opsMu.Unlock()
	if !ok {
		return
	}

	var ready bool
	if holder == op.ContentSource {
		ready = op.RecordContentResponse(content, len(content) > 0)
	} else {
		ready = op.RecordChallengeResponse(holder, reportedScalar)
	}

	if ready {
		s.timers.Cancel(msgID)
		s.finalizeGet(ctx, msgID, op, false)
		return
	}
	s.timers.Arrive(msgID)
}

// HandleGetCachedResponseFromCache satisfies a Get directly from the
// cache persona stand-in, bypassing the holder/challenge machinery
// entirely, when the peer-cache fallback Open Question is enabled.
func (s *Service) HandleGetCachedResponseFromCache(ctx context.Context, msgID ids.MessageID, content []byte) bool {
	if !s.cfg.EnablePeerCacheFallback {
		return false
	}
	s.opsMu.Lock()
	op, ok := s.ops[msgID]
	s.opsMu.Unlock()
	if !ok {
		return false
	}
	s.timers.Cancel(msgID)
	s.finalizeGetWithContent(ctx, msgID, op, content, true)
	return true
}

// onGetTimerEvent is the TimerRegistry callback for msgID: remaining
// is the outstanding response count, or TimeoutSentinel if the
// deadline elapsed first.
func (s *Service) onGetTimerEvent(msgID ids.MessageID, remaining int) {
	s.opsMu.Lock()
	op, ok := s.ops[msgID]
	s.opsMu.Unlock()
	if !ok {
		return
	}
	if remaining != -1 && remaining > 0 {
		return
	}
	timedOut := remaining == -1
	s.finalizeGet(context.Background(), msgID, op, timedOut)
}

// finalizeGet transitions op to its terminal state, evaluates every
// challenged holder's reported scalar against the received content,
// de-ranks and notifies any disagreeing holder, and reports the
// outcome to the requestor. A deadline that fires before the content
// source has replied fails the Get; one that fires after it replied
// still evaluates the challenges.
func (s *Service) finalizeGet(ctx context.Context, msgID ids.MessageID, op *getop.Operation, timedOut bool) {
	content, contentOK, challenges, alreadyDone := op.TryFinalize(timedOut)
	if alreadyDone {
		return
	}
	s.opsMu.Lock()
	delete(s.ops, msgID)
	s.opsMu.Unlock()
	if s.metrics != nil {
		s.metrics.GetOpsInFlight.Dec()
	}

	if timedOut && !contentOK {
		if s.metrics != nil {
			s.metrics.GetOpsCompleted.WithLabelValues("timeout").Inc()
		}
		if err := s.emitNodeDownAction(op.Key, op.ContentSource); err != nil && !errors.Is(err, vaulterr.ErrNotFound) {
			s.log.Warn().Err(err).Msg("node-down submission failed")
		}
		_ = s.disp.SendGetResponseFailure(ctx, op.RequestorID, msgID)
		return
	}

	if !contentOK {
		if s.metrics != nil {
			s.metrics.GetOpsCompleted.WithLabelValues("failed").Inc()
		}
		if err := s.emitNodeDownAction(op.Key, op.ContentSource); err != nil && !errors.Is(err, vaulterr.ErrNotFound) {
			s.log.Warn().Err(err).Msg("node-down submission failed")
		}
		_ = s.disp.SendGetResponseFailure(ctx, op.RequestorID, msgID)
		return
	}

	for holder, c := range challenges {
		if !c.Arrived {
			if err := s.emitNodeDownAction(op.Key, holder); err != nil && !errors.Is(err, vaulterr.ErrNotFound) {
				s.log.Warn().Err(err).Msg("node-down submission failed")
			}
			continue
		}
		if !getop.Matches(c.Nonce, content, c.Reported) {
			s.handleIntegrityFailure(ctx, op, holder)
		}
	}

	if s.metrics != nil {
		s.metrics.GetOpsCompleted.WithLabelValues("success").Inc()
	}
	_ = s.disp.SendGetResponseSuccess(ctx, op.RequestorID, msgID, content)
	if err := s.disp.SendPutToCache(ctx, op.Key, content); err != nil {
		s.log.Warn().Err(err).Str("key", op.Key.String()).Msg("put-to-cache dispatch failed")
	}
}

// finalizeGetWithContent is the peer-cache fallback's finalization
// path: the cache's copy is trusted without integrity challenges.
func (s *Service) finalizeGetWithContent(ctx context.Context, msgID ids.MessageID, op *getop.Operation, content []byte, fromCache bool) {
	_, _, _, alreadyDone := op.TryFinalize(false)
	if alreadyDone {
		return
	}
	s.opsMu.Lock()
	delete(s.ops, msgID)
	s.opsMu.Unlock()
	if s.metrics != nil {
		s.metrics.GetOpsInFlight.Dec()
		s.metrics.GetOpsCompleted.WithLabelValues("cache").Inc()
	}
	_ = s.disp.SendGetResponseSuccess(ctx, op.RequestorID, msgID, content)
}

// handleIntegrityFailure reacts to a holder whose reported scalar
// disagreed with the reference: notify that holder of its false data,
// submit a RemoveHolder action, and, if de-ranking is enabled, bump
// the holder's de-rank counter.
func (s *Service) handleIntegrityFailure(ctx context.Context, op *getop.Operation, holder ids.HolderID) {
	if s.metrics != nil {
		s.metrics.IntegrityFailures.Inc()
	}
	s.log.Warn().
		Str("key", op.Key.String()).
		Str("holder", holder.String()).
		Err(vaulterr.ErrIntegrityFailure).
		Msg("holder failed integrity challenge")

	if err := s.disp.SendFalseDataNotification(ctx, holder, op.Key); err != nil {
		s.log.Warn().Err(err).Msg("false data notification dispatch failed")
	}
	if err := s.emitRemoveHolderAction(op.Key, holder); err != nil && !errors.Is(err, vaulterr.ErrNotFound) {
		s.log.Warn().Err(err).Msg("remove-holder submission failed")
	}
	if s.cfg.EnableDeranking {
		s.derank(holder)
	}
}

// emitRemoveHolderAction submits a RemoveHolder action for holder
// against key, the mechanism by which a confirmed integrity failure
// removes a tampering holder from the entry's holder set entirely.
func (s *Service) emitRemoveHolderAction(key ids.Key, holder ids.HolderID) error {
	return s.submit(action.KindRemoveHolder, key, action.Payload{Holder: holder})
}

// emitNodeDownAction submits a NodeDown action for holder against key,
// demoting it to the offline partition without removing it as a
// holder outright — used when a holder fails to respond at all (a
// timed-out content source or an un-arrived challenge), as distinct
// from a holder caught actively returning tampered content.
func (s *Service) emitNodeDownAction(key ids.Key, holder ids.HolderID) error {
	return s.submit(action.KindNodeDown, key, action.Payload{Holder: holder})
}
