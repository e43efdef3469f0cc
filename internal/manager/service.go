// Package manager implements the Data Manager Service: the object
// that wires the Metadata Store, Action Log, Sync Resolver,
// Placement Engine, Get Operation, Churn Handler, and Dispatcher
// Facade together and exposes the inbound event taxonomy the external
// demultiplexer calls into.
//
// The source places all of this mutable state (the routing matrix,
// timers, resolvers) as members of one service object; this keeps
// that shape deliberately: one Service instance per persona, lifetime
// equal to the process, injected everywhere rather than reached via a
// global.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/churn"
	"github.com/safevault/vault/internal/config"
	"github.com/safevault/vault/internal/dispatch"
	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/getop"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/placement"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/store"
	"github.com/safevault/vault/internal/syncres"
	"github.com/safevault/vault/internal/telemetry"
	"github.com/safevault/vault/internal/vaulterr"
)

// Service is the Data Manager persona.
type Service struct {
	selfID ids.HolderID
	cfg    config.Config
	log    zerolog.Logger

	store     *store.Store
	collab    routing.Collaborator
	placement *placement.Engine
	churn     *churn.Handler
	disp      dispatch.Dispatcher
	timers    *dispatch.TimerRegistry
	resolvers map[action.Kind]*syncres.Resolver
	metrics   *telemetry.Metrics

	opsMu sync.Mutex
	ops   map[ids.MessageID]*getop.Operation

	derankMu     sync.Mutex
	derankCounts map[ids.HolderID]int
}

// New builds a Data Manager Service, instantiating one Sync Resolver
// per action kind — grounded on the source's six Sync<...> members —
// bound to disp for retransmission.
func New(selfID ids.HolderID, cfg config.Config, st *store.Store, collab routing.Collaborator, disp dispatch.Dispatcher, metrics *telemetry.Metrics, log zerolog.Logger) *Service {
	resolverCfg := syncres.Config{
		Quorum:          cfg.SyncQuorum,
		MaxPendingKeys:  cfg.SyncMaxPendingKeys,
		RetransmitLimit: cfg.SyncRetransmitLimit,
		RetransmitEvery: cfg.SyncRetransmitEvery,
	}
	resolvers := make(map[action.Kind]*syncres.Resolver)
	for _, kind := range []action.Kind{
		action.KindPut, action.KindDelete, action.KindAddHolder,
		action.KindRemoveHolder, action.KindNodeDown, action.KindNodeUp,
	} {
		resolvers[kind] = syncres.New(kind, selfID, resolverCfg, disp, log)
	}

	return &Service{
		selfID:       selfID,
		cfg:          cfg,
		log:          log,
		store:        st,
		collab:       collab,
		placement:    placement.New(collab),
		churn:        churn.New(collab, st),
		disp:         disp,
		timers:       dispatch.NewTimerRegistry(),
		resolvers:    resolvers,
		metrics:      metrics,
		ops:          make(map[ids.MessageID]*getop.Operation),
		derankCounts: make(map[ids.HolderID]int),
	}
}

// applyResolved applies a[resolved] action to the store and returns
// any post-hook side effects the caller must act on.
func (s *Service) applyResolved(a action.Action) (*entry.Entry, action.PostHook, error) {
	var hook action.PostHook
	next, err := s.store.Mutate(a.Key, func(current *entry.Entry) (*entry.Entry, error) {
		n, h, applyErr := action.Apply(a.Key.Tag, current, a)
		hook = h
		return n, applyErr
	})
	return next, hook, err
}

// submit hands a local proposal to the resolver for kind, broadcasting
// retransmission to the key's current replica group peers, and
// applies it immediately if quorum resolves on this very call (the
// degenerate small-group case).
func (s *Service) submit(kind action.Kind, key ids.Key, payload action.Payload) error {
	dests := s.collab.GroupPeers(key.Data)
	outcome, resolved := s.resolvers[kind].Submit(key, payload, dests)
	if outcome == syncres.Resolved {
		_, hook, err := s.applyResolved(*resolved)
		if err != nil {
			return err
		}
		s.runPostHook(context.Background(), *resolved, hook)
	}
	return nil
}

func (s *Service) runPostHook(ctx context.Context, a action.Action, hook action.PostHook) {
	for _, h := range hook.DeleteOnHolders {
		if err := s.disp.SendDeleteRequest(ctx, h, a.Key); err != nil {
			s.log.Warn().Err(err).Str("key", a.Key.String()).Msg("delete request dispatch failed")
		}
	}
}

// HandlePutRequestFromOrigin consults the store, submits a Put action
// to the resolver, picks an initial holder via the Placement Engine,
// and dispatches the PutRequest. Returns the cost the caller reports
// back to the origin in its own PutResponse.
func (s *Service) HandlePutRequestFromOrigin(ctx context.Context, key ids.Key, content []byte, candidate ids.HolderID) (uint64, error) {
	_, err := s.store.Get(key)
	fresh := errors.Is(err, vaulterr.ErrNotFound)
	if err != nil && !fresh {
		return 0, err
	}

	dests := s.collab.GroupPeers(key.Data)
	outcome, resolved := s.resolvers[action.KindPut].Submit(key, action.Payload{}, dests)
	if outcome == syncres.Resolved {
		if _, _, applyErr := s.applyResolved(*resolved); applyErr != nil {
			return 0, applyErr
		}
	}

	holder, err := s.placement.InitialPlacement(key.Data, candidate)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PlacementFailures.Inc()
		}
		return 0, err
	}
	if err := s.disp.SendPutRequest(ctx, holder, key, content); err != nil {
		return 0, err
	}
	return s.placement.Cost(uint64(len(content)), fresh), nil
}

// HandlePutResponseFromStorageGroup records that holder has
// acknowledged storing the datum, submitting an AddHolder action.
func (s *Service) HandlePutResponseFromStorageGroup(ctx context.Context, key ids.Key, holder ids.HolderID, size uint64) error {
	return s.submit(action.KindAddHolder, key, action.Payload{Holder: holder, Size: size})
}

// HandlePutFailureFromStorageGroup picks a replacement holder,
// avoiding the entry's current holder set plus the offender, and
// retries the PutRequest against it.
func (s *Service) HandlePutFailureFromStorageGroup(ctx context.Context, key ids.Key, offender ids.HolderID, content []byte) error {
	current, err := s.store.Get(key)
	if err != nil {
		if errors.Is(err, vaulterr.ErrNotFound) {
			current = entry.New()
		} else {
			return err
		}
	}
	replacement, err := s.placement.Replacement(current, offender)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PlacementFailures.Inc()
		}
		return err
	}
	return s.disp.SendPutRequest(ctx, replacement, key, content)
}

// HandleDeleteRequestFromOrigin submits a Delete action; if the
// resolved action drives ref_count to zero, the post-hook's holder
// delete requests are dispatched.
func (s *Service) HandleDeleteRequestFromOrigin(ctx context.Context, key ids.Key) error {
	dests := s.collab.GroupPeers(key.Data)
	outcome, resolved := s.resolvers[action.KindDelete].Submit(key, action.Payload{}, dests)
	if outcome != syncres.Resolved {
		return nil
	}
	_, hook, err := s.applyResolved(*resolved)
	if err != nil {
		return err
	}
	s.runPostHook(ctx, *resolved, hook)
	return nil
}

// HandleSetHolderOnline submits a NodeUp action for holder.
func (s *Service) HandleSetHolderOnline(ctx context.Context, key ids.Key, holder ids.HolderID) error {
	return s.submit(action.KindNodeUp, key, action.Payload{Holder: holder})
}

// HandleSetHolderOffline submits a NodeDown action for holder.
func (s *Service) HandleSetHolderOffline(ctx context.Context, key ids.Key, holder ids.HolderID) error {
	return s.submit(action.KindNodeDown, key, action.Payload{Holder: holder})
}

// HandleSynchroniseFromPeer feeds a proposal observed from a peer
// Data Manager into the resolver for its kind.
func (s *Service) HandleSynchroniseFromPeer(ctx context.Context, kind action.Kind, key ids.Key, payload action.Payload, proposer ids.HolderID) error {
	resolver, ok := s.resolvers[kind]
	if !ok {
		return fmt.Errorf("manager: unknown sync kind %v", kind)
	}
	outcome, resolved := resolver.AddProposal(key, payload, proposer)
	if outcome != syncres.Resolved {
		return nil
	}
	_, hook, err := s.applyResolved(*resolved)
	if err != nil {
		return err
	}
	s.runPostHook(ctx, *resolved, hook)
	return nil
}

// HandleAccountTransferFromPeer is a passthrough stub: the Maid/Pmid
// account-holder personas it concerns are out of scope for this
// persona.
func (s *Service) HandleAccountTransferFromPeer(ctx context.Context, from ids.HolderID, payload []byte) error {
	s.log.Debug().Str("from", from.String()).Msg("account transfer received; account-holder persona out of scope, no-op")
	return nil
}

// HandleRoutingMatrixChanged delegates to the Churn Handler.
func (s *Service) HandleRoutingMatrixChanged(ctx context.Context, next routing.Snapshot) error {
	_, err := s.churn.OnRoutingMatrixChanged(next)
	return err
}

// derank increments holder's de-ranking counter. De-ranking has no
// enforcement effect on the Placement Engine beyond this count being
// observable — the source's own de-ranking path is similarly a
// bookkeeping signal, not a hard exclusion.
func (s *Service) derank(holder ids.HolderID) {
	s.derankMu.Lock()
	defer s.derankMu.Unlock()
	s.derankCounts[holder]++
}

// DerankCount reports how many times holder has been de-ranked.
func (s *Service) DerankCount(holder ids.HolderID) int {
	s.derankMu.Lock()
	defer s.derankMu.Unlock()
	return s.derankCounts[holder]
}

// PendingSyncKeys reports, per action kind, how many keys currently
// have unresolved proposals. Nothing in this module copies it into the
// SyncPendingKeys gauge.
func (s *Service) PendingSyncKeys() map[action.Kind]int {
	out := make(map[action.Kind]int, len(s.resolvers))
	for kind, r := range s.resolvers {
		out[kind] = r.PendingKeys()
	}
	return out
}
