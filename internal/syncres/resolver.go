// Package syncres implements the Sync Resolver (C4): a per-action-kind
// quorum collector that buffers proposals from peer Data Managers and
// emits a resolved action once a threshold of agreeing proposals is
// reached, retransmitting the local node's own proposal through the
// dispatcher in the meantime.
//
// One Resolver instance exists per action kind (Put, Delete,
// AddHolder, RemoveHolder, NodeDown, NodeUp) — grounded on the six
// Sync<...> members the source keeps on its Data Manager service
// rather than one flat replication path.
package syncres

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/dispatch"
	"github.com/safevault/vault/internal/ids"
)

// Outcome is the result of submitting a proposal.
type Outcome int

const (
	Pending Outcome = iota
	Resolved
	Duplicate
)

// Config bounds a Resolver's behavior.
type Config struct {
	Quorum          int
	MaxPendingKeys  int
	RetransmitLimit int
	RetransmitEvery time.Duration
}

type proposalGroup struct {
	proposers map[ids.HolderID]bool
}

type keyState struct {
	groups   map[action.Payload]*proposalGroup
	cancel   context.CancelFunc
	inserted time.Time
}

// Resolver is the Sync Resolver for one action kind.
type Resolver struct {
	kind   action.Kind
	selfID ids.HolderID
	cfg    Config
	disp   dispatch.Dispatcher
	log    zerolog.Logger

	mu      sync.Mutex
	pending map[ids.Key]*keyState
	order   []ids.Key // insertion order, for bounded eviction
}

// New returns a Resolver for kind, bound to disp for retransmission.
func New(kind action.Kind, selfID ids.HolderID, cfg Config, disp dispatch.Dispatcher, log zerolog.Logger) *Resolver {
	if cfg.RetransmitLimit <= 0 {
		cfg.RetransmitLimit = 10
	}
	if cfg.RetransmitEvery <= 0 {
		cfg.RetransmitEvery = 2 * time.Second
	}
	return &Resolver{
		kind:    kind,
		selfID:  selfID,
		cfg:     cfg,
		disp:    disp,
		log:     log.With().Str("action_kind", kind.String()).Logger(),
		pending: make(map[ids.Key]*keyState),
	}
}

// Submit records this node's own proposal for key and starts
// retransmitting it to dests (the key's replica group peers) through
// the dispatcher until resolution or eviction.
func (r *Resolver) Submit(key ids.Key, payload action.Payload, dests []ids.HolderID) (Outcome, *action.Action) {
	return r.addProposal(key, payload, r.selfID, dests, true)
}

// AddProposal records a proposal observed from proposer (which may be
// this node's own id, relayed back from a peer).
func (r *Resolver) AddProposal(key ids.Key, payload action.Payload, proposer ids.HolderID) (Outcome, *action.Action) {
	return r.addProposal(key, payload, proposer, nil, false)
}

func (r *Resolver) addProposal(key ids.Key, payload action.Payload, proposer ids.HolderID, retransmitDests []ids.HolderID, startRetransmit bool) (Outcome, *action.Action) {
	r.mu.Lock()

	ks, ok := r.pending[key]
	if !ok {
		ks = &keyState{groups: make(map[action.Payload]*proposalGroup), inserted: time.Now()}
		r.pending[key] = ks
		r.order = append(r.order, key)
		r.evictIfOverCapacityLocked()
	}

	group, ok := ks.groups[payload]
	if !ok {
		group = &proposalGroup{proposers: make(map[ids.HolderID]bool)}
		ks.groups[payload] = group
	}
	if group.proposers[proposer] {
		r.mu.Unlock()
		return Duplicate, nil
	}
	group.proposers[proposer] = true

	if len(group.proposers) >= r.cfg.Quorum {
		if ks.cancel != nil {
			ks.cancel()
		}
		delete(r.pending, key)
		r.mu.Unlock()
		return Resolved, &action.Action{Key: key, Kind: r.kind, Payload: payload, Proposer: proposer}
	}

	if startRetransmit && ks.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		ks.cancel = cancel
		go r.retransmit(ctx, key, payload, retransmitDests)
	}
	r.mu.Unlock()
	return Pending, nil
}

// evictIfOverCapacityLocked drops the oldest pending key's proposals
// when the per-kind bound is exceeded. Caller holds r.mu.
func (r *Resolver) evictIfOverCapacityLocked() {
	if r.cfg.MaxPendingKeys <= 0 || len(r.order) <= r.cfg.MaxPendingKeys {
		return
	}
	oldest := r.order[0]
	r.order = r.order[1:]
	if ks, ok := r.pending[oldest]; ok {
		if ks.cancel != nil {
			ks.cancel()
		}
		delete(r.pending, oldest)
		r.log.Warn().Str("key", oldest.String()).Msg("evicted unresolved action, pending-keys bound exceeded")
	}
}

// retransmit resends this node's own proposal to every dest through
// the dispatcher with exponential backoff, stopping on resolution
// (ctx cancelled) or on exhausting the retransmit bound.
func (r *Resolver) retransmit(ctx context.Context, key ids.Key, payload action.Payload, dests []ids.HolderID) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.RetransmitEvery
	policy.MaxInterval = 30 * time.Second

	attempts := 0
	for {
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		attempts++
		if attempts > r.cfg.RetransmitLimit {
			r.mu.Lock()
			delete(r.pending, key)
			r.mu.Unlock()
			r.log.Warn().Str("key", key.String()).Int("attempts", attempts).Msg("action dropped, retransmit limit exhausted")
			return
		}

		for _, dest := range dests {
			sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = r.disp.SendSync(sendCtx, dest, r.kind, key, payload, r.selfID)
			cancel()
		}
	}
}

// PendingKeys reports how many keys currently have unresolved
// proposals for this kind, for diagnostics.
func (r *Resolver) PendingKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
