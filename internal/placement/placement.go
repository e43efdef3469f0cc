// Package placement implements the Placement Engine (C5): choosing
// initial holders, picking avoidance-aware replacements on failure,
// and picking one holder to read from while the rest are challenged.
package placement

import (
	"fmt"

	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/routing"
)

// Engine is the Placement Engine, bound to one routing collaborator.
type Engine struct {
	collab routing.Collaborator
}

// New returns a Placement Engine driven by collab.
func New(collab routing.Collaborator) *Engine {
	return &Engine{collab: collab}
}

// InitialPlacement picks the holder a fresh Put should be dispatched
// to. If this node is closest to dataID and the caller supplied a
// candidate holder that is neither the zero id nor dataID itself,
// that candidate is used; otherwise a random connected peer is drawn,
// rejecting any peer whose id equals dataID.
func (e *Engine) InitialPlacement(dataID ids.DataID, candidate ids.HolderID) (ids.HolderID, error) {
	if e.collab.ClosestTo(dataID) && !candidate.Zero() && ids.HolderID(dataID) != candidate {
		return candidate, nil
	}
	for attempts := 0; attempts < 8; attempts++ {
		peer, err := e.collab.RandomConnectedPeer()
		if err != nil {
			return ids.HolderID{}, fmt.Errorf("placement: initial: %w", err)
		}
		if ids.DataID(peer) == dataID {
			continue
		}
		return peer, nil
	}
	return ids.HolderID{}, fmt.Errorf("placement: initial: no acceptable peer found")
}

// Replacement draws a random connected peer to replace offender,
// rejecting any member of the entry's current holder set plus the
// offender itself. Draws at most 16 times; if none of those draws is
// acceptable it returns an error instead of drawing again.
func (e *Engine) Replacement(current *entry.Entry, offender ids.HolderID) (ids.HolderID, error) {
	reject := make(map[ids.HolderID]bool, current.HolderCount()+1)
	for h := range current.OnlineHolders {
		reject[h] = true
	}
	for h := range current.OfflineHolders {
		reject[h] = true
	}
	reject[offender] = true

	for attempts := 0; attempts < 16; attempts++ {
		peer, err := e.collab.RandomConnectedPeer()
		if err != nil {
			return ids.HolderID{}, fmt.Errorf("placement: replacement: %w", err)
		}
		if reject[peer] {
			continue
		}
		return peer, nil
	}
	return ids.HolderID{}, fmt.Errorf("placement: replacement: no acceptable peer found")
}

// ChooseReadSource picks the online holder closest to dataID under
// the current routing matrix, and returns the remaining online
// holders (source removed) so the caller can pose integrity
// challenges to them.
func (e *Engine) ChooseReadSource(online map[ids.HolderID]bool, dataID ids.DataID) (source ids.HolderID, challengeSet []ids.HolderID, ok bool) {
	candidates := make([]ids.HolderID, 0, len(online))
	for h := range online {
		candidates = append(candidates, h)
	}
	source, found := e.collab.ChooseClosest(candidates, dataID)
	if !found {
		return ids.HolderID{}, nil, false
	}
	for _, h := range candidates {
		if h != source {
			challengeSet = append(challengeSet, h)
		}
	}
	return source, challengeSet, true
}

// Cost is the authoritative storage cost scalar returned to the
// account-holder persona on a Put response: serialized_size ×
// replication_factor on a fresh Put, or just serialized_size on a
// duplicate Put of a non-unique datum.
func (e *Engine) Cost(serializedSize uint64, fresh bool) uint64 {
	if fresh {
		return serializedSize * uint64(e.collab.ReplicationFactor())
	}
	return serializedSize
}
