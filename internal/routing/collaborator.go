package routing

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/safevault/vault/internal/ids"
)

// Snapshot is the opaque routing-matrix snapshot the core reads from
// via two closeness queries, "am I one of the closest-K nodes to id
// X" and "given candidates, pick the one closest to X", plus
// GroupMembers, which lists the closest-K nodes themselves for
// Collaborator.GroupPeers. The Churn Handler holds one of these at
// a time and swaps it wholesale when the topology changes.
type Snapshot interface {
	ClosestTo(target ids.DataID, groupSize int) bool
	ChooseClosest(candidates []ids.HolderID, target ids.DataID) (ids.HolderID, bool)
	GroupMembers(target ids.DataID, groupSize int) []ids.HolderID
}

type snapshot struct {
	self string
	r    *ring
}

func (s *snapshot) ClosestTo(target ids.DataID, groupSize int) bool {
	closest := s.r.closestN(hex.EncodeToString(target[:]), groupSize)
	for _, id := range closest {
		if id == s.self {
			return true
		}
	}
	return false
}

// ChooseClosest approximates "closest under the current matrix" by
// building a throwaway ring from just the candidate set and asking it
// for the single closest position to target. This keeps the query
// deterministic and consistent with closestN's hashing without
// requiring the full matrix to expose per-node distances directly.
func (s *snapshot) ChooseClosest(candidates []ids.HolderID, target ids.DataID) (ids.HolderID, bool) {
	if len(candidates) == 0 {
		return ids.HolderID{}, false
	}
	subset := newRing(s.r.vnodes)
	byKey := make(map[string]ids.HolderID, len(candidates))
	for _, c := range candidates {
		k := hex.EncodeToString(c[:])
		byKey[k] = c
		subset.addNode(k)
	}
	closest := subset.closestN(hex.EncodeToString(target[:]), 1)
	if len(closest) == 0 {
		return ids.HolderID{}, false
	}
	return byKey[closest[0]], true
}

// GroupMembers returns the groupSize physical nodes closest to
// target, decoded back from the ring's hex-keyed node ids.
func (s *snapshot) GroupMembers(target ids.DataID, groupSize int) []ids.HolderID {
	closest := s.r.closestN(hex.EncodeToString(target[:]), groupSize)
	out := make([]ids.HolderID, 0, len(closest))
	for _, hx := range closest {
		raw, err := hex.DecodeString(hx)
		if err != nil || len(raw) != ids.Width {
			continue
		}
		var h ids.HolderID
		copy(h[:], raw)
		out = append(out, h)
	}
	return out
}

// Collaborator is the routing/DHT layer as the core sees it: closeness
// queries, random peer selection, and topology-change notification.
// GroupPeers is a necessary addition beyond the source's closeness
// primitives: the real overlay delivers a Sync Resolver proposal to a
// whole replica group via group-addressed messaging, a primitive this
// stand-in's direct HTTP dispatch doesn't have, so the core needs an
// explicit "who are my group peers for this key" query instead.
type Collaborator interface {
	ClosestTo(target ids.DataID) bool
	RandomConnectedPeer() (ids.HolderID, error)
	ChooseClosest(candidates []ids.HolderID, target ids.DataID) (ids.HolderID, bool)
	GroupPeers(target ids.DataID) []ids.HolderID
	MyID() ids.HolderID
	GroupSize() int
	ReplicationFactor() int
	CurrentSnapshot() Snapshot
	OnChange(func(Snapshot))
	Peer(id ids.HolderID) (Peer, bool)
}

// RingCollaborator is the shipped stand-in implementation: a
// consistent-hash ring over the known peer set.
type RingCollaborator struct {
	mu                sync.RWMutex
	members           *membership
	self              ids.HolderID
	groupSize         int
	replicationFactor int
	listeners         []func(Snapshot)
}

// NewRingCollaborator builds a collaborator seeded with self plus an
// initial peer set, e.g. from --peers at startup.
func NewRingCollaborator(self ids.HolderID, groupSize, replicationFactor, vnodes int, seed []Peer) (*RingCollaborator, error) {
	c := &RingCollaborator{
		members:           newMembership(vnodes),
		self:              self,
		groupSize:         groupSize,
		replicationFactor: replicationFactor,
	}
	if err := c.members.join(Peer{ID: self, Alive: true}); err != nil {
		return nil, fmt.Errorf("routing: seed self: %w", err)
	}
	for _, p := range seed {
		if p.ID == self {
			continue
		}
		if err := c.members.join(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *RingCollaborator) MyID() ids.HolderID        { return c.self }
func (c *RingCollaborator) GroupSize() int            { return c.groupSize }
func (c *RingCollaborator) ReplicationFactor() int    { return c.replicationFactor }
func (c *RingCollaborator) Peer(id ids.HolderID) (Peer, bool) { return c.members.get(id) }

func (c *RingCollaborator) ClosestTo(target ids.DataID) bool {
	return c.CurrentSnapshot().ClosestTo(target, c.groupSize)
}

func (c *RingCollaborator) ChooseClosest(candidates []ids.HolderID, target ids.DataID) (ids.HolderID, bool) {
	return c.CurrentSnapshot().ChooseClosest(candidates, target)
}

// GroupPeers returns the other members (self excluded) of the
// replica group currently responsible for target.
func (c *RingCollaborator) GroupPeers(target ids.DataID) []ids.HolderID {
	members := c.CurrentSnapshot().GroupMembers(target, c.groupSize)
	out := make([]ids.HolderID, 0, len(members))
	for _, m := range members {
		if m != c.self {
			out = append(out, m)
		}
	}
	return out
}

// RandomConnectedPeer draws a uniformly random live peer other than
// self. Returns an error if no peer besides self is known.
func (c *RingCollaborator) RandomConnectedPeer() (ids.HolderID, error) {
	all := c.members.all()
	candidates := make([]ids.HolderID, 0, len(all))
	for _, p := range all {
		if p.ID != c.self && p.Alive {
			candidates = append(candidates, p.ID)
		}
	}
	if len(candidates) == 0 {
		return ids.HolderID{}, fmt.Errorf("routing: no connected peers")
	}
	return candidates[rand.IntN(len(candidates))], nil
}

// CurrentSnapshot materializes an immutable view of the current ring.
func (c *RingCollaborator) CurrentSnapshot() Snapshot {
	nodes := c.members.ring.nodes()
	vnodes := c.members.ring.vnodes
	r := newRing(vnodes)
	for _, n := range nodes {
		r.addNode(n)
	}
	return &snapshot{self: peerKey(c.self), r: r}
}

// OnChange registers a callback invoked with the fresh snapshot after
// every Join/Leave — the churn notification the Churn Handler (C7)
// consumes.
func (c *RingCollaborator) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *RingCollaborator) notify() {
	c.mu.RLock()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.RUnlock()
	snap := c.CurrentSnapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Join admits a new peer and fires the churn notification.
func (c *RingCollaborator) Join(p Peer) error {
	if err := c.members.join(p); err != nil {
		return err
	}
	c.notify()
	return nil
}

// Leave removes a peer and fires the churn notification.
func (c *RingCollaborator) Leave(id ids.HolderID) error {
	if err := c.members.leave(id); err != nil {
		return err
	}
	c.notify()
	return nil
}

// Peers returns every known peer, for diagnostics/CLI listing.
func (c *RingCollaborator) Peers() []Peer {
	return c.members.all()
}
