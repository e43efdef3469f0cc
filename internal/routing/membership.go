package routing

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/safevault/vault/internal/ids"
)

// Peer is one vault known to the local routing collaborator.
type Peer struct {
	ID    ids.HolderID `json:"id"`
	Addr  string       `json:"addr"`
	Alive bool         `json:"alive"`
}

func peerKey(id ids.HolderID) string { return hex.EncodeToString(id[:]) }

// membership tracks the known peer set backing the ring. Static
// membership plus explicit Join/Leave calls; a real deployment would
// likely drive this from a gossip layer instead.
type membership struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	ring  *ring
}

func newMembership(vnodes int) *membership {
	return &membership{
		peers: make(map[string]*Peer),
		ring:  newRing(vnodes),
	}
}

func (m *membership) join(p Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := peerKey(p.ID)
	if _, ok := m.peers[key]; ok {
		return fmt.Errorf("routing: peer %x already known", p.ID[:8])
	}
	p.Alive = true
	m.peers[key] = &p
	m.ring.addNode(key)
	return nil
}

func (m *membership) leave(id ids.HolderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := peerKey(id)
	if _, ok := m.peers[key]; !ok {
		return fmt.Errorf("routing: peer %x not known", id[:8])
	}
	delete(m.peers, key)
	m.ring.removeNode(key)
	return nil
}

func (m *membership) all() []Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, *p)
	}
	return out
}

func (m *membership) get(id ids.HolderID) (Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[peerKey(id)]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}
