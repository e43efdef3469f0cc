// Package churn implements the Churn Handler (C7): it reacts to
// routing-matrix change events by re-evaluating per-key
// responsibility. The handler is stateless beyond the matrix
// snapshot it holds.
package churn

import (
	"sync"

	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/store"
)

// Handler swaps the stored routing-matrix snapshot under its own
// lock and re-evaluates ownership for every key the store currently
// holds.
type Handler struct {
	mu       sync.RWMutex
	snapshot routing.Snapshot

	groupSize int
	store     *store.Store
}

// New builds a Churn Handler seeded with the collaborator's current
// snapshot.
func New(collab routing.Collaborator, st *store.Store) *Handler {
	return &Handler{
		snapshot:  collab.CurrentSnapshot(),
		groupSize: collab.GroupSize(),
		store:     st,
	}
}

// Snapshot returns the currently held matrix snapshot.
func (h *Handler) Snapshot() routing.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot
}

// MoveResult is returned for every key the handler re-evaluated,
// reporting whether this node is still responsible for it; keys whose
// status did not change are included too.
type MoveResult struct {
	Key            ids.Key
	StillResponsible bool
}

// OnRoutingMatrixChanged swaps in the new snapshot and re-evaluates
// every key currently in the store. Shrinking responsibility emits no
// action — the node simply stops writing for that key. Newly acquired
// responsibility is left to the Sync Resolver's ongoing proposals
// from peer Data Managers to converge the local store, so this
// returns observations only, not actions.
func (h *Handler) OnRoutingMatrixChanged(next routing.Snapshot) ([]MoveResult, error) {
	h.mu.Lock()
	h.snapshot = next
	h.mu.Unlock()

	keys, err := h.store.Keys()
	if err != nil {
		return nil, err
	}

	results := make([]MoveResult, 0, len(keys))
	for _, key := range keys {
		still := next.ClosestTo(key.Data, h.groupSize)
		results = append(results, MoveResult{Key: key, StillResponsible: still})
	}
	return results, nil
}
