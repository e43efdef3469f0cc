// Package entry defines the Metadata Entry, the per-datum value the
// Metadata Store keys on: the holder set, its online/offline
// partition, the datum's size, and the reference count.
package entry

import "github.com/safevault/vault/internal/ids"

// Entry is one stored datum's metadata record.
type Entry struct {
	Size           uint64                `json:"size"`
	OnlineHolders  map[ids.HolderID]bool `json:"online_holders"`
	OfflineHolders map[ids.HolderID]bool `json:"offline_holders"`
	RefCount       int64                 `json:"ref_count"`
}

// New returns an empty Entry with ref_count 1, the shape a bare Put
// creates before any holder is known.
func New() *Entry {
	return &Entry{
		OnlineHolders:  map[ids.HolderID]bool{},
		OfflineHolders: map[ids.HolderID]bool{},
		RefCount:       1,
	}
}

// Clone returns a deep copy, so callers may mutate the result without
// racing the store's own copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := &Entry{
		Size:           e.Size,
		RefCount:       e.RefCount,
		OnlineHolders:  make(map[ids.HolderID]bool, len(e.OnlineHolders)),
		OfflineHolders: make(map[ids.HolderID]bool, len(e.OfflineHolders)),
	}
	for h := range e.OnlineHolders {
		c.OnlineHolders[h] = true
	}
	for h := range e.OfflineHolders {
		c.OfflineHolders[h] = true
	}
	return c
}

// HolderCount is |online ∪ offline|.
func (e *Entry) HolderCount() int {
	return len(e.OnlineHolders) + len(e.OfflineHolders)
}

// Valid checks the invariants: online and offline are disjoint, their
// union is bounded by replicationFactor, and ref_count is positive.
func (e *Entry) Valid(replicationFactor int) bool {
	if e.RefCount < 1 {
		return false
	}
	for h := range e.OnlineHolders {
		if e.OfflineHolders[h] {
			return false
		}
	}
	return e.HolderCount() <= replicationFactor
}

// OnlineSlice returns the online holder set as a slice, useful for
// Placement Engine queries that need an ordered candidate list.
func (e *Entry) OnlineSlice() []ids.HolderID {
	out := make([]ids.HolderID, 0, len(e.OnlineHolders))
	for h := range e.OnlineHolders {
		out = append(out, h)
	}
	return out
}

// AllHoldersSlice returns the union of online and offline holders, for
// callers that must reach every holder regardless of liveness (e.g.
// delete fan-out).
func (e *Entry) AllHoldersSlice() []ids.HolderID {
	out := make([]ids.HolderID, 0, len(e.OnlineHolders)+len(e.OfflineHolders))
	for h := range e.OnlineHolders {
		out = append(out, h)
	}
	for h := range e.OfflineHolders {
		out = append(out, h)
	}
	return out
}
