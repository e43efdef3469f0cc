// Package action implements the typed Action Log: Put, Delete,
// AddHolder, RemoveHolder, NodeDown, and NodeUp values that mutate a
// Metadata Entry when applied. Application is total. AddHolder,
// RemoveHolder, NodeDown, and NodeUp are idempotent under replay; Put
// and Delete change ref_count on every application, so at-most-once
// application rests with the caller. Delete follows the source's
// action_delete.cc ref_count decrement-to-zero pattern.
package action

import (
	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/vaulterr"
)

// Kind enumerates the action log's action kinds.
type Kind uint8

const (
	KindPut Kind = iota
	KindDelete
	KindAddHolder
	KindRemoveHolder
	KindNodeDown
	KindNodeUp
)

func (k Kind) String() string {
	switch k {
	case KindPut:
		return "Put"
	case KindDelete:
		return "Delete"
	case KindAddHolder:
		return "AddHolder"
	case KindRemoveHolder:
		return "RemoveHolder"
	case KindNodeDown:
		return "NodeDown"
	case KindNodeUp:
		return "NodeUp"
	default:
		return "Unknown"
	}
}

// Payload is the per-kind argument to Apply. Only AddHolder,
// RemoveHolder, NodeDown, and NodeUp carry a holder; Put and Delete
// carry none.
type Payload struct {
	Holder ids.HolderID
	Size   uint64
}

// Action is one unresolved (or resolved) action value: the key it
// targets, its kind, payload, the proposer that submitted it, and an
// attempt count. The Sync Resolver counts its retransmissions
// separately and does not set Attempts, so resolved actions carry 0.
type Action struct {
	Key      ids.Key
	Kind     Kind
	Payload  Payload
	Proposer ids.HolderID
	Attempts int
}

// PostHook describes a side effect the service must perform after a
// resolved action has been applied, beyond mutating the store itself.
type PostHook struct {
	// DeleteOnHolders is set when a Delete has driven ref_count to
	// zero: the service must issue delete requests to every holder
	// named here before the entry is gone for good.
	DeleteOnHolders []ids.HolderID
}

// Apply applies a resolved action to a (possibly nil) Entry, per the
// mapping table: Put on absent creates; AddHolder on absent creates;
// everything else is a no-op on an absent entry. The returned Entry
// is nil when the action deletes the last reference.
func Apply(tag ids.TypeTag, current *entry.Entry, a Action) (*entry.Entry, PostHook, error) {
	switch a.Kind {
	case KindPut:
		return applyPut(tag, current)
	case KindAddHolder:
		return applyAddHolder(current, a.Payload)
	case KindRemoveHolder:
		return applyRemoveHolder(current, a.Payload)
	case KindDelete:
		return applyDelete(current)
	case KindNodeDown:
		return applyNodeDown(current, a.Payload)
	case KindNodeUp:
		return applyNodeUp(current, a.Payload)
	default:
		return current, PostHook{}, nil
	}
}

func applyPut(tag ids.TypeTag, current *entry.Entry) (*entry.Entry, PostHook, error) {
	if current == nil {
		e := entry.New()
		return e, PostHook{}, nil
	}
	if tag.Unique() {
		return current, PostHook{}, vaulterr.ErrUniqueDataClash
	}
	next := current.Clone()
	next.RefCount++
	return next, PostHook{}, nil
}

func applyAddHolder(current *entry.Entry, p Payload) (*entry.Entry, PostHook, error) {
	if current == nil {
		e := entry.New()
		e.Size = p.Size
		e.OnlineHolders[p.Holder] = true
		return e, PostHook{}, nil
	}
	next := current.Clone()
	if next.Size == 0 {
		next.Size = p.Size
	} else if p.Size != 0 && next.Size != p.Size {
		return current, PostHook{}, vaulterr.ErrStoreCorrupt
	}
	delete(next.OfflineHolders, p.Holder)
	next.OnlineHolders[p.Holder] = true
	return next, PostHook{}, nil
}

func applyRemoveHolder(current *entry.Entry, p Payload) (*entry.Entry, PostHook, error) {
	if current == nil {
		return nil, PostHook{}, nil
	}
	next := current.Clone()
	delete(next.OnlineHolders, p.Holder)
	delete(next.OfflineHolders, p.Holder)
	if next.HolderCount() == 0 && next.RefCount <= 0 {
		return nil, PostHook{}, nil
	}
	return next, PostHook{}, nil
}

func applyDelete(current *entry.Entry) (*entry.Entry, PostHook, error) {
	if current == nil {
		return nil, PostHook{}, nil
	}
	next := current.Clone()
	next.RefCount--
	if next.RefCount <= 0 {
		holders := next.AllHoldersSlice()
		return nil, PostHook{DeleteOnHolders: holders}, nil
	}
	return next, PostHook{}, nil
}

func applyNodeDown(current *entry.Entry, p Payload) (*entry.Entry, PostHook, error) {
	if current == nil {
		return nil, PostHook{}, nil
	}
	next := current.Clone()
	if next.OnlineHolders[p.Holder] {
		delete(next.OnlineHolders, p.Holder)
		next.OfflineHolders[p.Holder] = true
	}
	return next, PostHook{}, nil
}

func applyNodeUp(current *entry.Entry, p Payload) (*entry.Entry, PostHook, error) {
	if current == nil {
		return nil, PostHook{}, nil
	}
	next := current.Clone()
	if next.OfflineHolders[p.Holder] {
		delete(next.OfflineHolders, p.Holder)
		next.OnlineHolders[p.Holder] = true
	}
	return next, PostHook{}, nil
}
