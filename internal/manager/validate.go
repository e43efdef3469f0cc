package manager

import (
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/vaulterr"
)

// InboundEvent identifies one of the taxonomy's named inbound events,
// for the purpose of checking the declared sender's role matches what
// that event permits.
type InboundEvent int

const (
	EventPutRequestFromOrigin InboundEvent = iota
	EventPutResponseFromStorageGroup
	EventPutFailureFromStorageGroup
	EventDeleteRequestFromOrigin
	EventSetHolderOnline
	EventSetHolderOffline
	EventSynchroniseFromPeer
	EventAccountTransferFromPeer
	EventGetRequestFromClient
	EventGetRequestFromAuxiliary
	EventGetResponseFromHolder
	EventGetCachedResponseFromCache
)

// SenderRole is the role a declared sender claims to hold.
type SenderRole int

const (
	RoleOrigin SenderRole = iota
	RoleStorageGroupMember
	RolePeerDataManager
	RoleAuxiliaryManager
	RoleHolder
	RoleCache
	RoleAny
)

// expectedRoles maps each inbound event to the sender roles it
// accepts. ValidateSender rejects anything outside this set, resolving
// the third Open Question in favor of a real (if coarse) check rather
// than trusting every declared sender.
var expectedRoles = map[InboundEvent][]SenderRole{
	EventPutRequestFromOrigin:        {RoleOrigin},
	EventPutResponseFromStorageGroup: {RoleStorageGroupMember},
	EventPutFailureFromStorageGroup:  {RoleStorageGroupMember},
	EventDeleteRequestFromOrigin:     {RoleOrigin},
	EventSetHolderOnline:             {RolePeerDataManager, RoleHolder},
	EventSetHolderOffline:            {RolePeerDataManager, RoleHolder},
	EventSynchroniseFromPeer:         {RolePeerDataManager},
	EventAccountTransferFromPeer:     {RolePeerDataManager},
	EventGetRequestFromClient:        {RoleOrigin},
	EventGetRequestFromAuxiliary:     {RoleAuxiliaryManager},
	EventGetResponseFromHolder:       {RoleHolder},
	EventGetCachedResponseFromCache:  {RoleCache},
}

// ValidateSender checks that sender, claiming role, is an acceptable
// source for event. Controlled by cfg.EnforceSenderValidation: when
// disabled every sender passes, matching the source's own permissive
// default. A claimed RolePeerDataManager is corroborated against the
// routing collaborator's own peer table via roleOfPeer — a sender
// cannot claim to be a peer Data Manager unless the collaborator
// actually knows it as one; other claimed roles (origin, holder,
// auxiliary manager, cache) have no such corroboration source
// available to the core and are trusted as declared, matching the
// taxonomy's stated scope ("validating that a message's source role
// matches its payload type", not full sender authentication).
func (s *Service) ValidateSender(event InboundEvent, sender ids.HolderID, role SenderRole) error {
	if !s.cfg.EnforceSenderValidation {
		return nil
	}
	allowed, ok := expectedRoles[event]
	if !ok {
		return nil
	}
	if role == RolePeerDataManager && roleOfPeer(s.collab, sender) != RolePeerDataManager {
		return vaulterr.ErrSenderRejected
	}
	for _, r := range allowed {
		if r == role || r == RoleAny {
			return nil
		}
	}
	return vaulterr.ErrSenderRejected
}

// roleOfPeer infers a coarse sender role from the routing
// collaborator's knowledge of id: known peers are treated as peer
// Data Managers, anything unrecognized defaults to RoleAny and is left
// to the specific handler's own checks.
func roleOfPeer(collab routing.Collaborator, id ids.HolderID) SenderRole {
	if _, ok := collab.Peer(id); ok {
		return RolePeerDataManager
	}
	return RoleAny
}
