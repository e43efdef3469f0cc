// Package vaulterr defines the sentinel error kinds the Data Manager
// distinguishes on, per the error handling design: each kind is
// localized to the affected operation rather than escalated.
package vaulterr

import "errors"

var (
	// ErrNotFound is returned when a key is absent from the Metadata
	// Store. Silent on Get (log and drop) and Delete (no-op).
	ErrNotFound = errors.New("vault: not found")

	// ErrUniqueDataClash is returned when a Put targets a unique-on-
	// network type tag whose key already has an entry.
	ErrUniqueDataClash = errors.New("vault: unique data clash")

	// ErrIntegrityFailure marks a challenge response that disagrees
	// with the reference HMAC scalar.
	ErrIntegrityFailure = errors.New("vault: integrity failure")

	// ErrHolderTimeout marks an expected response that never arrived.
	ErrHolderTimeout = errors.New("vault: holder timeout")

	// ErrStoreCorrupt marks an unexpected persistent-store decode
	// error. Fatal to the operation, not the process.
	ErrStoreCorrupt = errors.New("vault: store corrupt")

	// ErrTransport marks a dispatcher send failure. HTTPDispatcher
	// retries it up to twice as best-effort delivery; the Sync
	// Resolver's retransmission is what redelivers proposals.
	ErrTransport = errors.New("vault: transport error")

	// ErrSenderRejected marks an inbound message whose declared
	// source role does not match the event it carries.
	ErrSenderRejected = errors.New("vault: sender rejected")

	// ErrNoHolders marks a Get whose Entry has no online holders to
	// read from.
	ErrNoHolders = errors.New("vault: no online holders")
)
