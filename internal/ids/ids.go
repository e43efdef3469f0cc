// Package ids defines the fixed-width identifiers the Data Manager keys
// its state on: data identities, holder identities, and the type tag
// that selects a datum's kind.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Width is the byte length of a data or holder identity (512 bits).
const Width = 64

// DataID is the opaque identity of a stored datum.
type DataID [Width]byte

// HolderID is the opaque identity of a node that stores bytes.
type HolderID [Width]byte

// Zero reports whether the id is the all-zero sentinel.
func (d DataID) Zero() bool { return d == DataID{} }

// Zero reports whether the id is the all-zero sentinel.
func (h HolderID) Zero() bool { return h == HolderID{} }

func (d DataID) String() string { return hex.EncodeToString(d[:8]) }

func (h HolderID) String() string { return hex.EncodeToString(h[:8]) }

// MarshalText renders the full identity as hex, so a DataID can be
// used as a JSON object key or scalar value.
func (d DataID) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(Width))
	hex.Encode(out, d[:])
	return out, nil
}

// UnmarshalText parses the full hex identity produced by MarshalText.
func (d *DataID) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != Width {
		return fmt.Errorf("ids: data id: want %d bytes, got %d", Width, hex.DecodedLen(len(text)))
	}
	_, err := hex.Decode(d[:], text)
	return err
}

// MarshalText renders the full identity as hex, so a HolderID can be
// used as a JSON object key or scalar value.
func (h HolderID) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(Width))
	hex.Encode(out, h[:])
	return out, nil
}

// UnmarshalText parses the full hex identity produced by MarshalText.
func (h *HolderID) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != Width {
		return fmt.Errorf("ids: holder id: want %d bytes, got %d", Width, hex.DecodedLen(len(text)))
	}
	_, err := hex.Decode(h[:], text)
	return err
}

// RandomDataID draws a cryptographically random DataID.
func RandomDataID() (DataID, error) {
	var d DataID
	if _, err := rand.Read(d[:]); err != nil {
		return DataID{}, fmt.Errorf("ids: random data id: %w", err)
	}
	return d, nil
}

// RandomHolderID draws a cryptographically random HolderID.
func RandomHolderID() (HolderID, error) {
	var h HolderID
	if _, err := rand.Read(h[:]); err != nil {
		return HolderID{}, fmt.Errorf("ids: random holder id: %w", err)
	}
	return h, nil
}

// TypeTag selects a datum's kind. The concrete set is carried over from
// the source network's passport/data-tag enumeration rather than
// invented: chunks and mutable blocks, plus the signed-key variants
// used by the identity system.
type TypeTag uint8

const (
	ChunkImmutable TypeTag = iota
	BlockMutable
	SignKeyAnmaid
	SignKeyMaid
	SignKeyPmid
	SignKeyMid
	SignKeySmid
	SignKeyTmid
)

func (t TypeTag) String() string {
	switch t {
	case ChunkImmutable:
		return "ChunkImmutable"
	case BlockMutable:
		return "BlockMutable"
	case SignKeyAnmaid:
		return "SignKeyAnmaid"
	case SignKeyMaid:
		return "SignKeyMaid"
	case SignKeyPmid:
		return "SignKeyPmid"
	case SignKeyMid:
		return "SignKeyMid"
	case SignKeySmid:
		return "SignKeySmid"
	case SignKeyTmid:
		return "SignKeyTmid"
	default:
		return "Unknown"
	}
}

// Unique reports whether a datum of this type may only ever have one
// entry for a given data id across the network's lifetime. Signed
// identity types are unique; chunks and mutable blocks are not.
func (t TypeTag) Unique() bool {
	switch t {
	case SignKeyAnmaid, SignKeyMaid, SignKeyPmid, SignKeyMid, SignKeySmid, SignKeyTmid:
		return true
	default:
		return false
	}
}

// Key is the Metadata Store's primary key: a (data-id, type-tag) pair,
// the unique identifier of a datum across its lifetime.
type Key struct {
	Data DataID
	Tag  TypeTag
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Data, k.Tag) }

// Bytes packs the key as dataID(64) || typeTag(1), the on-disk layout
// the Metadata Store persists entries under.
func (k Key) Bytes() []byte {
	buf := make([]byte, Width+1)
	copy(buf, k.Data[:])
	buf[Width] = byte(k.Tag)
	return buf
}

// MessageID identifies one dispatch/response round for the deadline
// timer registry and the Get Operation aggregation path.
type MessageID string

// NewMessageID mints a fresh message id.
func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}
