// Package store implements the Metadata Store: the keyed persistent
// map from (data-id, type-tag) to Metadata Entry that is the sole
// authority for what is durable. In-memory state outside it is
// advisory.
//
// Persistence is backed by bbolt, a single-file embedded key-value
// engine. bbolt serializes every write transaction against the whole
// database, which trivially gives us the per-key mutate serialization
// this store is required to guarantee.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/safevault/vault/internal/entry"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/vaulterr"
)

var bucketEntries = []byte("metadata_entries")

// Store is the Metadata Store (C2).
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures
// the entries bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the Entry for key, or ErrNotFound if absent, or
// ErrStoreCorrupt if the stored bytes do not decode.
func (s *Store) Get(key ids.Key) (*entry.Entry, error) {
	var e *entry.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEntries).Get(key.Bytes())
		if raw == nil {
			return vaulterr.ErrNotFound
		}
		var decoded entry.Entry
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr != nil {
			return fmt.Errorf("%w: %v", vaulterr.ErrStoreCorrupt, jsonErr)
		}
		e = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Put unconditionally writes an Entry, overwriting whatever was there.
func (s *Store) Put(key ids.Key, e *entry.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put(key.Bytes(), raw)
	})
}

// Delete removes a key. Deleting an absent key is a no-op.
func (s *Store) Delete(key ids.Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete(key.Bytes())
	})
}

// MutateFunc receives the current Entry (nil if absent) and returns
// the Entry to store (nil to delete) or an error to abort the
// transaction, leaving the store unchanged.
type MutateFunc func(current *entry.Entry) (next *entry.Entry, err error)

// Mutate performs a read-modify-write of key inside a single bbolt
// write transaction, which is what gives concurrent Mutate calls on
// the same (or any) key their serialization guarantee.
func (s *Store) Mutate(key ids.Key, fn MutateFunc) (*entry.Entry, error) {
	var result *entry.Entry
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		raw := bucket.Get(key.Bytes())

		var current *entry.Entry
		if raw != nil {
			var decoded entry.Entry
			if jsonErr := json.Unmarshal(raw, &decoded); jsonErr != nil {
				return fmt.Errorf("%w: %v", vaulterr.ErrStoreCorrupt, jsonErr)
			}
			current = &decoded
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		result = next

		if next == nil {
			return bucket.Delete(key.Bytes())
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("store: marshal entry: %w", err)
		}
		return bucket.Put(key.Bytes(), encoded)
	})
	if err != nil && !errors.Is(err, vaulterr.ErrUniqueDataClash) {
		return nil, err
	}
	if err != nil {
		// UniqueDataClash leaves the store untouched but must still
		// reach the caller.
		return nil, err
	}
	return result, nil
}

// Keys returns every key currently present, for churn re-evaluation.
func (s *Store) Keys() ([]ids.Key, error) {
	var out []ids.Key
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if len(k) != ids.Width+1 {
				continue
			}
			var key ids.Key
			copy(key.Data[:], k[:ids.Width])
			key.Tag = ids.TypeTag(k[ids.Width])
			out = append(out, key)
		}
		return nil
	})
	return out, err
}
